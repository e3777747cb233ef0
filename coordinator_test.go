package cleanweb

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuffer is an in-memory Buffer that records how it's used.
type fakeBuffer struct {
	text    string
	notText bool

	acquireErr error
	readErr    error
	writeErr   error

	acquired int
	released int
	held     bool
	writes   []string

	// onWrite runs after a successful write while the session is still held,
	// like the OS raising a change notification.
	onWrite func()
}

func (b *fakeBuffer) HasText() bool {
	return !b.notText
}

func (b *fakeBuffer) Acquire() (Session, error) {
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	if b.held {
		return nil, errors.New("already held")
	}
	b.acquired++
	b.held = true
	return &fakeSession{b: b}, nil
}

type fakeSession struct {
	b *fakeBuffer
}

func (s *fakeSession) Text() (string, error) {
	if s.b.readErr != nil {
		return "", s.b.readErr
	}
	return s.b.text, nil
}

func (s *fakeSession) SetText(text string) error {
	if s.b.writeErr != nil {
		return s.b.writeErr
	}
	s.b.text = text
	s.b.writes = append(s.b.writes, text)
	if s.b.onWrite != nil {
		s.b.onWrite()
	}
	return nil
}

func (s *fakeSession) Release() error {
	s.b.released++
	s.b.held = false
	return nil
}

func notify() Notification {
	return Notification{At: time.Now()}
}

func newTestCoordinator(b *fakeBuffer) *Coordinator {
	return NewCoordinator(b, NewRuleSet(nil).Rewriter())
}

func TestHandleCleansURL(t *testing.T) {
	b := &fakeBuffer{text: "https://twitter.com/u/status?t=abc&s=1&id=5"}
	c := newTestCoordinator(b)

	assert.Equal(t, Handled, c.Handle(notify()))
	assert.Equal(t, "https://twitter.com/u/status?id=5", b.text)
	assert.Equal(t, 1, b.acquired)
	assert.Equal(t, 1, b.released)

	st := c.Stats()
	assert.EqualValues(t, 1, st.Runs)
	assert.EqualValues(t, 1, st.Changed)
	assert.Equal(t, 2, st.Stripped["twitter.com"])
}

func TestHandleCleanTextIsNotHandled(t *testing.T) {
	for _, text := range []string{"https://example.com/?keep=1", "hello world", "mailto:a@b.c?utm_x=1"} {
		b := &fakeBuffer{text: text}
		c := newTestCoordinator(b)

		assert.Equal(t, NotHandled, c.Handle(notify()))
		assert.Equal(t, text, b.text)
		assert.Empty(t, b.writes)
		assert.Equal(t, 1, b.released, "buffer must be released")
		assert.EqualValues(t, 1, c.Stats().Unchanged)
	}
}

func TestHandleNonTextDoesNotAcquire(t *testing.T) {
	b := &fakeBuffer{notText: true}
	c := newTestCoordinator(b)

	assert.Equal(t, NotHandled, c.Handle(notify()))
	assert.Equal(t, 0, b.acquired)
	assert.Equal(t, 0, b.released)
	assert.EqualValues(t, 1, c.Stats().Passthrough)
}

func TestHandleAcquireFailure(t *testing.T) {
	b := &fakeBuffer{text: "https://example.com/?utm_source=x", acquireErr: errors.New("held elsewhere")}
	c := newTestCoordinator(b)

	assert.Equal(t, NotHandled, c.Handle(notify()))
	assert.Equal(t, 0, b.released)
	assert.Equal(t, "https://example.com/?utm_source=x", b.text)
	assert.EqualValues(t, 1, c.Stats().AcquireFailures)
}

func TestHandleReadFailureReleases(t *testing.T) {
	b := &fakeBuffer{text: "https://example.com/?utm_source=x", readErr: errors.New("bad handle")}
	c := newTestCoordinator(b)

	assert.Equal(t, NotHandled, c.Handle(notify()))
	assert.Equal(t, 1, b.acquired)
	assert.Equal(t, 1, b.released)
	assert.Empty(t, b.writes)
	assert.EqualValues(t, 1, c.Stats().ReadFailures)
}

func TestHandleWriteFailureReleases(t *testing.T) {
	b := &fakeBuffer{text: "https://example.com/?utm_source=x", writeErr: errors.New("rejected")}
	c := newTestCoordinator(b)

	assert.Equal(t, NotHandled, c.Handle(notify()))
	assert.Equal(t, 1, b.released)
	assert.Equal(t, "https://example.com/?utm_source=x", b.text)
	assert.EqualValues(t, 1, c.Stats().WriteFailures)
}

// Our own write raises another notification. Delivered after the first one
// returns, it must find nothing to do.
func TestSelfTriggeredNotificationStops(t *testing.T) {
	b := &fakeBuffer{text: "https://example.com/?utm_source=x&keep=1"}
	c := newTestCoordinator(b)

	pending := 0
	b.onWrite = func() { pending++ }

	assert.Equal(t, Handled, c.Handle(notify()))
	for i := 0; pending > 0; i++ {
		require.Less(t, i, 10, "notifications never settled")
		pending--
		assert.Equal(t, NotHandled, c.Handle(notify()))
	}
	assert.Equal(t, []string{"https://example.com/?keep=1"}, b.writes)
	assert.Equal(t, b.acquired, b.released)
}

func TestReentrantNotificationIsRejected(t *testing.T) {
	b := &fakeBuffer{text: "https://example.com/?utm_source=x"}
	c := newTestCoordinator(b)

	var nested Result = Handled
	b.onWrite = func() { nested = c.Handle(notify()) }

	assert.Equal(t, Handled, c.Handle(notify()))
	assert.Equal(t, NotHandled, nested)
	assert.Equal(t, 1, b.acquired)
	assert.Equal(t, 1, b.released)
}

func TestHandleWithInjectedRules(t *testing.T) {
	b := &fakeBuffer{text: "https://x.com/?a=1&b=2&c=3"}
	rs := NewRuleSet([]*Rule{mustRule(".*", "^a$"), mustRule(".*", "^b$")})
	c := NewCoordinator(b, rs.Rewriter())

	assert.Equal(t, Handled, c.Handle(notify()))
	assert.Equal(t, "https://x.com/?c=3", b.text)
}

func TestResultCode(t *testing.T) {
	assert.Equal(t, 0, Handled.Code())
	assert.NotEqual(t, 0, NotHandled.Code())
}

func TestBufferErrorIs(t *testing.T) {
	err := bufferError(OpRead, errors.New("boom"))
	assert.ErrorIs(t, err, ErrRead)
	assert.NotErrorIs(t, err, ErrWrite)

	// Already classified errors keep their operation.
	wrapped := bufferError(OpWrite, err)
	assert.ErrorIs(t, wrapped, ErrRead)
}

func TestStatsAverage(t *testing.T) {
	assert.Equal(t, time.Duration(0), Stats{}.Average())
	assert.Equal(t, 2*time.Second, Stats{Runs: 2, TotalTime: 4 * time.Second}.Average())
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.co.uk", registrableDomain("www.example.co.uk"))
	assert.Equal(t, "twitter.com", registrableDomain("mobile.twitter.com"))
	assert.Equal(t, "localhost", registrableDomain("localhost"))
	assert.Equal(t, "127.0.0.1", registrableDomain("127.0.0.1"))
}
