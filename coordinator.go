package cleanweb

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/getlantern/mtime"
)

// Notification signals that the buffer's content changed. It carries no
// content; the buffer is re-read when it's handled.
type Notification struct {
	At time.Time
}

// Result tells the event loop whether a notification was acted on.
type Result int

const (
	NotHandled Result = iota
	Handled
)

func (r Result) String() string {
	if r == Handled {
		return "handled"
	}
	return "not handled"
}

// Code maps the result to the OS convention for clipboard update messages:
// 0 when handled, non-zero otherwise.
func (r Result) Code() int {
	if r == Handled {
		return 0
	}
	return 1
}

// Buffer is the shared OS text buffer.
type Buffer interface {
	// HasText reports whether the buffer currently holds plain text. It must
	// not require acquiring the buffer.
	HasText() bool
	// Acquire takes exclusive access to the buffer. The returned Session must
	// be released.
	Acquire() (Session, error)
}

// Session is exclusive access to a Buffer, held until Release.
type Session interface {
	Text() (string, error)
	// SetText empties the buffer and stores text as its only content.
	SetText(text string) error
	Release() error
}

// Coordinator reacts to buffer notifications by cleaning the buffer's text.
//
// Handle is synchronous and expects to be called by a single event loop that
// waits for it to return before delivering the next notification. Writing the
// cleaned text back raises another notification; that one finds nothing left
// to strip and stops, because Rewrite is idempotent.
type Coordinator struct {
	buf      Buffer
	rewrite  Rewriter
	handling atomic.Bool
	stats    *stats
}

// NewCoordinator creates a Coordinator that cleans buf using rewrite.
func NewCoordinator(buf Buffer, rewrite Rewriter) *Coordinator {
	return &Coordinator{
		buf:     buf,
		rewrite: rewrite,
		stats:   newStats(),
	}
}

// Handle processes one notification. Failures are never surfaced beyond a
// debug log line and a NotHandled result, leaving the buffer as it was.
func (c *Coordinator) Handle(n Notification) Result {
	if !c.handling.CompareAndSwap(false, true) {
		log.Errorf("Notification from %v delivered while another was being handled", n.At)
		return NotHandled
	}
	defer c.handling.Store(false)

	start := mtime.Now()
	kind, out, err := c.handle()
	elapsed := mtime.Now().Sub(start)
	c.stats.add(kind, out, elapsed)

	if err != nil {
		log.Debugf("Leaving buffer untouched: %v", err)
		return NotHandled
	}
	if kind != kindChanged {
		return NotHandled
	}
	log.Debugf("Cleaned URL on %v in %v", out.Host, elapsed)
	return Handled
}

func (c *Coordinator) handle() (outcomeKind, Outcome, error) {
	if !c.buf.HasText() {
		return kindPassthrough, Outcome{}, nil
	}

	session, err := c.buf.Acquire()
	if err != nil {
		return kindAcquireFailed, Outcome{}, bufferError(OpAcquire, err)
	}
	defer func() {
		if err := session.Release(); err != nil {
			log.Errorf("Unable to release buffer: %v", err)
		}
	}()

	text, err := session.Text()
	if err != nil {
		return kindReadFailed, Outcome{}, bufferError(OpRead, err)
	}

	out := c.rewrite(text)
	if !out.Changed {
		return kindUnchanged, out, nil
	}
	if err := session.SetText(out.Text); err != nil {
		return kindWriteFailed, out, bufferError(OpWrite, err)
	}
	return kindChanged, out, nil
}

// Stats returns a snapshot of the handling stats so far.
func (c *Coordinator) Stats() Stats {
	return c.stats.snapshot()
}

func bufferError(op Op, err error) error {
	var be *BufferError
	if errors.As(err, &be) {
		return err
	}
	return &BufferError{Op: op, Err: err}
}
