// Package osclip adapts the system clipboard to cleanweb.Buffer and turns
// clipboard changes into notifications.
package osclip

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/getlantern/golog"
	"golang.design/x/clipboard"

	"github.com/getlantern/cleanweb"
)

var (
	log = golog.LoggerFor("cleanweb-osclip")

	// ErrBusy is returned by Acquire while another session is open.
	ErrBusy = errors.New("clipboard is held by another session")
	// ErrNoText is returned when the clipboard holds no text to read.
	ErrNoText = errors.New("clipboard holds no text")
	// ErrNotWritten is returned when the system refused the write.
	ErrNotWritten = errors.New("clipboard write was rejected")
)

// backend is the subset of the clipboard package we rely on.
type backend interface {
	read() []byte
	write(text []byte) bool
	watch(ctx context.Context) <-chan []byte
}

type system struct{}

func (system) read() []byte {
	return clipboard.Read(clipboard.FmtText)
}

func (system) write(text []byte) bool {
	return clipboard.Write(clipboard.FmtText, text) != nil
}

func (system) watch(ctx context.Context) <-chan []byte {
	return clipboard.Watch(ctx, clipboard.FmtText)
}

// Clipboard is the system clipboard as a cleanweb.Buffer.
type Clipboard struct {
	mx      sync.Mutex
	backend backend
}

// New initializes access to the system clipboard.
func New() (*Clipboard, error) {
	if err := clipboard.Init(); err != nil {
		return nil, err
	}
	return &Clipboard{backend: system{}}, nil
}

// HasText reports whether the clipboard currently holds text.
func (c *Clipboard) HasText() bool {
	return len(c.backend.read()) > 0
}

// Acquire opens an exclusive session on the clipboard. It doesn't wait for a
// session that's already open.
func (c *Clipboard) Acquire() (cleanweb.Session, error) {
	if !c.mx.TryLock() {
		return nil, ErrBusy
	}
	return &session{c: c}, nil
}

type session struct {
	c        *Clipboard
	released bool
}

func (s *session) Text() (string, error) {
	if s.released {
		return "", cleanweb.ErrRead
	}
	data := s.c.backend.read()
	if data == nil {
		return "", ErrNoText
	}
	return string(data), nil
}

func (s *session) SetText(text string) error {
	if s.released {
		return cleanweb.ErrWrite
	}
	if !s.c.backend.write([]byte(text)) {
		return ErrNotWritten
	}
	return nil
}

// Release closes the session. Releasing twice is a no-op.
func (s *session) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.c.mx.Unlock()
	return nil
}

// Watch delivers a notification to handle for every clipboard change until
// ctx is done. handle is called synchronously, one notification at a time.
// The changed content is dropped; handlers read the clipboard themselves.
func (c *Clipboard) Watch(ctx context.Context, handle func(cleanweb.Notification) cleanweb.Result) {
	changes := c.backend.watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			result := handle(cleanweb.Notification{At: time.Now()})
			log.Debugf("Clipboard change %v (%d)", result, result.Code())
		}
	}
}
