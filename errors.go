package cleanweb

import (
	"errors"
	"fmt"
)

// ConfigErrorKind classifies failures while resolving, reading or compiling
// the rule file.
type ConfigErrorKind int

const (
	// InvalidPattern means a host or parameter pattern did not compile.
	InvalidPattern ConfigErrorKind = iota
	// IOFailure means the rule file could not be read, parsed or written.
	IOFailure
	// InvalidPath means the per-user config directory could not be resolved.
	InvalidPath
)

func (k ConfigErrorKind) String() string {
	switch k {
	case InvalidPattern:
		return "invalid pattern"
	case IOFailure:
		return "rule file i/o"
	case InvalidPath:
		return "invalid config path"
	}
	return "unknown"
}

// ConfigError is returned for every failure in loading or persisting rules.
// These are fatal at startup.
type ConfigError struct {
	Kind    ConfigErrorKind
	Path    string
	Pattern string
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Pattern != "":
		return fmt.Sprintf("%v %q: %v", e.Kind, e.Pattern, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%v %v: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a ConfigError of the given kind.
func IsConfigError(err error, kind ConfigErrorKind) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Kind == kind
}

// Op names the buffer operation that failed.
type Op string

const (
	OpAcquire Op = "acquire"
	OpRead    Op = "read"
	OpWrite   Op = "write"
)

var (
	ErrAcquire = errors.New("unable to acquire buffer")
	ErrRead    = errors.New("unable to read buffer")
	ErrWrite   = errors.New("unable to write buffer")
)

// BufferError wraps a failure from the OS buffer. All of them are transient
// and only affect the notification being handled.
type BufferError struct {
	Op  Op
	Err error
}

func (e *BufferError) Error() string {
	return fmt.Sprintf("buffer %v: %v", e.Op, e.Err)
}

func (e *BufferError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failed operation.
func (e *BufferError) Is(target error) bool {
	switch target {
	case ErrAcquire:
		return e.Op == OpAcquire
	case ErrRead:
		return e.Op == OpRead
	case ErrWrite:
		return e.Op == OpWrite
	}
	return false
}
