package topkapi

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("topkapi: invalid config")

	// ErrShapeMismatch is wrapped by every *ShapeMismatchError.
	ErrShapeMismatch = errors.New("topkapi: shape mismatch")

	// ErrSelfMerge is returned when a sketch is merged into itself or into
	// another handle of the same shared segment.
	ErrSelfMerge = errors.New("topkapi: cannot merge a sketch into itself")

	// ErrSharedMemory is wrapped by every *SharedMemoryError.
	ErrSharedMemory = errors.New("topkapi: shared memory")

	// ErrIO is wrapped by every *IoError.
	ErrIO = errors.New("topkapi: io")

	// ErrCorruptHeader indicates a persisted header with impossible values.
	ErrCorruptHeader = errors.New("topkapi: corrupt header")

	// ErrClosed is returned by operations on a closed sketch.
	ErrClosed = errors.New("topkapi: sketch is closed")
)

// ConfigError reports an invalid constructor parameter. Nothing is
// allocated when it is returned.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("topkapi: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ShapeMismatchError reports a merge between sketches of different shape.
// The receiver is left unmodified.
type ShapeMismatchError struct {
	Want Shape
	Got  Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("topkapi: shape mismatch: want %s, got %s", e.Want, e.Got)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// SharedMemoryError reports a failure to allocate, attach or release a
// shared segment.
//
// Both ErrSharedMemory and the underlying error can be matched with errors.Is.
type SharedMemoryError struct {
	Name  string
	Op    string
	cause error
}

func (e *SharedMemoryError) Error() string {
	return fmt.Sprintf("topkapi: shared memory %s %q: %v", e.Op, e.Name, e.cause)
}

func (e *SharedMemoryError) Unwrap() []error { return []error{ErrSharedMemory, e.cause} }

// IoError reports a save or load failure. Load never returns a partially
// initialized sketch alongside it.
//
// Both ErrIO and the underlying error can be matched with errors.Is.
type IoError struct {
	Path  string
	Op    string
	cause error
}

func (e *IoError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("topkapi: %s: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("topkapi: %s %s: %v", e.Op, e.Path, e.cause)
}

func (e *IoError) Unwrap() []error { return []error{ErrIO, e.cause} }
