package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrExecution is matched by every error an engine reports for a failed
	// snippet.
	ErrExecution = errors.New("engine: execution failed")

	// ErrClosed is returned by Execute after the Executor has been closed.
	ErrClosed = errors.New("engine: executor closed")

	// ErrUnknownKind is returned when no module is registered for a kind.
	ErrUnknownKind = errors.New("engine: unknown kind")
)

// ExecError is returned when the interpreter reports a failure for a snippet.
// Message holds what the interpreter printed about it (traceback, stderr).
type ExecError struct {
	Message string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ExecError) Unwrap() error { return e.Err }

// Is reports ErrExecution for every ExecError so callers can classify without
// caring about the concrete cause.
func (e *ExecError) Is(target error) bool {
	return target == ErrExecution
}

// Errorf builds an ExecError with a formatted message.
func Errorf(format string, args ...any) *ExecError {
	return &ExecError{Message: fmt.Sprintf(format, args...)}
}
