package dispatch

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/netbus/internal/registry"
)

// ErrHandlerPanic is matched by every PanicError.
var ErrHandlerPanic = errors.New("handler panicked")

// HandlerError wraps the failure of a single handler invocation.
type HandlerError struct {
	Handle   string
	Table    registry.Table
	Position int
	Err      error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler #%d for %q: %v", e.Table, e.Position, e.Handle, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Is makes errors.Is(err, ErrHandlerPanic) hold.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
