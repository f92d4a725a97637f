package vm

import (
	"fmt"

	"github.com/chazu/classvm/pkg/bytecode"
)

// Messages raised by private field operations.
const (
	MsgDoubleInit = bytecode.DoubleInitMessage
	msgReadField  = "Cannot read private field %s"
	msgWriteField = "Cannot write private field %s"
)

// TypeError is a language-level exception. It is returned, never panicked,
// and callers test for it with errors.As.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return "TypeError: " + e.Message
}

func newTypeError(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// RuntimeError is an internal fault: malformed bytecode, stack underflow,
// call depth exhaustion. Function and Offset locate the failing
// instruction when known.
type RuntimeError struct {
	Function string
	Offset   int
	Err      error
}

func (e *RuntimeError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error in %s at %04X: %v", e.Function, e.Offset, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
