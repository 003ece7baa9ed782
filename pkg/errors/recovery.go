package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a recovered panic value into an internal error.
// The stack is kept in details for logging and stripped before responding.
func RecoverPanic(r interface{}) *Error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("panic: %s", v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}

	return ErrInternal.
		WithCause(err).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack()))
}

// Public returns a copy safe to send to clients: internal details are dropped.
func (e *Error) Public() *Error {
	if e.Code != ErrInternal.Code {
		return e
	}
	return NewError(e.Code, e.Message, e.Status)
}
