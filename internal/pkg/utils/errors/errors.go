// Package errors extends the standard errors package.
// Errors created by this package carry a stack trace and can be composed
// into a MultiError or a NestedError, see Format.
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
)

const stackDepth = 32

// StackTrace is a list of program counters, the first one is the error origin.
type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

type withStack struct {
	error
	trace StackTrace
}

type wrappedError struct {
	msg   string
	cause error
	trace StackTrace
}

func New(msg string) error {
	return &withStack{error: stdErrors.New(msg), trace: callers()}
}

func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: goerr113
}

// WithStack adds a stack trace to the error, if it is missing.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if As(err, &tracer) {
		return err
	}
	return &withStack{error: err, trace: callers()}
}

// Wrap returns a new error with the message, the original error is accessible via Unwrap.
func Wrap(err error, msg string) error {
	return &wrappedError{msg: msg, cause: err, trace: callers()}
}

func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), cause: err, trace: callers()}
}

func Is(err, target error) bool {
	return stdErrors.Is(err, target)
}

func As(err error, target any) bool {
	return stdErrors.As(err, target)
}

func Unwrap(err error) error {
	return stdErrors.Unwrap(err)
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.cause
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func callers() StackTrace {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[0:n]
}
