package intake

import (
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// ParseError describes an invalid configuration file, the file is skipped.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return errors.Format(e)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) MainError() error {
	return errors.Errorf(`invalid configuration file "%s"`, e.Path)
}

func (e *ParseError) WrappedErrors() []error {
	return []error{e.Err}
}

// BootstrapError aggregates all errors encountered while reading configurations.
// Cause is the first error, Suppressed are the others.
type BootstrapError struct {
	Count      int
	Cause      error
	Suppressed []error
}

func newBootstrapError(errs []error) *BootstrapError {
	return &BootstrapError{Count: len(errs), Cause: errs[0], Suppressed: errs[1:]}
}

func (e *BootstrapError) Error() string {
	return errors.Format(e)
}

// Unwrap makes all errors reachable by errors.Is and errors.As.
func (e *BootstrapError) Unwrap() []error {
	return e.WrappedErrors()
}

func (e *BootstrapError) MainError() error {
	return errors.Errorf("errors encountered reading configurations: %d", e.Count)
}

func (e *BootstrapError) WrappedErrors() []error {
	return append([]error{e.Cause}, e.Suppressed...)
}
