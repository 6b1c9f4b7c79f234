package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// runItem runs the fn with the timeout and converts a panic to an error.
// A stalled fn is abandoned after the timeout, so it cannot block its siblings.
func runItem[T any](ctx context.Context, stage string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errors.Errorf("%s timed out after %s", stage, timeout))
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if panicErr := recover(); panicErr != nil {
				r.err = errors.Errorf("panic: %s", fmt.Sprint(panicErr))
			}
			done <- r
		}()
		r.value, r.err = fn(ctx)
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		// Prefer a result which is already available
		select {
		case r := <-done:
			return r.value, r.err
		default:
			var zero T
			return zero, context.Cause(ctx)
		}
	}
}
