package status

import (
	"context"
	"fmt"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// Reporter delivers each message to all consumers, in the registration order.
type Reporter struct {
	logger    log.Logger
	consumers []Consumer
}

func NewReporter(logger log.Logger, consumers ...Consumer) *Reporter {
	return &Reporter{logger: logger.WithComponent("status"), consumers: consumers}
}

// Report never fails, consumer errors and panics are logged.
func (r *Reporter) Report(ctx context.Context, msg Message) {
	for i, consumer := range r.consumers {
		if err := r.consume(ctx, consumer, msg); err != nil {
			r.logger.Warnf(ctx, `status consumer %d (%T) failed: %s`, i, consumer, errors.Format(err))
		}
	}
}

func (r *Reporter) consume(ctx context.Context, consumer Consumer, msg Message) (err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = errors.Errorf("panic: %s", fmt.Sprint(panicErr))
		}
	}()
	return consumer.Consume(ctx, msg)
}
