package status

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// LogConsumer writes failures as warnings and other outcomes as debug messages.
type LogConsumer struct {
	logger log.Logger
}

func NewLogConsumer(logger log.Logger) *LogConsumer {
	return &LogConsumer{logger: logger.WithComponent("status")}
}

func (c *LogConsumer) Consume(ctx context.Context, msg Message) error {
	logger := c.logger.WithDuration(msg.Duration).With(
		attribute.String("stage", string(msg.Stage)),
		attribute.String("outcome", string(msg.Outcome)),
	)
	if msg.Identity != "" {
		logger = logger.With(attribute.String("configuration", msg.Identity))
	}
	if msg.Item != "" {
		logger = logger.With(attribute.String("item", msg.Item))
	}

	if msg.Outcome == OutcomeFailure {
		cause := "unknown cause"
		if msg.Cause != nil {
			cause = errors.Format(msg.Cause)
		}
		logger.Warnf(ctx, "<stage> failed: %s", cause)
	} else {
		logger.Debug(ctx, "<stage> <outcome>")
	}
	return nil
}
