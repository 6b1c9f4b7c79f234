package pipeline

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// TransformChain applies transforms of one configuration in the declared order.
type TransformChain struct {
	clock    clockwork.Clock
	reporter *status.Reporter
	types    []string
	steps    []registry.Transform
}

// newTransformChain resolves all transforms once per configuration.
func newTransformChain(clock clockwork.Clock, reg *registry.Registry, reporter *status.Reporter, items []model.Transform) (*TransformChain, error) {
	c := &TransformChain{clock: clock, reporter: reporter}
	for i, item := range items {
		factory, found := reg.Transform(item.Type)
		if !found {
			return nil, errors.Errorf(`transform[%d]: unknown transform type "%s"`, i, item.Type)
		}
		step, err := factory(item.Params)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `transform[%d] "%s"`, i, item.Type)
		}
		c.types = append(c.types, item.Type)
		c.steps = append(c.steps, step)
	}
	return c, nil
}

func (c *TransformChain) Len() int {
	return len(c.steps)
}

// Apply runs the chain on each series synchronously.
// A series is dropped when any of its transforms fails, the other series are not affected.
func (c *TransformChain) Apply(ctx context.Context, identity string, series []model.Series) []model.Series {
	if len(c.steps) == 0 {
		return series
	}

	out := make([]model.Series, 0, len(series))
	for _, s := range series {
		startTime := c.clock.Now()
		result, err := c.applyOne(ctx, s)
		if err != nil {
			report(ctx, c.reporter, c.clock, status.StageTransform, identity, s.Name, startTime, status.OutcomeFailure, err)
			continue
		}
		report(ctx, c.reporter, c.clock, status.StageTransform, identity, s.Name, startTime, status.OutcomeSuccess, nil)
		out = append(out, result)
	}
	return out
}

func (c *TransformChain) applyOne(ctx context.Context, series model.Series) (out model.Series, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = errors.Errorf("panic: %s", fmt.Sprint(panicErr))
		}
	}()

	out = series.Clone()
	for i, step := range c.steps {
		if out, err = step.Apply(ctx, out); err != nil {
			return model.Series{}, errors.PrefixErrorf(err, `transform[%d] "%s"`, i, c.types[i])
		}
	}
	return out, nil
}
