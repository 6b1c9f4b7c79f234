package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type ExtractResult struct {
	Item   model.Extract
	Series []model.Series
	Err    error
}

// ExtractStage runs extract items of one configuration.
type ExtractStage struct {
	config   Config
	clock    clockwork.Clock
	registry *registry.Registry
	reporter *status.Reporter
}

func newExtractStage(cfg Config, clock clockwork.Clock, reg *registry.Registry, reporter *status.Reporter) *ExtractStage {
	return &ExtractStage{config: cfg, clock: clock, registry: reg, reporter: reporter}
}

// Process attempts each item exactly once, with bounded concurrency.
// The results are in the order of the items. A failed item does not affect the others.
func (s *ExtractStage) Process(ctx context.Context, identity string, items []model.Extract) []ExtractResult {
	results := make([]ExtractResult, len(items))

	grp := &errgroup.Group{}
	grp.SetLimit(s.config.ExtractConcurrency)
	for i, item := range items {
		results[i].Item = item

		// Cancellation is checked between items
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			report(ctx, s.reporter, s.clock, status.StageExtract, identity, item.String(), s.clock.Now(), status.OutcomeSkipped, err)
			continue
		}

		grp.Go(func() error {
			startTime := s.clock.Now()
			series, err := runItem(ctx, "extract", s.config.ItemTimeout, func(ctx context.Context) ([]model.Series, error) {
				p, found := s.registry.Extract(item.Type)
				if !found {
					return nil, errors.Errorf(`unknown extract type "%s"`, item.Type)
				}
				return p.Extract(ctx, item)
			})

			results[i].Series, results[i].Err = series, err
			if err != nil {
				report(ctx, s.reporter, s.clock, status.StageExtract, identity, item.String(), startTime, status.OutcomeFailure, err)
			} else {
				report(ctx, s.reporter, s.clock, status.StageExtract, identity, item.String(), startTime, status.OutcomeSuccess, nil)
			}
			return nil
		})
	}

	// Errors are stored in the results, the group never fails
	_ = grp.Wait()
	return results
}

func report(ctx context.Context, reporter *status.Reporter, clock clockwork.Clock, stage status.Stage, identity, item string, startTime time.Time, outcome status.Outcome, cause error) {
	now := clock.Now()
	reporter.Report(ctx, status.Message{
		Stage:    stage,
		Identity: identity,
		Item:     item,
		Outcome:  outcome,
		Cause:    cause,
		Duration: now.Sub(startTime),
		Time:     now,
	})
}
