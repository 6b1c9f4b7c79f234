package pipeline

import (
	"context"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type LoadResult struct {
	Item    model.Load
	Skipped bool
	Err     error
}

// LoadStage delivers the series to all destinations of one configuration.
type LoadStage struct {
	config   Config
	clock    clockwork.Clock
	registry *registry.Registry
	reporter *status.Reporter
}

func newLoadStage(cfg Config, clock clockwork.Clock, reg *registry.Registry, reporter *status.Reporter) *LoadStage {
	return &LoadStage{config: cfg, clock: clock, registry: reg, reporter: reporter}
}

// Process attempts each destination exactly once, with bounded concurrency.
// Without any series, all destinations are skipped.
func (s *LoadStage) Process(ctx context.Context, identity string, series []model.Series, items []model.Load) []LoadResult {
	results := make([]LoadResult, len(items))

	if len(series) == 0 {
		for i, item := range items {
			results[i] = LoadResult{Item: item, Skipped: true}
			report(ctx, s.reporter, s.clock, status.StageLoad, identity, item.String(), s.clock.Now(), status.OutcomeSkipped, errors.New("no series to load"))
		}
		return results
	}

	grp := &errgroup.Group{}
	grp.SetLimit(s.config.LoadConcurrency)
	for i, item := range items {
		results[i].Item = item

		if err := ctx.Err(); err != nil {
			results[i].Skipped, results[i].Err = true, err
			report(ctx, s.reporter, s.clock, status.StageLoad, identity, item.String(), s.clock.Now(), status.OutcomeSkipped, err)
			continue
		}

		grp.Go(func() error {
			startTime := s.clock.Now()
			_, err := runItem(ctx, "load", s.config.ItemTimeout, func(ctx context.Context) (struct{}, error) {
				p, found := s.registry.Load(item.Type)
				if !found {
					return struct{}{}, errors.Errorf(`unknown load type "%s"`, item.Type)
				}
				// Each destination gets its own copy
				input := make([]model.Series, len(series))
				for j, v := range series {
					input[j] = v.Clone()
				}
				return struct{}{}, p.Load(ctx, item, input)
			})

			results[i].Err = err
			if err != nil {
				report(ctx, s.reporter, s.clock, status.StageLoad, identity, item.String(), startTime, status.OutcomeFailure, err)
			} else {
				report(ctx, s.reporter, s.clock, status.StageLoad, identity, item.String(), startTime, status.OutcomeSuccess, nil)
			}
			return nil
		})
	}

	_ = grp.Wait()
	return results
}
