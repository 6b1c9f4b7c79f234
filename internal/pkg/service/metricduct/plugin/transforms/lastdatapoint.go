package transforms

import (
	"context"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type lastDatapoint struct{}

func newLastDatapoint(params map[string]any) (registry.Transform, error) {
	if len(params) > 0 {
		return nil, errors.New("transform has no params")
	}
	return lastDatapoint{}, nil
}

func (lastDatapoint) Apply(_ context.Context, series model.Series) (model.Series, error) {
	last, found := series.Last()
	if !found {
		return model.Series{}, errors.Errorf(`series "%s" has no points`, series.Name)
	}
	series.Points = []model.Point{last}
	return series, nil
}
