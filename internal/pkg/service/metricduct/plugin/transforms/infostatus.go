package transforms

import (
	"context"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// infoStatus reports problems without raising an alert.
type infoStatus struct{}

func newInfoStatus(params map[string]any) (registry.Transform, error) {
	if len(params) > 0 {
		return nil, errors.New("transform has no params")
	}
	return infoStatus{}, nil
}

func (infoStatus) Apply(_ context.Context, series model.Series) (model.Series, error) {
	switch Status(series.Tags[StatusTag]) {
	case StatusWarn, StatusCrit:
		return series.WithTag(StatusTag, string(StatusInfo)), nil
	default:
		return series, nil
	}
}
