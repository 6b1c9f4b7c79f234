package transforms

import (
	"context"
	"fmt"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type Status string

const (
	StatusOK   Status = "OK"
	StatusInfo Status = "INFO"
	StatusWarn Status = "WARN"
	StatusCrit Status = "CRIT"

	GreaterThan = "greaterThan"
	LessThan    = "lessThan"
)

type ThresholdParams struct {
	Type     string   `json:"type" validate:"required,oneof=greaterThan lessThan"`
	Critical *float64 `json:"critical,omitempty"`
	Warning  *float64 `json:"warning,omitempty"`
	Info     *float64 `json:"info,omitempty"`
}

type threshold struct {
	params ThresholdParams
}

func newThreshold(raw map[string]any) (registry.Transform, error) {
	var p ThresholdParams
	if err := params.Decode(context.Background(), raw, &p); err != nil {
		return nil, err
	}
	if p.Critical == nil && p.Warning == nil && p.Info == nil {
		return nil, errors.New(`at least one of "critical", "warning", "info" thresholds must be set`)
	}
	return threshold{params: p}, nil
}

// Apply evaluates the latest point, the most severe matched threshold wins.
func (t threshold) Apply(_ context.Context, series model.Series) (model.Series, error) {
	last, found := series.Last()
	if !found {
		return model.Series{}, errors.Errorf(`series "%s" has no points`, series.Name)
	}

	status := StatusOK
	levels := []struct {
		status Status
		limit  *float64
	}{
		{StatusCrit, t.params.Critical},
		{StatusWarn, t.params.Warning},
		{StatusInfo, t.params.Info},
	}
	for _, level := range levels {
		if level.limit != nil && t.matches(last.Value, *level.limit) {
			status = level.status
			series.Messages = append(series.Messages, fmt.Sprintf("%s: value %g is %s %g", level.status, last.Value, t.operator(), *level.limit))
			break
		}
	}

	return series.WithTag(StatusTag, string(status)), nil
}

func (t threshold) matches(value, limit float64) bool {
	if t.params.Type == LessThan {
		return value < limit
	}
	return value > limit
}

func (t threshold) operator() string {
	if t.params.Type == LessThan {
		return "less than"
	}
	return "greater than"
}
