package transforms

import (
	"context"

	"gopkg.in/Knetic/govaluate.v3"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// ExpressionParams defines an expression compiled by https://github.com/Knetic/govaluate/tree/v3.0.0.
// Variables "value" and "index" are available.
type ExpressionParams struct {
	Expression string `json:"expression" validate:"required"`
}

type expression struct {
	source   string
	compiled *govaluate.EvaluableExpression
}

func newExpression(raw map[string]any) (registry.Transform, error) {
	var p ExpressionParams
	if err := params.Decode(context.Background(), raw, &p); err != nil {
		return nil, err
	}

	compiled, err := govaluate.NewEvaluableExpression(p.Expression)
	if err != nil {
		return nil, errors.NewNestedError(
			errors.New("cannot compile expression"),
			errors.Errorf("expression: %s", p.Expression),
			errors.Errorf("error: %w", err),
		)
	}

	return expression{source: p.Expression, compiled: compiled}, nil
}

func (e expression) Apply(_ context.Context, series model.Series) (model.Series, error) {
	for i, point := range series.Points {
		result, err := e.compiled.Evaluate(map[string]any{"value": point.Value, "index": float64(i)})
		if err != nil {
			return model.Series{}, errors.NewNestedError(
				errors.New("cannot evaluate expression"),
				errors.Errorf("expression: %s", e.source),
				errors.Errorf("error: %w", err),
			)
		}

		v, ok := result.(float64)
		if !ok {
			return model.Series{}, errors.Errorf(`expression "%s" must return a number, found %T`, e.source, result)
		}
		series.Points[i].Value = v
	}
	return series, nil
}
