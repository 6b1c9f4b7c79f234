package transforms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testSeries(values ...float64) model.Series {
	s := model.Series{Name: "cpu"}
	for i, v := range values {
		s.Points = append(s.Points, model.Point{Time: t0.Add(time.Duration(i) * time.Minute), Value: v})
	}
	return s
}

func newTransform(t *testing.T, typ string, params map[string]any) registry.Transform {
	t.Helper()
	reg, err := registry.Build(Module())
	require.NoError(t, err)
	factory, found := reg.Transform(typ)
	require.True(t, found)
	transform, err := factory(params)
	require.NoError(t, err)
	return transform
}

func TestLastDatapoint(t *testing.T) {
	t.Parallel()

	transform := newTransform(t, TypeLastDatapoint, nil)
	out, err := transform.Apply(context.Background(), testSeries(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []model.Point{{Time: t0.Add(2 * time.Minute), Value: 3}}, out.Points)

	_, err = transform.Apply(context.Background(), model.Series{Name: "empty"})
	require.Error(t, err)
	assert.Equal(t, `series "empty" has no points`, err.Error())
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	transform := newTransform(t, TypeThreshold, map[string]any{"type": "greaterThan", "critical": 90, "warning": "70"})

	cases := []struct {
		value    float64
		status   string
		messages []string
	}{
		{value: 50, status: "OK"},
		{value: 75, status: "WARN", messages: []string{"WARN: value 75 is greater than 70"}},
		{value: 95, status: "CRIT", messages: []string{"CRIT: value 95 is greater than 90"}},
	}

	for _, tc := range cases {
		out, err := transform.Apply(context.Background(), testSeries(1, tc.value))
		require.NoError(t, err)
		assert.Equal(t, tc.status, out.Tags[StatusTag])
		assert.Equal(t, tc.messages, out.Messages)
	}
}

func TestThreshold_LessThan(t *testing.T) {
	t.Parallel()

	transform := newTransform(t, TypeThreshold, map[string]any{"type": "lessThan", "info": 10})
	out, err := transform.Apply(context.Background(), testSeries(5))
	require.NoError(t, err)
	assert.Equal(t, "INFO", out.Tags[StatusTag])
	assert.Equal(t, []string{"INFO: value 5 is less than 10"}, out.Messages)
}

func TestThreshold_InvalidParams(t *testing.T) {
	t.Parallel()

	reg, err := registry.Build(Module())
	require.NoError(t, err)
	factory, _ := reg.Transform(TypeThreshold)

	_, err = factory(map[string]any{"type": "between", "critical": 1})
	require.Error(t, err)
	assert.Equal(t, `invalid params: "type" must be one of [greaterThan lessThan]`, err.Error())

	_, err = factory(map[string]any{"type": "lessThan"})
	require.Error(t, err)
	assert.Equal(t, `at least one of "critical", "warning", "info" thresholds must be set`, err.Error())
}

func TestInfoStatus(t *testing.T) {
	t.Parallel()

	transform := newTransform(t, TypeInfoStatus, nil)

	out, err := transform.Apply(context.Background(), testSeries(1).WithTag(StatusTag, "CRIT"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", out.Tags[StatusTag])

	out, err = transform.Apply(context.Background(), testSeries(1).WithTag(StatusTag, "OK"))
	require.NoError(t, err)
	assert.Equal(t, "OK", out.Tags[StatusTag])
}

func TestExpression(t *testing.T) {
	t.Parallel()

	transform := newTransform(t, TypeExpression, map[string]any{"expression": "value * 100 + index"})
	out, err := transform.Apply(context.Background(), testSeries(0.5, 0.25))
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 26}, []float64{out.Points[0].Value, out.Points[1].Value})
}

func TestExpression_Errors(t *testing.T) {
	t.Parallel()

	reg, err := registry.Build(Module())
	require.NoError(t, err)
	factory, _ := reg.Transform(TypeExpression)

	_, err = factory(map[string]any{"expression": "value *"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compile expression")

	transform, err := factory(map[string]any{"expression": "value > 1"})
	require.NoError(t, err)
	_, err = transform.Apply(context.Background(), testSeries(2))
	require.Error(t, err)
	assert.Equal(t, `expression "value > 1" must return a number, found bool`, err.Error())
}
