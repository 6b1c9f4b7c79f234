package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
)

type nopExtract struct{}

func (nopExtract) Extract(context.Context, model.Extract) ([]model.Series, error) {
	return nil, nil
}

type nopLoad struct{}

func (nopLoad) Load(context.Context, model.Load, []model.Series) error {
	return nil
}

func nopTransform(map[string]any) (Transform, error) {
	return nil, nil
}

func testModule(b *Builder) {
	b.AddExtract("http", nopExtract{})
	b.AddTransform("last-datapoint", nopTransform)
	b.AddLoad("http", nopLoad{})
	b.AddStatusConsumer(status.ConsumerFunc(func(context.Context, status.Message) error { return nil }))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r, err := Build(testModule, func(b *Builder) {
		b.AddLoad("kafka", nopLoad{})
	})
	require.NoError(t, err)

	extracts, transforms, loads := r.Types()
	assert.Equal(t, []string{"http"}, extracts)
	assert.Equal(t, []string{"last-datapoint"}, transforms)
	assert.Equal(t, []string{"http", "kafka"}, loads)
	assert.Len(t, r.StatusConsumers(), 1)

	_, found := r.Extract("http")
	assert.True(t, found)
	_, found = r.Transform("threshold")
	assert.False(t, found)
}

func TestBuild_Duplicate(t *testing.T) {
	t.Parallel()

	_, err := Build(testModule, testModule)
	require.Error(t, err)
	assert.Equal(t, `invalid plugin registration:
- extract type "http" is already registered
- transform type "last-datapoint" is already registered
- load type "http" is already registered`, err.Error())
}

func TestRegistry_Check(t *testing.T) {
	t.Parallel()

	r, err := Build(testModule)
	require.NoError(t, err)

	valid := model.Configuration{
		Extract:   []model.Extract{{Type: "http"}},
		Transform: []model.Transform{{Type: "last-datapoint"}},
		Load:      []model.Load{{Type: "http"}},
	}
	require.NoError(t, r.Check(valid))

	invalid := model.Configuration{
		Extract:   []model.Extract{{Type: "http"}, {Type: "graphite"}},
		Transform: []model.Transform{{Type: "magic"}},
		Load:      []model.Load{{Type: "http"}},
	}
	err = r.Check(invalid)
	require.Error(t, err)
	assert.Equal(t, "- extract[1]: unknown extract type \"graphite\"\n- transform[0]: unknown transform type \"magic\"", err.Error())
}
