package duration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/service/common/duration"
)

type Data struct {
	Duration duration.Duration `json:"duration" yaml:"duration"`
}

func TestDuration_Marshal_JSON(t *testing.T) {
	t.Parallel()
	out, err := json.EncodeString(Data{Duration: duration.From(90 * time.Second)}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"duration":"1m30s"}`, out)
}

func TestDuration_Marshal_YAML(t *testing.T) {
	t.Parallel()
	out, err := yaml.Marshal(Data{Duration: duration.From(90 * time.Second)})
	require.NoError(t, err)
	assert.YAMLEq(t, "duration: 1m30s\n", string(out))
}

func TestDuration_Unmarshal_JSON(t *testing.T) {
	t.Parallel()

	var data Data
	require.NoError(t, json.DecodeString(`{"duration":"1m30s"}`, &data))
	assert.Equal(t, 90*time.Second, data.Duration.Duration())

	require.NoError(t, json.DecodeString(`{"duration":1500}`, &data))
	assert.Equal(t, 1500*time.Millisecond, data.Duration.Duration())

	require.Error(t, json.DecodeString(`{"duration":"-1s"}`, &data))
	require.Error(t, json.DecodeString(`{"duration":true}`, &data))
}

func TestDuration_Unmarshal_YAML(t *testing.T) {
	t.Parallel()

	var data Data
	require.NoError(t, yaml.Unmarshal([]byte("duration: 1m30s\n"), &data))
	assert.Equal(t, 90*time.Second, data.Duration.Duration())

	require.NoError(t, yaml.Unmarshal([]byte("duration: 1500\n"), &data))
	assert.Equal(t, 1500*time.Millisecond, data.Duration.Duration())
}
