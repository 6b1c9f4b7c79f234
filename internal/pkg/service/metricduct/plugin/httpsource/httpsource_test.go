package httpsource

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/metric-duct/internal/pkg/service/common/httpclient"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
)

func newTestSource(t *testing.T) (*Source, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg := httpclient.NewConfig()
	cfg.RetryCount = 1
	cfg.RetryWaitTime = time.Millisecond
	cfg.RetryMaxWaitTime = time.Millisecond
	return New(httpclient.New(cfg, httpclient.WithTransport(transport))), transport
}

func TestSource_Extract(t *testing.T) {
	t.Parallel()

	source, transport := newTestSource(t)
	transport.RegisterResponderWithQuery(http.MethodGet, "https://metrics.example.com/query", "expr=cpu", httpmock.NewJsonResponderOrPanic(http.StatusOK, []map[string]any{
		{"points": []map[string]any{{"time": "2025-01-01T00:00:00Z", "value": 0.5}}},
		{"name": "cpu.max", "points": []map[string]any{{"time": "2025-01-01T00:00:00Z", "value": 0.9}}},
	}))

	series, err := source.Extract(context.Background(), model.Extract{
		Type:   Type,
		Source: "https://metrics.example.com/query",
		Name:   "cpu",
		Params: map[string]any{"query": map[string]any{"expr": "cpu"}},
	})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "cpu", series[0].Name)
	assert.Equal(t, "cpu.max", series[1].Name)
	assert.Equal(t, []model.Point{{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Value: 0.9}}, series[1].Points)
}

func TestSource_Extract_ISO8601(t *testing.T) {
	t.Parallel()

	source, transport := newTestSource(t)
	transport.RegisterResponder(http.MethodGet, "https://metrics.example.com/query", httpmock.NewJsonResponderOrPanic(http.StatusOK, []map[string]any{
		{"name": "disk", "tags": map[string]string{"host": "a"}, "points": []map[string]any{
			{"time": "2025-01-01T10:00:00", "value": 1},
			{"time": "2025-01-01T12:00:00+02:00", "value": 2},
		}},
	}))

	series, err := source.Extract(context.Background(), model.Extract{Type: Type, Source: "https://metrics.example.com/query", Name: "disk"})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, map[string]string{"host": "a"}, series[0].Tags)
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, []model.Point{{Time: t0, Value: 1}, {Time: t0, Value: 2}}, series[0].Points)
}

func TestSource_Extract_Post(t *testing.T) {
	t.Parallel()

	source, transport := newTestSource(t)
	transport.RegisterResponder(http.MethodPost, "https://metrics.example.com/query", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("X-Token") != "secret" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{{"name": "requests", "points": []any{}}})
	})

	series, err := source.Extract(context.Background(), model.Extract{
		Type:   Type,
		Source: "https://metrics.example.com/query",
		Name:   "requests",
		Params: map[string]any{
			"method":  "POST",
			"headers": map[string]any{"X-Token": "secret"},
			"body":    map[string]any{"expr": "sum(requests)"},
		},
	})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "requests", series[0].Name)
}

func TestSource_Extract_Error(t *testing.T) {
	t.Parallel()

	source, transport := newTestSource(t)
	transport.RegisterResponder(http.MethodGet, "https://metrics.example.com/query", httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	_, err := source.Extract(context.Background(), model.Extract{Type: Type, Source: "https://metrics.example.com/query", Name: "cpu"})
	require.Error(t, err)
	assert.Equal(t, `request to "https://metrics.example.com/query" failed: unexpected status 503`, err.Error())

	// The request has been retried
	assert.Equal(t, 2, transport.GetCallCountInfo()["GET https://metrics.example.com/query"])
}

func TestSource_Extract_InvalidParams(t *testing.T) {
	t.Parallel()

	source, _ := newTestSource(t)
	_, err := source.Extract(context.Background(), model.Extract{
		Type:   Type,
		Source: "https://metrics.example.com/query",
		Name:   "cpu",
		Params: map[string]any{"method": "DELETE"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid params: "method" must be one of [GET POST]`)
}
