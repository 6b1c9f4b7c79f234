// Package httpsource extracts series from an HTTP endpoint returning JSON.
//
// The endpoint must return a JSON array of series:
//
//	[{"name": "cpu", "points": [{"time": "2025-01-01T00:00:00Z", "value": 0.5}]}]
//
// A series without a name gets the name of the extract item.
// Point times may use any ISO 8601 form, a time without a zone is UTC.
package httpsource

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/relvacode/iso8601"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const Type = "http"

type Params struct {
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is sent as JSON, if the method is POST.
	Body map[string]any `json:"body,omitempty"`
}

type responseSeries struct {
	Name     string            `json:"name"`
	Points   []responsePoint   `json:"points"`
	Messages []string          `json:"messages,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

type responsePoint struct {
	Time  iso8601.Time `json:"time"`
	Value float64      `json:"value"`
}

type Source struct {
	client *resty.Client
}

func New(client *resty.Client) *Source {
	return &Source{client: client}
}

func Module(client *resty.Client) registry.Module {
	return func(b *registry.Builder) {
		b.AddExtract(Type, New(client))
	}
}

func (s *Source) Extract(ctx context.Context, item model.Extract) ([]model.Series, error) {
	var p Params
	if err := params.Decode(ctx, item.Params, &p); err != nil {
		return nil, err
	}

	var body []responseSeries
	req := s.client.R().
		SetContext(ctx).
		SetQueryParams(p.Query).
		SetHeaders(p.Headers).
		SetHeader("Accept", "application/json").
		SetResult(&body)

	var res *resty.Response
	var err error
	if p.Method == "POST" {
		res, err = req.SetBody(p.Body).Post(item.Source)
	} else {
		res, err = req.Get(item.Source)
	}

	if err != nil {
		return nil, errors.PrefixErrorf(err, `request to "%s" failed`, item.Source)
	}
	if res.IsError() {
		return nil, errors.Errorf(`request to "%s" failed: unexpected status %d`, item.Source, res.StatusCode())
	}

	out := make([]model.Series, 0, len(body))
	for _, raw := range body {
		series := model.Series{Name: raw.Name, Messages: raw.Messages, Tags: raw.Tags}
		if series.Name == "" {
			series.Name = item.Name
		}
		for _, point := range raw.Points {
			series.Points = append(series.Points, model.Point{Time: point.Time.UTC(), Value: point.Value})
		}
		out = append(out, series)
	}
	return out, nil
}
