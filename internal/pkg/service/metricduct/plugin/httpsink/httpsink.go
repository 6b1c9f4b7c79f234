// Package httpsink delivers series to an HTTP endpoint, for example an alerting system.
package httpsink

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const Type = "http"

type Params struct {
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Payload is the request body.
type Payload struct {
	Name   string         `json:"name,omitempty"`
	Series []model.Series `json:"series"`
}

type Sink struct {
	client *resty.Client
}

func New(client *resty.Client) *Sink {
	return &Sink{client: client}
}

func Module(client *resty.Client) registry.Module {
	return func(b *registry.Builder) {
		b.AddLoad(Type, New(client))
	}
}

func (s *Sink) Load(ctx context.Context, item model.Load, series []model.Series) error {
	var p Params
	if err := params.Decode(ctx, item.Params, &p); err != nil {
		return err
	}
	if p.Method == "" {
		p.Method = resty.MethodPost
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetHeaders(p.Headers).
		SetBody(Payload{Name: item.Name, Series: series}).
		Execute(p.Method, item.Destination)
	if err != nil {
		return errors.PrefixErrorf(err, `request to "%s" failed`, item.Destination)
	}
	if res.IsError() {
		return errors.Errorf(`request to "%s" failed: unexpected status %d`, item.Destination, res.StatusCode())
	}
	return nil
}
