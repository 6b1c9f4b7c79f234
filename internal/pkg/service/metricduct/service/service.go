// Package service starts all components of a Metric Duct node.
//
// The configuration provider publishes snapshots, the orchestrator runs the pipeline for due configurations,
// and the optional HTTP server exposes Prometheus metrics.
// All components are stopped gracefully on the process shutdown:
// the orchestrator finishes the in-flight cycle first, then the provider loop is stopped.
package service

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/httpserver"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/dependencies"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/orchestrator"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/pipeline"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/provider"
)

const MetricsPath = "/metrics"

type Service struct {
	logger       log.Logger
	provider     *provider.Provider
	orchestrator *orchestrator.Orchestrator
	metrics      *httpserver.HTTPServer
}

type Option func(c *options)

type options struct {
	gates pipeline.Gates
}

// WithGates sets lifecycle gates of the pipeline, it is used by tests.
func WithGates(v pipeline.Gates) Option {
	return func(c *options) {
		c.gates = v
	}
}

// Start the node, any returned error is a startup failure.
func Start(ctx context.Context, d dependencies.ServiceScope, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := d.Config()
	s := &Service{logger: d.Logger()}
	s.logger.Infof(ctx, `starting Metric Duct node "%s"`, d.NodeID())

	// Metrics endpoint
	if cfg.Metrics.Listen != "" {
		s.metrics = httpserver.New(d, httpserver.Config{
			ListenAddress: cfg.Metrics.Listen,
			Mount: func(mux *http.ServeMux) {
				mux.Handle(MetricsPath, promhttp.HandlerFor(d.MetricsRegistry(), promhttp.HandlerOpts{}))
			},
		})
		if err := s.metrics.Start(ctx); err != nil {
			return nil, err
		}
	}

	// Configuration provider
	p, err := provider.New(d, cfg.Provider)
	if err != nil {
		return nil, err
	}
	providerCtx, cancelProvider := context.WithCancel(ctx)
	if err := p.Run(providerCtx); err != nil {
		cancelProvider()
		return nil, err
	}
	s.provider = p
	d.Process().OnShutdown(func(ctx context.Context) {
		cancelProvider()
		p.Wait()
		s.logger.Info(ctx, "configuration provider stopped")
	})

	// Orchestrator
	runner := pipeline.New(d, cfg.Pipeline, o.gates)
	s.orchestrator = orchestrator.New(d, cfg.Orchestrator, p, runner, o.gates.RunCompleted)
	if err := s.orchestrator.Start(ctx); err != nil {
		return nil, err
	}
	d.Process().OnShutdown(func(ctx context.Context) {
		s.orchestrator.Stop()
		<-s.orchestrator.Done()
	})

	return s, nil
}

// Validate loads all configuration files once, without starting the node.
func Validate(ctx context.Context, d dependencies.ServiceScope) ([]model.Configuration, error) {
	return d.ConfigurationLoader().Load(ctx)
}

func (s *Service) Provider() *provider.Provider {
	return s.provider
}

func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// MetricsAddr returns the address of the metrics endpoint, it is empty if the endpoint is disabled.
func (s *Service) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr()
}
