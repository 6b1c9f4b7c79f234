// Package pipeline runs the extract, transform and load stages of one configuration.
//
// Each item is isolated, a failure, a panic or a timeout of an item is reported
// as a status message and never aborts the other items.
package pipeline

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/gate"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
)

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	PluginRegistry() *registry.Registry
	StatusReporter() *status.Reporter
}

// Gates are lifecycle synchronization points, a nil gate never blocks.
type Gates struct {
	// BeforeExtract is passed before the extraction of each configuration starts.
	BeforeExtract *gate.Gate
	// BeforeLoad is passed before the load of each configuration starts.
	BeforeLoad *gate.Gate
	// RunCompleted is signalled when the orchestrator loop terminates.
	RunCompleted *gate.Gate
}

// Outcome summarizes one run of a configuration.
type Outcome struct {
	Identity        string
	Cancelled       bool
	Series          int
	ExtractFailed   int
	TransformFailed int
	Loaded          int
	LoadFailed      int
	LoadSkipped     int
}

type Runner struct {
	clock    clockwork.Clock
	logger   log.Logger
	registry *registry.Registry
	reporter *status.Reporter
	gates    Gates
	extract  *ExtractStage
	load     *LoadStage
}

func New(d dependencies, cfg Config, gates Gates) *Runner {
	return &Runner{
		clock:    d.Clock(),
		logger:   d.Logger().WithComponent("pipeline"),
		registry: d.PluginRegistry(),
		reporter: d.StatusReporter(),
		gates:    gates,
		extract:  newExtractStage(cfg, d.Clock(), d.PluginRegistry(), d.StatusReporter()),
		load:     newLoadStage(cfg, d.Clock(), d.PluginRegistry(), d.StatusReporter()),
	}
}

func (o Outcome) Failed() bool {
	return o.ExtractFailed > 0 || o.TransformFailed > 0 || o.LoadFailed > 0
}

// RunConfiguration runs extract, transform and load of the configuration and stamps its last-processed marker.
func (r *Runner) RunConfiguration(ctx context.Context, w *model.ConfigurationWrapper) Outcome {
	cfg := w.Configuration()
	identity := w.Identity()
	logger := r.logger.With(attribute.String("configuration", identity))
	out := Outcome{Identity: identity}

	if err := r.gates.BeforeExtract.Pass(ctx); err != nil {
		out.Cancelled = true
		return out
	}

	startTime := r.clock.Now()
	defer func() {
		w.MarkProcessed(startTime)
	}()

	// Extract
	var series []model.Series
	for _, result := range r.extract.Process(ctx, identity, cfg.Extract) {
		if result.Err != nil {
			out.ExtractFailed++
			continue
		}
		series = append(series, result.Series...)
	}

	// Transform
	chain, err := newTransformChain(r.clock, r.registry, r.reporter, cfg.Transform)
	if err != nil {
		// Every series would fail on the same transform
		out.TransformFailed = len(series)
		series = nil
		report(ctx, r.reporter, r.clock, status.StageTransform, identity, "", r.clock.Now(), status.OutcomeFailure, err)
	} else {
		transformed := chain.Apply(ctx, identity, series)
		out.TransformFailed = len(series) - len(transformed)
		series = transformed
	}
	out.Series = len(series)

	if err := r.gates.BeforeLoad.Pass(ctx); err != nil {
		out.Cancelled = true
		return out
	}

	// Load
	for _, result := range r.load.Process(ctx, identity, series, cfg.Load) {
		switch {
		case result.Skipped:
			out.LoadSkipped++
		case result.Err != nil:
			out.LoadFailed++
		default:
			out.Loaded++
		}
	}

	logger.
		WithDuration(r.clock.Since(startTime)).
		Debugf(ctx, `configuration "<configuration>" processed: series %d, loaded %d, failed extract %d, transform %d, load %d`, out.Series, out.Loaded, out.ExtractFailed, out.TransformFailed, out.LoadFailed)

	return out
}
