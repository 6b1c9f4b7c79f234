// Package orchestrator runs processing cycles at a fixed cadence.
//
// Each cycle reads the current snapshot once and runs the pipeline for each due configuration.
// Only the master node processes configurations, the membership oracle is asked at the start of each cycle.
// Stop is cooperative:
// no new cycle starts after the request and the in-flight cycle is finished.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/keboola/metric-duct/internal/pkg/ctxattr"
	"github.com/keboola/metric-duct/internal/pkg/idgenerator"
	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/membership"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/gate"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/pipeline"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// SnapshotSource is implemented by the provider.Provider.
type SnapshotSource interface {
	Get() *model.Snapshot
}

// Runner is implemented by the pipeline.Runner.
type Runner interface {
	RunConfiguration(ctx context.Context, w *model.ConfigurationWrapper) pipeline.Outcome
}

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	Membership() membership.Oracle
	StatusReporter() *status.Reporter
}

type Orchestrator struct {
	config       Config
	clock        clockwork.Clock
	logger       log.Logger
	reporter     *status.Reporter
	oracle       membership.Oracle
	source       SnapshotSource
	runner       Runner
	runCompleted *gate.Gate

	started  *atomic.Bool
	cycles   *atomic.Int64
	stopOnce *sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func New(d dependencies, cfg Config, source SnapshotSource, runner Runner, runCompleted *gate.Gate) *Orchestrator {
	return &Orchestrator{
		config:       cfg,
		clock:        d.Clock(),
		logger:       d.Logger().WithComponent("orchestrator"),
		reporter:     d.StatusReporter(),
		oracle:       d.Membership(),
		source:       source,
		runner:       runner,
		runCompleted: runCompleted,
		started:      atomic.NewBool(false),
		cycles:       atomic.NewInt64(0),
		stopOnce:     &sync.Once{},
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the first cycle immediately and then one cycle per CycleInterval.
// The loop ends on Stop or when the ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator has already been started")
	}

	// The ticker is created before Start returns, so a test clock can be advanced immediately
	ticker := o.clock.NewTicker(o.config.CycleInterval)

	o.logger.Infof(ctx, `orchestrator started, cycle interval %s`, o.config.CycleInterval)

	go func() {
		defer func() {
			o.logger.Info(ctx, "orchestrator stopped")
			o.runCompleted.Signal()
			close(o.done)
		}()
		defer ticker.Stop()

		for {
			if o.stopRequested(ctx) {
				return
			}

			o.runCycle(ctx)

			select {
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}
		}
	}()

	return nil
}

// Stop requests the loop termination, it does not wait, see Done.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
}

// Done is closed when the loop has terminated.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Cycles returns the number of finished cycles.
func (o *Orchestrator) Cycles() int64 {
	return o.cycles.Load()
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	select {
	case <-o.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	cycleID := idgenerator.CycleID()
	ctx = ctxattr.ContextWith(ctx, attribute.String("cycle.id", cycleID))
	startTime := o.clock.Now()

	// Followers never drive side effects.
	// The role is not cached, a node which has just lost the master role stops immediately.
	master, err := o.oracle.IsMaster(ctx)
	if err != nil {
		o.logger.Warnf(ctx, `cycle "<cycle.id>" skipped, cannot determine node role: %s`, errors.Format(err))
		o.report(ctx, cycleID, startTime, status.OutcomeSkipped, errors.PrefixError(err, "cannot determine node role"))
		return
	}
	if !master {
		o.logger.Debug(ctx, `cycle "<cycle.id>" skipped, the node is not master`)
		o.report(ctx, cycleID, startTime, status.OutcomeSkipped, errors.New("the node is not master"))
		return
	}

	// The snapshot is read once, a concurrent refresh affects only the next cycle
	snapshot := o.source.Get()

	var due []*model.ConfigurationWrapper
	for _, w := range snapshot.All() {
		if w.Due(startTime) {
			due = append(due, w)
		}
	}

	outcomes := make([]pipeline.Outcome, len(due))
	grp := &errgroup.Group{}
	grp.SetLimit(o.config.ConfigurationConcurrency)
	for i, w := range due {
		if ctx.Err() != nil {
			outcomes[i] = pipeline.Outcome{Identity: w.Identity(), Cancelled: true}
			continue
		}
		grp.Go(func() error {
			outcomes[i] = o.runner.RunConfiguration(ctx, w)
			return nil
		})
	}
	_ = grp.Wait()

	var failed, cancelled int
	for _, out := range outcomes {
		switch {
		case out.Cancelled:
			cancelled++
		case out.Failed():
			failed++
		}
	}

	o.cycles.Inc()

	var cause error
	outcome := status.OutcomeSuccess
	if failed > 0 || cancelled > 0 {
		outcome = status.OutcomeFailure
		cause = errors.Errorf("%d of %d configurations failed, %d cancelled", failed, len(due), cancelled)
	}
	o.report(ctx, cycleID, startTime, outcome, cause)

	o.logger.
		WithDuration(o.clock.Since(startTime)).
		With(attribute.Int64("snapshot.revision", snapshot.Revision())).
		Infof(ctx, `cycle "<cycle.id>" finished: processed %d, failed %d, not due %d, snapshot revision <snapshot.revision>`, len(due), failed, snapshot.Len()-len(due))
}

func (o *Orchestrator) report(ctx context.Context, cycleID string, startTime time.Time, outcome status.Outcome, cause error) {
	now := o.clock.Now()
	o.reporter.Report(ctx, status.Message{
		Stage:    status.StageCycle,
		Item:     cycleID,
		Outcome:  outcome,
		Cause:    cause,
		Duration: now.Sub(startTime),
		Time:     now,
	})
}
