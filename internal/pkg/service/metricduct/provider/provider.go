// Package provider serves the current configuration snapshot.
//
// Only the master node reads configuration files. It publishes each new snapshot
// to the shared store and then swaps it into the local slot. Followers only read the shared store.
// A failed refresh never replaces the served snapshot, the last good snapshot is kept.
package provider

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/membership"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/snapshotstore"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type Role int32

const (
	RoleUninitialized Role = iota
	RoleMaster
	RoleFollower
)

const (
	sourceStartup = "startup"
	sourceTick    = "tick"
	sourceCatchUp = "catchUp"
	sourceWatch   = "watch"
	sourceStore   = "store"
)

// Loader reads all configurations, an error means the whole refresh failed.
type Loader interface {
	Load(ctx context.Context) ([]model.Configuration, error)
}

type dependencies interface {
	Clock() clockwork.Clock
	Logger() log.Logger
	MetricsRegisterer() prometheus.Registerer
	Membership() membership.Oracle
	SnapshotStore() snapshotstore.Store
	ConfigurationLoader() Loader
}

type Provider struct {
	config  Config
	clock   clockwork.Clock
	logger  log.Logger
	loader  Loader
	store   snapshotstore.Store
	oracle  membership.Oracle
	metrics *metrics

	role           *atomic.Int32
	snapshot       *atomic.Pointer[model.Snapshot]
	failures       *atomic.Int64
	catchUpRunning *atomic.Bool

	// updateLock serializes refreshes from the ticker, the catch-up and the file watcher
	updateLock *sync.Mutex
	refreshCh  chan struct{}
	wg         *sync.WaitGroup
}

func New(d dependencies, cfg Config) (*Provider, error) {
	m, err := newMetrics(d.MetricsRegisterer())
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:         cfg,
		clock:          d.Clock(),
		logger:         d.Logger().WithComponent("provider"),
		loader:         d.ConfigurationLoader(),
		store:          d.SnapshotStore(),
		oracle:         d.Membership(),
		metrics:        m,
		role:           atomic.NewInt32(int32(RoleUninitialized)),
		snapshot:       atomic.NewPointer(model.EmptySnapshot()),
		failures:       atomic.NewInt64(0),
		catchUpRunning: atomic.NewBool(false),
		updateLock:     &sync.Mutex{},
		refreshCh:      make(chan struct{}, 1),
		wg:             &sync.WaitGroup{},
	}, nil
}

// Run loads the first snapshot and starts the refresh loop in the background.
// On the master node, any error in the first load is returned, it is a startup failure.
// The loop stops when the ctx is cancelled, see Wait.
func (p *Provider) Run(ctx context.Context) error {
	master, err := p.oracle.IsMaster(ctx)
	if err != nil {
		return errors.PrefixError(err, "cannot determine node role")
	}

	role := p.setRole(ctx, master)
	p.logger.Infof(ctx, `starting configuration provider as %s`, role)

	// Both roles continue from the shared snapshot, so the master increments the stored revision
	if err := p.syncFromStore(ctx); err != nil {
		return errors.PrefixError(err, "cannot read shared snapshot")
	}

	if role == RoleMaster {
		if err := p.update(ctx, sourceStartup); err != nil {
			return err
		}
	}

	// The ticker is created before Run returns, so a test clock can be advanced immediately
	ticker := p.clock.NewTicker(p.config.RefreshInterval)

	if p.config.WatchFiles {
		if err := p.watch(ctx); err != nil {
			ticker.Stop()
			return err
		}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.tick(ctx)
			case <-p.refreshCh:
				if p.Role() == RoleMaster {
					_ = p.update(ctx, sourceWatch)
				}
			}
		}
	}()

	return nil
}

// Wait for the background goroutines after the Run ctx has been cancelled.
func (p *Provider) Wait() {
	p.wg.Wait()
}

// Get returns the latest published snapshot, it never blocks.
func (p *Provider) Get() *model.Snapshot {
	return p.snapshot.Load()
}

func (p *Provider) Role() Role {
	return Role(p.role.Load())
}

func (p *Provider) IsMaster() bool {
	return p.Role() == RoleMaster
}

// Failures returns the number of failed refreshes.
func (p *Provider) Failures() int64 {
	return p.failures.Load()
}

// MarkFailure records a failed refresh.
func (p *Provider) MarkFailure() {
	p.failures.Inc()
	p.metrics.failures.Inc()
}

// UpdateConfigurations re-reads all configurations and publishes a new snapshot.
// On failure the last good snapshot is kept and the error is returned.
// Only the master node can update configurations.
func (p *Provider) UpdateConfigurations(ctx context.Context) error {
	return p.update(ctx, sourceTick)
}

// SyncFromStore replaces the local snapshot with the shared one, it is used by followers.
func (p *Provider) SyncFromStore(ctx context.Context) error {
	if err := p.syncFromStore(ctx); err != nil {
		p.fail(ctx, sourceStore, err)
		return err
	}
	return nil
}

func (p *Provider) tick(ctx context.Context) {
	previous := p.Role()
	master, err := p.oracle.IsMaster(ctx)
	if err != nil {
		p.logger.Warnf(ctx, `cannot determine node role, keeping role %s: %s`, previous, errors.Format(err))
		master = previous == RoleMaster
	}

	current := p.setRole(ctx, master)
	switch {
	case current == RoleMaster && previous != RoleMaster:
		p.logger.Infof(ctx, `node became master, catching up in the %s mode`, p.config.CatchUp)
		p.catchUp(ctx)
	case current == RoleMaster:
		_ = p.update(ctx, sourceTick)
	default:
		if previous == RoleMaster {
			p.logger.Info(ctx, "node became follower")
		}
		_ = p.SyncFromStore(ctx)
	}
}

func (p *Provider) catchUp(ctx context.Context) {
	if CatchUpMode(p.config.CatchUp) != CatchUpAsync {
		_ = p.update(ctx, sourceCatchUp)
		return
	}

	// Concurrent catch-ups are coalesced
	if !p.catchUpRunning.CompareAndSwap(false, true) {
		p.logger.Debug(ctx, "catch-up is already running")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.catchUpRunning.Store(false)
		_ = p.update(ctx, sourceCatchUp)
	}()
}

func (p *Provider) update(ctx context.Context, source string) error {
	p.updateLock.Lock()
	defer p.updateLock.Unlock()

	if p.Role() != RoleMaster {
		return errors.New("configurations can be updated only by the master node")
	}

	startTime := p.clock.Now()
	cfgs, err := p.loader.Load(ctx)
	if err != nil {
		p.fail(ctx, source, err)
		return err
	}

	previous := p.Get()
	snapshot := model.NewSnapshot(model.SnapshotData{
		Revision:       previous.Revision() + 1,
		CreatedAt:      p.clock.Now(),
		Configurations: cfgs,
	}, previous)

	// The shared store goes first, the local slot is not updated if the publication fails
	if err := p.store.Put(ctx, snapshot.Data()); err != nil {
		err = errors.PrefixError(err, "cannot publish snapshot")
		p.fail(ctx, source, err)
		return err
	}

	p.publish(snapshot)
	p.metrics.refreshes.WithLabelValues(source, "success").Inc()
	p.logger.
		WithDuration(p.clock.Since(startTime)).
		With(attribute.Int64("snapshot.revision", snapshot.Revision()), attribute.Int("snapshot.size", snapshot.Len())).
		Infof(ctx, `published snapshot revision <snapshot.revision> with <snapshot.size> configurations (%s)`, source)
	return nil
}

func (p *Provider) syncFromStore(ctx context.Context) error {
	p.updateLock.Lock()
	defer p.updateLock.Unlock()

	data, found, err := p.store.Get(ctx)
	if err != nil {
		return err
	}
	if !found {
		p.logger.Debug(ctx, "no snapshot in the shared store")
		return nil
	}

	previous := p.Get()
	if data.Revision == previous.Revision() {
		return nil
	}

	snapshot := model.NewSnapshot(data, previous)
	p.publish(snapshot)
	p.metrics.refreshes.WithLabelValues(sourceStore, "success").Inc()
	p.logger.
		With(attribute.Int64("snapshot.revision", snapshot.Revision()), attribute.Int("snapshot.size", snapshot.Len())).
		Info(ctx, `synced snapshot revision <snapshot.revision> with <snapshot.size> configurations from the shared store`)
	return nil
}

func (p *Provider) publish(snapshot *model.Snapshot) {
	p.snapshot.Store(snapshot)
	p.metrics.snapshotSize.Set(float64(snapshot.Len()))
	p.metrics.snapshotRev.Set(float64(snapshot.Revision()))
}

func (p *Provider) fail(ctx context.Context, source string, err error) {
	p.MarkFailure()
	p.metrics.refreshes.WithLabelValues(source, "failure").Inc()
	p.logger.Errorf(ctx, `configuration refresh failed (%s), serving snapshot revision %d: %s`, source, p.Get().Revision(), errors.Format(err))
}

func (p *Provider) setRole(ctx context.Context, master bool) Role {
	role := RoleFollower
	if master {
		role = RoleMaster
	}
	if Role(p.role.Swap(int32(role))) != role {
		p.logger.Debugf(ctx, `role set to %s`, role)
	}
	if master {
		p.metrics.masterGauge.Set(1)
	} else {
		p.metrics.masterGauge.Set(0)
	}
	return role
}

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleFollower:
		return "follower"
	default:
		return "uninitialized"
	}
}
