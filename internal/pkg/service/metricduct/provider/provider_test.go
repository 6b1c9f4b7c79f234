package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/membership"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/intake"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/snapshotstore"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type testDeps struct {
	clock    clockwork.Clock
	logger   log.DebugLogger
	registry *prometheus.Registry
	oracle   *membership.Switchable
	store    *snapshotstore.Memory
	loader   Loader
}

func (d *testDeps) Clock() clockwork.Clock { return d.clock }
func (d *testDeps) Logger() log.Logger { return d.logger }
func (d *testDeps) MetricsRegisterer() prometheus.Registerer { return d.registry }
func (d *testDeps) Membership() membership.Oracle { return d.oracle }
func (d *testDeps) SnapshotStore() snapshotstore.Store { return d.store }
func (d *testDeps) ConfigurationLoader() Loader { return d.loader }

// testLoader returns the configured result and counts calls.
type testLoader struct {
	calls   *atomic.Int64
	cfgs    *atomic.Pointer[[]model.Configuration]
	err     *atomic.Error
	blockCh chan struct{}
}

func newTestLoader(cfgs ...model.Configuration) *testLoader {
	return &testLoader{calls: atomic.NewInt64(0), cfgs: atomic.NewPointer(&cfgs), err: atomic.NewError(nil)}
}

func (l *testLoader) Set(cfgs ...model.Configuration) {
	l.cfgs.Store(&cfgs)
}

func (l *testLoader) Load(ctx context.Context) ([]model.Configuration, error) {
	l.calls.Inc()
	if l.blockCh != nil {
		select {
		case <-l.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := l.err.Load(); err != nil {
		return nil, err
	}
	return *l.cfgs.Load(), nil
}

func newTestDeps(master bool, loader Loader) *testDeps {
	return &testDeps{
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		logger:   log.NewDebugLogger(),
		registry: prometheus.NewRegistry(),
		oracle:   membership.NewSwitchable(master),
		store:    snapshotstore.NewMemory(),
		loader:   loader,
	}
}

func newTestProvider(t *testing.T, d *testDeps, cfg Config) *Provider {
	t.Helper()
	p, err := New(d, cfg)
	require.NoError(t, err)
	return p
}

func runProvider(t *testing.T, p *Provider) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		p.Wait()
	})
	require.NoError(t, p.Run(ctx))
}

func testConfig(name string) model.Configuration {
	return model.Configuration{
		Extract: []model.Extract{{Type: "http", Source: "https://metrics.example.com", Name: name}},
		Load:    []model.Load{{Type: "http", Destination: "https://alerts.example.com"}},
	}
}

func TestProvider_Master(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	loader := newTestLoader(testConfig("cpu"))
	d := newTestDeps(true, loader)
	p := newTestProvider(t, d, cfg)

	// Empty snapshot before the first load
	assert.Equal(t, int64(0), p.Get().Revision())
	assert.Equal(t, 0, p.Get().Len())

	runProvider(t, p)
	assert.True(t, p.IsMaster())
	assert.Equal(t, int64(1), loader.calls.Load())
	first := p.Get()
	assert.Equal(t, int64(1), first.Revision())
	assert.Equal(t, 1, first.Len())

	// Snapshot is published to the shared store
	data, found, err := d.store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first.Data(), data)

	// Refresh on tick, the unchanged configuration keeps its wrapper
	cpu := first.All()[0]
	processedAt := d.clock.Now()
	cpu.MarkProcessed(processedAt)
	loader.Set(testConfig("cpu"), testConfig("memory"))
	d.clock.(*clockwork.FakeClock).Advance(cfg.RefreshInterval)
	assert.Eventually(t, func() bool {
		return p.Get().Revision() == 2
	}, 5*time.Second, 10*time.Millisecond)

	second := p.Get()
	assert.Equal(t, 2, second.Len())
	wrapper, found := second.Lookup(cpu.Hash())
	require.True(t, found)
	assert.Same(t, cpu, wrapper)
	assert.Equal(t, processedAt, wrapper.LastProcessed())

	// The old snapshot is not modified
	assert.Equal(t, 1, first.Len())

	assert.Equal(t, float64(2), testutil.ToFloat64(p.metrics.snapshotSize))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.masterGauge))
	assert.Contains(t, d.logger.InfoMessages(), "published snapshot revision 2 with 2 configurations (tick)")
}

func TestProvider_Master_StartupError(t *testing.T) {
	t.Parallel()

	loader := newTestLoader()
	loader.err.Store(errors.New("invalid configuration file \"a.json\""))
	p := newTestProvider(t, newTestDeps(true, loader), NewConfig())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, `invalid configuration file "a.json"`, err.Error())
	assert.Equal(t, int64(0), p.Get().Revision())
	assert.Equal(t, int64(1), p.Failures())
}

func TestProvider_Master_ContinuesStoredRevision(t *testing.T) {
	t.Parallel()

	d := newTestDeps(true, newTestLoader(testConfig("cpu")))
	require.NoError(t, d.store.Put(context.Background(), model.SnapshotData{Revision: 7}))
	p := newTestProvider(t, d, NewConfig())

	runProvider(t, p)
	assert.Equal(t, int64(8), p.Get().Revision())
}

func TestProvider_FailedRefreshKeepsSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loader := newTestLoader(testConfig("cpu"))
	d := newTestDeps(true, loader)
	p := newTestProvider(t, d, NewConfig())
	runProvider(t, p)
	good := p.Get()

	// Load failure
	loader.err.Store(errors.New("some error"))
	err := p.UpdateConfigurations(ctx)
	require.Error(t, err)
	assert.Equal(t, "some error", err.Error())
	assert.Same(t, good, p.Get())
	assert.Equal(t, int64(1), p.Failures())
	assert.Contains(t, d.logger.ErrorMessages(), "configuration refresh failed (tick), serving snapshot revision 1: some error")

	// Publication failure
	loader.err.Store(nil)
	loader.Set(testConfig("memory"))
	d.store.SetError(errors.New("store is down"))
	err = p.UpdateConfigurations(ctx)
	require.Error(t, err)
	assert.Equal(t, "cannot publish snapshot: store is down", err.Error())
	assert.Same(t, good, p.Get())
	assert.Equal(t, int64(2), p.Failures())
	assert.Equal(t, float64(2), testutil.ToFloat64(p.metrics.failures))

	// Recovery
	d.store.SetError(nil)
	require.NoError(t, p.UpdateConfigurations(ctx))
	assert.Equal(t, int64(2), p.Get().Revision())
}

func TestProvider_Follower(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := NewConfig()
	loader := newTestLoader(testConfig("cpu"))
	d := newTestDeps(false, loader)
	require.NoError(t, d.store.Put(ctx, model.SnapshotData{Revision: 5, Configurations: []model.Configuration{testConfig("cpu")}}))
	p := newTestProvider(t, d, cfg)

	runProvider(t, p)
	assert.False(t, p.IsMaster())
	assert.Equal(t, RoleFollower, p.Role())
	assert.Equal(t, int64(5), p.Get().Revision())
	assert.Equal(t, 1, p.Get().Len())

	// Follower reads the shared store on tick
	require.NoError(t, d.store.Put(ctx, model.SnapshotData{Revision: 6, Configurations: []model.Configuration{testConfig("cpu"), testConfig("memory")}}))
	d.clock.(*clockwork.FakeClock).Advance(cfg.RefreshInterval)
	assert.Eventually(t, func() bool {
		return p.Get().Revision() == 6
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, p.Get().Len())

	// Follower never reads configuration files
	err := p.UpdateConfigurations(ctx)
	require.Error(t, err)
	assert.Equal(t, "configurations can be updated only by the master node", err.Error())
	assert.Equal(t, int64(0), loader.calls.Load())
}

func TestProvider_Follower_StoreError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := newTestDeps(false, newTestLoader())
	require.NoError(t, d.store.Put(ctx, model.SnapshotData{Revision: 3}))
	p := newTestProvider(t, d, NewConfig())
	runProvider(t, p)

	d.store.SetError(errors.New("store is down"))
	require.Error(t, p.SyncFromStore(ctx))
	assert.Equal(t, int64(3), p.Get().Revision())
	assert.Equal(t, int64(1), p.Failures())
}

func TestProvider_CatchUp_Blocking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loader := newTestLoader(testConfig("cpu"))
	d := newTestDeps(false, loader)
	require.NoError(t, d.store.Put(ctx, model.SnapshotData{Revision: 3}))
	p := newTestProvider(t, d, NewConfig())
	runProvider(t, p)
	assert.Equal(t, int64(0), loader.calls.Load())

	// The node became master, the tick waits for the catch-up
	d.oracle.Set(true)
	p.tick(ctx)
	assert.True(t, p.IsMaster())
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.Equal(t, int64(4), p.Get().Revision())
	assert.Contains(t, d.logger.InfoMessages(), "node became master, catching up in the blocking mode")

	// The node lost the master role
	d.oracle.Set(false)
	p.tick(ctx)
	assert.Equal(t, RoleFollower, p.Role())
	assert.Equal(t, int64(1), loader.calls.Load())
	assert.Contains(t, d.logger.InfoMessages(), "node became follower")
}

func TestProvider_CatchUp_Async(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := NewConfig()
	cfg.CatchUp = string(CatchUpAsync)
	loader := newTestLoader(testConfig("cpu"))
	loader.blockCh = make(chan struct{})
	d := newTestDeps(false, loader)
	p := newTestProvider(t, d, cfg)
	runProvider(t, p)

	// The tick returns before the catch-up is done
	d.oracle.Set(true)
	p.tick(ctx)
	assert.True(t, p.IsMaster())
	assert.Eventually(t, func() bool {
		return loader.calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), p.Get().Revision())

	// Concurrent catch-ups are coalesced
	p.catchUp(ctx)
	assert.Contains(t, d.logger.DebugMessages(), "catch-up is already running")

	close(loader.blockCh)
	assert.Eventually(t, func() bool {
		return p.Get().Revision() == 1 && !p.catchUpRunning.Load()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), loader.calls.Load())
}

func TestProvider_OracleError_KeepsRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loader := newTestLoader(testConfig("cpu"))
	d := newTestDeps(true, loader)
	p := newTestProvider(t, d, NewConfig())
	runProvider(t, p)

	d.oracle.SetError(errors.New("etcd is unavailable"))
	p.tick(ctx)
	assert.True(t, p.IsMaster())
	assert.Equal(t, int64(2), p.Get().Revision())
	assert.Contains(t, d.logger.WarnMessages(), "cannot determine node role, keeping role master: etcd is unavailable")
}

func TestProvider_Run_OracleError(t *testing.T) {
	t.Parallel()

	d := newTestDeps(true, newTestLoader())
	d.oracle.SetError(errors.New("etcd is unavailable"))
	p := newTestProvider(t, d, NewConfig())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "cannot determine node role: etcd is unavailable", err.Error())
	assert.Equal(t, RoleUninitialized, p.Role())
}

func TestProvider_WatchFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := log.NewDebugLogger()
	loader := intake.NewLoader(afero.NewOsFs(), logger, intake.Config{Dir: dir, Suffixes: []string{".json"}})

	cfg := NewConfig()
	cfg.RefreshInterval = time.Hour
	cfg.WatchFiles = true
	d := newTestDeps(true, loader)
	d.clock = clockwork.NewRealClock()
	d.logger = logger
	p := newTestProvider(t, d, cfg)
	runProvider(t, p)
	assert.Equal(t, 0, p.Get().Len())

	content := `{
  "extract": [{"type": "http", "source": "https://metrics.example.com", "name": "cpu"}],
  "load": [{"type": "http", "destination": "https://alerts.example.com"}]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu.json"), []byte(content), 0o600))
	assert.Eventually(t, func() bool {
		return p.Get().Len() == 1
	}, 10*time.Second, 50*time.Millisecond)
	assert.Contains(t, logger.InfoMessages(), "(watch)")
}

func TestRole_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "master", RoleMaster.String())
	assert.Equal(t, "follower", RoleFollower.String())
	assert.Equal(t, "uninitialized", RoleUninitialized.String())
}

func TestProvider_Master_FileLoader(t *testing.T) {
	t.Parallel()

	const (
		dir = "/etc/duct"
		cpu = `{"extract": [{"type": "http", "source": "https://metrics.example.com", "name": "cpu"}], "load": [{"type": "http", "destination": "https://alerts.example.com"}]}`
		mem = `{"extract": [{"type": "http", "source": "https://metrics.example.com", "name": "memory"}], "load": [{"type": "http", "destination": "https://alerts.example.com"}]}`
	)

	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "a.json"), []byte("["+cpu+"]"), 0o644))

	d := newTestDeps(true, nil)
	d.loader = intake.NewLoader(fs, d.logger, intake.Config{Dir: dir, Suffixes: []string{".json"}})
	p := newTestProvider(t, d, NewConfig())
	runProvider(t, p)

	before := p.Get()
	assert.Equal(t, int64(1), before.Revision())
	assert.Equal(t, 1, before.Len())

	// Files are modified, the next refresh publishes a different snapshot
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "b.json"), []byte("["+mem+"]"), 0o644))
	require.NoError(t, p.UpdateConfigurations(ctx))
	after := p.Get()
	assert.Equal(t, int64(2), after.Revision())
	assert.Equal(t, 2, after.Len())
	assert.Equal(t, int64(0), p.Failures())

	// The directory disappears, the refresh fails and the last good snapshot is served
	require.NoError(t, fs.RemoveAll(dir))
	err := p.UpdateConfigurations(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `configuration directory "/etc/duct" not found`)
	assert.Equal(t, int64(1), p.Failures())
	assert.Same(t, after, p.Get())

	stored, found, err := d.store.Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), stored.Revision)
	assert.Len(t, stored.Configurations, 2)
}
