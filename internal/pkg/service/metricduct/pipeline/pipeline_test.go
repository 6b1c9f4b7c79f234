package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/gate"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/status"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type testDeps struct {
	clock    *clockwork.FakeClock
	logger   log.DebugLogger
	registry *registry.Registry
	reporter *status.Reporter
}

func (d *testDeps) Clock() clockwork.Clock { return d.clock }
func (d *testDeps) Logger() log.Logger { return d.logger }
func (d *testDeps) PluginRegistry() *registry.Registry { return d.registry }
func (d *testDeps) StatusReporter() *status.Reporter { return d.reporter }

type extractFunc func(ctx context.Context, item model.Extract) ([]model.Series, error)

func (f extractFunc) Extract(ctx context.Context, item model.Extract) ([]model.Series, error) {
	return f(ctx, item)
}

type loadFunc func(ctx context.Context, item model.Load, series []model.Series) error

func (f loadFunc) Load(ctx context.Context, item model.Load, series []model.Series) error {
	return f(ctx, item, series)
}

type transformFunc func(ctx context.Context, series model.Series) (model.Series, error)

func (f transformFunc) Apply(ctx context.Context, series model.Series) (model.Series, error) {
	return f(ctx, series)
}

// collector stores status messages as "<stage> <outcome> <item>[ <cause>]" lines.
type collector struct {
	lock *sync.Mutex
	msgs []string
}

func (c *collector) Consume(_ context.Context, msg status.Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	line := fmt.Sprintf("%s %s %s", msg.Stage, msg.Outcome, msg.Item)
	if msg.Cause != nil {
		line += " " + msg.Cause.Error()
	}
	c.msgs = append(c.msgs, line)
	return nil
}

// Sorted returns messages in a stable order, items run in parallel.
func (c *collector) Sorted() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := slices.Clone(c.msgs)
	slices.Sort(out)
	return out
}

// recorder stores names of the loaded series.
type recorder struct {
	lock   *sync.Mutex
	loaded map[string][]model.Series
}

func (r *recorder) Load(_ context.Context, item model.Load, series []model.Series) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.loaded[item.Destination] = append(r.loaded[item.Destination], series...)
	return nil
}

func (r *recorder) Names(destination string) []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []string
	for _, s := range r.loaded[destination] {
		out = append(out, s.Name)
	}
	slices.Sort(out)
	return out
}

var testTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// sourceExtract returns one series named by the item, items named "fail*" fail.
func sourceExtract(_ context.Context, item model.Extract) ([]model.Series, error) {
	if len(item.Name) >= 4 && item.Name[:4] == "fail" {
		return nil, errors.New("source unavailable")
	}
	return []model.Series{{Name: item.Name, Points: []model.Point{{Time: testTime, Value: 1}}}}, nil
}

type testEnv struct {
	deps      *testDeps
	collector *collector
	recorder  *recorder
	runner    *Runner
}

func newTestEnv(t *testing.T, cfg Config, gates Gates, modules ...registry.Module) *testEnv {
	t.Helper()

	c := &collector{lock: &sync.Mutex{}}
	rec := &recorder{lock: &sync.Mutex{}, loaded: make(map[string][]model.Series)}
	modules = append([]registry.Module{func(b *registry.Builder) {
		b.AddExtract("test", extractFunc(sourceExtract))
		b.AddLoad("sink", rec)
		b.AddStatusConsumer(c)
	}}, modules...)

	reg, err := registry.Build(modules...)
	require.NoError(t, err)

	logger := log.NewDebugLogger()
	d := &testDeps{
		clock:    clockwork.NewFakeClockAt(testTime),
		logger:   logger,
		registry: reg,
		reporter: status.NewReporter(logger, reg.StatusConsumers()...),
	}

	return &testEnv{deps: d, collector: c, recorder: rec, runner: New(d, cfg, gates)}
}

func TestRunner_FailureIsolation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, NewConfig(), Gates{})
	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{
			{Type: "test", Source: "argus", Name: "e1"},
			{Type: "test", Source: "argus", Name: "fail2"},
		},
		Load: []model.Load{{Type: "sink", Destination: "refocus", Name: "N"}},
	})

	out := env.runner.RunConfiguration(context.Background(), w)
	assert.Equal(t, Outcome{Identity: w.Identity(), Series: 1, ExtractFailed: 1, Loaded: 1}, out)
	assert.True(t, out.Failed())
	assert.Equal(t, []string{
		"extract failure test:fail2 source unavailable",
		"extract success test:e1",
		"load success sink:N",
	}, env.collector.Sorted())
	assert.Equal(t, []string{"e1"}, env.recorder.Names("refocus"))
	assert.Equal(t, testTime, w.LastProcessed())
}

func TestRunner_PanicAndTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cfg := NewConfig()
	cfg.ItemTimeout = 50 * time.Millisecond
	env := newTestEnv(t, cfg, Gates{}, func(b *registry.Builder) {
		b.AddExtract("panic", extractFunc(func(context.Context, model.Extract) ([]model.Series, error) {
			panic("boom")
		}))
		b.AddExtract("stall", extractFunc(func(context.Context, model.Extract) ([]model.Series, error) {
			// The context is ignored on purpose
			<-release
			return nil, nil
		}))
		b.AddLoad("broken", loadFunc(func(context.Context, model.Load, []model.Series) error {
			return errors.New("destination rejected data")
		}))
	})

	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{
			{Type: "panic", Source: "x", Name: "p"},
			{Type: "stall", Source: "x", Name: "s"},
			{Type: "test", Source: "x", Name: "ok"},
		},
		Load: []model.Load{
			{Type: "broken", Destination: "y"},
			{Type: "sink", Destination: "z"},
		},
	})

	out := env.runner.RunConfiguration(context.Background(), w)
	assert.Equal(t, 2, out.ExtractFailed)
	assert.Equal(t, 1, out.LoadFailed)
	assert.Equal(t, 1, out.Loaded)
	assert.Equal(t, []string{
		"extract failure panic:p panic: boom",
		"extract failure stall:s extract timed out after 50ms",
		"extract success test:ok",
		"load failure broken:y destination rejected data",
		"load success sink:z",
	}, env.collector.Sorted())
	assert.Equal(t, []string{"ok"}, env.recorder.Names("z"))
}

func TestRunner_TransformDropsOnlyFailingSeries(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, NewConfig(), Gates{}, func(b *registry.Builder) {
		b.AddTransform("double", func(map[string]any) (registry.Transform, error) {
			return transformFunc(func(_ context.Context, s model.Series) (model.Series, error) {
				for i := range s.Points {
					s.Points[i].Value *= 2
				}
				return s, nil
			}), nil
		})
		b.AddTransform("reject", func(params map[string]any) (registry.Transform, error) {
			name, _ := params["name"].(string)
			return transformFunc(func(_ context.Context, s model.Series) (model.Series, error) {
				if s.Name == name {
					return model.Series{}, errors.New("rejected")
				}
				return s, nil
			}), nil
		})
	})

	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{
			{Type: "test", Source: "x", Name: "good"},
			{Type: "test", Source: "x", Name: "bad"},
		},
		Transform: []model.Transform{
			{Type: "double"},
			{Type: "reject", Params: map[string]any{"name": "bad"}},
		},
		Load: []model.Load{{Type: "sink", Destination: "y"}},
	})

	out := env.runner.RunConfiguration(context.Background(), w)
	assert.Equal(t, 1, out.TransformFailed)
	assert.Equal(t, 1, out.Series)
	assert.Equal(t, []string{
		"extract success test:bad",
		"extract success test:good",
		"load success sink:y",
		`transform failure bad transform[1] "reject": rejected`,
		"transform success good",
	}, env.collector.Sorted())

	env.recorder.lock.Lock()
	loaded := env.recorder.loaded["y"]
	env.recorder.lock.Unlock()
	require.Len(t, loaded, 1)
	assert.Equal(t, float64(2), loaded[0].Points[0].Value)
}

func TestRunner_NoSeries_LoadSkipped(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, NewConfig(), Gates{})
	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{{Type: "test", Source: "x", Name: "fail"}},
		Load:    []model.Load{{Type: "sink", Destination: "y"}},
	})

	out := env.runner.RunConfiguration(context.Background(), w)
	assert.Equal(t, 1, out.LoadSkipped)
	assert.Equal(t, 0, out.Loaded)
	assert.Equal(t, []string{
		"extract failure test:fail source unavailable",
		"load skipped sink:y no series to load",
	}, env.collector.Sorted())
	assert.Empty(t, env.recorder.Names("y"))
}

func TestRunner_UnknownTransform(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, NewConfig(), Gates{})
	w := model.NewConfigurationWrapper(model.Configuration{
		Extract:   []model.Extract{{Type: "test", Source: "x", Name: "cpu"}},
		Transform: []model.Transform{{Type: "missing"}},
		Load:      []model.Load{{Type: "sink", Destination: "y"}},
	})

	out := env.runner.RunConfiguration(context.Background(), w)
	assert.Equal(t, 1, out.TransformFailed)
	assert.Equal(t, 1, out.LoadSkipped)
	assert.Contains(t, env.collector.Sorted(), `transform failure  transform[0]: unknown transform type "missing"`)
}

func TestRunner_Gates(t *testing.T) {
	t.Parallel()

	gates := Gates{BeforeExtract: gate.New(), BeforeLoad: gate.New()}
	extracted := atomic.NewInt64(0)
	env := newTestEnv(t, NewConfig(), gates, func(b *registry.Builder) {
		b.AddExtract("counted", extractFunc(func(ctx context.Context, item model.Extract) ([]model.Series, error) {
			extracted.Inc()
			return sourceExtract(ctx, item)
		}))
	})
	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{{Type: "counted", Source: "x", Name: "cpu"}},
		Load:    []model.Load{{Type: "sink", Destination: "y"}},
	})

	done := make(chan Outcome, 1)
	go func() {
		done <- env.runner.RunConfiguration(context.Background(), w)
	}()

	// Held before extraction
	<-gates.BeforeExtract.Reached()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), extracted.Load())

	// Held before load
	gates.BeforeExtract.Release()
	<-gates.BeforeLoad.Reached()
	assert.Equal(t, int64(1), extracted.Load())
	assert.Empty(t, env.recorder.Names("y"))

	gates.BeforeLoad.Release()
	select {
	case out := <-done:
		assert.Equal(t, 1, out.Loaded)
	case <-time.After(5 * time.Second):
		require.Fail(t, "timeout")
	}
	assert.Equal(t, []string{"cpu"}, env.recorder.Names("y"))
}

func TestRunner_Gates_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := newTestEnv(t, NewConfig(), Gates{BeforeExtract: gate.New()})
	w := model.NewConfigurationWrapper(model.Configuration{
		Extract: []model.Extract{{Type: "test", Source: "x", Name: "cpu"}},
		Load:    []model.Load{{Type: "sink", Destination: "y"}},
	})

	out := env.runner.RunConfiguration(ctx, w)
	assert.True(t, out.Cancelled)
	assert.Empty(t, env.collector.Sorted())
	assert.True(t, w.LastProcessed().IsZero())
}

func TestExtractStage_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	running := atomic.NewInt64(0)
	peak := atomic.NewInt64(0)
	cfg := NewConfig()
	cfg.ExtractConcurrency = 2
	env := newTestEnv(t, cfg, Gates{}, func(b *registry.Builder) {
		b.AddExtract("slow", extractFunc(func(ctx context.Context, item model.Extract) ([]model.Series, error) {
			current := running.Inc()
			for {
				p := peak.Load()
				if current <= p || peak.CompareAndSwap(p, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Dec()
			return sourceExtract(ctx, item)
		}))
	})

	var items []model.Extract
	for i := range 6 {
		items = append(items, model.Extract{Type: "slow", Source: "x", Name: fmt.Sprintf("s%d", i)})
	}

	results := env.runner.extract.Process(context.Background(), "0000000000000001", items)
	require.Len(t, results, 6)
	for i, result := range results {
		assert.Equal(t, items[i], result.Item)
		assert.NoError(t, result.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Positive(t, peak.Load())
}

func TestExtractStage_CancelledBetweenItems(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := newTestEnv(t, NewConfig(), Gates{})
	results := env.runner.extract.Process(ctx, "0000000000000001", []model.Extract{{Type: "test", Source: "x", Name: "cpu"}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, []string{"extract skipped test:cpu context canceled"}, env.collector.Sorted())
}
