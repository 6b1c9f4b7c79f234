// Package servicectx provides unique ID for a service process and support for the graceful shutdown.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/metric-duct/internal/pkg/ctxattr"
	"github.com/keboola/metric-duct/internal/pkg/idgenerator"
	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

type Process struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	wg       *sync.WaitGroup
	errCh    chan error
	uniqueID string

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
}

type Option func(c *config)

// OnShutdownFn is invoked during the graceful shutdown, ctx is not cancelled yet.
type OnShutdownFn func(ctx context.Context)

type config struct {
	uniqueID string
	signals  bool
}

// WithUniqueID sets unique ID of the service process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

// WithoutSignals disables SIGINT/SIGTERM handling, it is used in tests.
func WithoutSignals() Option {
	return func(c *config) {
		c.signals = false
	}
}

func New(ctx context.Context, logger log.Logger, opts ...Option) (*Process, error) {
	c := config{signals: true}
	for _, o := range opts {
		o(&c)
	}

	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	ctx = ctxattr.ContextWith(ctx, attribute.String("process.id", c.uniqueID))
	ctx, cancel := context.WithCancel(ctx)

	proc := &Process{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithComponent("process"),
		wg:       &sync.WaitGroup{},
		errCh:    make(chan error, 1),
		uniqueID: c.uniqueID,
		lock:     &sync.Mutex{},
	}

	// SIGINT and SIGTERM signals cause the service to stop gracefully
	if c.signals {
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				proc.Shutdown(context.Background(), errors.Errorf("%s", sig))
			case <-ctx.Done():
				signal.Stop(sigCh)
			}
		}()
	}

	proc.logger.Infof(ctx, `process unique id "%s"`, proc.UniqueID())
	return proc, nil
}

func NewForTest(t *testing.T, logger log.Logger) *Process {
	t.Helper()

	proc, err := New(context.Background(), logger, WithoutSignals(), WithUniqueID("test-"+idgenerator.EtcdNamespaceForTest()))
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(context.Background(), errors.New("test cleanup"))
		proc.WaitForShutdown()
	})

	return proc
}

// Ctx returns context of the Process, it is cancelled on shutdown.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// UniqueID returns unique process ID, it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// Shutdown triggers termination of the Process.
// Only the first call has an effect.
func (v *Process) Shutdown(ctx context.Context, err error) {
	select {
	case v.errCh <- err:
	default:
		v.logger.Debugf(ctx, `shutdown already requested, ignored: %s`, err)
	}
}

// WaitForShutdown blocks until Shutdown is called,
// then it invokes OnShutdown callbacks in LIFO order, cancels the context and waits for all operations.
func (v *Process) WaitForShutdown() {
	err := <-v.errCh
	v.logger.Infof(v.ctx, "exiting (%v)", err)

	v.lock.Lock()
	v.terminating = true
	callbacks := v.onShutdown
	v.lock.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i](v.ctx)
	}

	v.cancel()
	v.wg.Wait()
	v.logger.Info(context.Background(), "exited")
}

// Add an operation.
// The Process is graceful terminated when all operations are completed.
// The ctx parameter can be used to wait for the service termination.
// An error sent to errCh stops the Process.
func (v *Process) Add(operation func(ctx context.Context, errCh chan<- error)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		errCh := make(chan error, 1)
		go func() {
			for err := range errCh {
				v.Shutdown(v.ctx, err)
			}
		}()
		operation(v.ctx, errCh)
		close(errCh)
	}()
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Graceful shutdown waits until the callback has finished.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Error(v.ctx, `cannot register OnShutdown callback: the process is terminating`)
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}
