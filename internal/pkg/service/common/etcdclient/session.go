package etcdclient

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/metric-duct/internal/pkg/log"
)

// ResistantSession creates an etcd session with retries.
// If there is a longer network outage and the session expires, then a new session is created.
//
// Each session creation is reported via the onSession callback.
// The callback must not be blocking, the started work should check <-session.Done().
//
// The returned channel reports the result of the initialization:
// the first session, the first keep-alive and the first callback.
// After successful initialization, a new session is created after each failure until the context ends.
func ResistantSession(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, ttlSeconds int, onSession func(session *concurrency.Session) error) <-chan error {
	b := newSessionBackoff()
	startTime := time.Now()
	logger = logger.WithComponent("etcd-session")
	logger.Info(ctx, `creating etcd session`)

	wg.Add(1)
	initDone := make(chan error, 1)
	initDoneOut := initDone
	stopInit := func(err error) {
		initDone <- err
		close(initDone)
	}

	go func() {
		defer wg.Done()
		for {
			// Wait before re-creation attempt, except the initialization
			if initDone == nil {
				delay := b.NextBackOff()
				logger.Infof(ctx, "re-creating etcd session, backoff delay %s", delay)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds))
			if err != nil {
				if initDone != nil {
					stopInit(err)
					return
				}
				logger.Errorf(ctx, `cannot create etcd session: %s`, err)
				continue
			}

			if initDone != nil {
				if _, err = session.Client().KeepAliveOnce(ctx, session.Lease()); err != nil {
					_ = session.Close()
					stopInit(err)
					return
				}
			}

			b.Reset()
			logger.WithDuration(time.Since(startTime)).Info(ctx, "created etcd session")

			if err := onSession(session); err != nil {
				if initDone != nil {
					_ = session.Close()
					stopInit(err)
					return
				}
				logger.Errorf(ctx, `etcd session callback failed: %s`, err)
			}

			if initDone != nil {
				close(initDone)
				initDone = nil
			}

			select {
			case <-ctx.Done():
				closeStart := time.Now()
				logger.Info(ctx, "closing etcd session")
				if err := session.Close(); err != nil {
					logger.Warnf(ctx, "cannot close etcd session: %s", err)
				} else {
					logger.WithDuration(time.Since(closeStart)).Info(ctx, "closed etcd session")
				}
				return
			case <-session.Done():
				// Re-create
			}
		}
	}()

	return initDoneOut
}

func newSessionBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
