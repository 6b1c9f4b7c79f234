package membership

import (
	"context"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/etcdclient"
)

const (
	electionPrefix = "election/master"
	resignTimeout  = 5 * time.Second
	// FirstResultTimeout limits how long NewEtcdElection waits for the first campaign result.
	FirstResultTimeout = 10 * time.Second
)

// EtcdElection campaigns for the master role in an etcd session.
// When the session expires, the role is lost and the campaign starts again in a new session.
type EtcdElection struct {
	logger    log.Logger
	nodeID    string
	master    *atomic.Bool
	ready     chan struct{}
	readyOnce *sync.Once
}

// NewEtcdElection returns after the first campaign result is known:
// the node has been elected, or another node has been observed as the leader.
// So the first IsMaster call reports the real role of the node.
// If no result is known within the timeout, the node starts as a follower.
func NewEtcdElection(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, nodeID string, ttlSeconds int, timeout time.Duration) (*EtcdElection, error) {
	e := &EtcdElection{
		logger:    logger.WithComponent("election").With(attribute.String("node.id", nodeID)),
		nodeID:    nodeID,
		master:    atomic.NewBool(false),
		ready:     make(chan struct{}),
		readyOnce: &sync.Once{},
	}

	errCh := etcdclient.ResistantSession(ctx, wg, logger, client, ttlSeconds, func(session *concurrency.Session) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.campaign(ctx, session)
		}()
		return nil
	})

	if err := <-errCh; err != nil {
		return nil, err
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		e.logger.Warnf(ctx, `no election result within %s, node <node.id> starts as follower`, timeout)
	}

	return e, nil
}

func (e *EtcdElection) IsMaster(context.Context) (bool, error) {
	return e.master.Load(), nil
}

func (e *EtcdElection) campaign(ctx context.Context, session *concurrency.Session) {
	election := concurrency.NewElection(session, electionPrefix)

	// Campaign blocks until the node is elected, the session ends or the ctx is cancelled
	campaignCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-campaignCtx.Done():
		}
	}()

	// Another leader means the node is a follower, its own leadership is reported by Campaign
	go func() {
		for resp := range election.Observe(campaignCtx) {
			if len(resp.Kvs) > 0 && string(resp.Kvs[0].Value) != e.nodeID {
				e.markReady()
				return
			}
		}
	}()

	if err := election.Campaign(campaignCtx, e.nodeID); err != nil {
		if ctx.Err() == nil {
			e.logger.Warnf(ctx, "campaign interrupted: %s", err)
		}
		return
	}

	e.master.Store(true)
	e.markReady()
	e.logger.Info(ctx, "node <node.id> elected as master")

	select {
	case <-ctx.Done():
		// Resign, so another node can take over without waiting for the session TTL
		resignCtx, resignCancel := context.WithTimeout(context.Background(), resignTimeout)
		if err := election.Resign(resignCtx); err != nil {
			e.logger.Warnf(ctx, "cannot resign: %s", err)
		}
		resignCancel()
	case <-session.Done():
	}

	e.master.Store(false)
	e.logger.Info(ctx, "node <node.id> lost the master role")
}

func (e *EtcdElection) markReady() {
	e.readyOnce.Do(func() {
		close(e.ready)
	})
}
