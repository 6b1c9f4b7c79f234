package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/etcdclient"
)

func TestEtcdElection(t *testing.T) {
	t.Parallel()

	client := etcdclient.NewClientForTest(t)
	logger := log.NewDebugLogger()
	wg := &sync.WaitGroup{}

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	// The role is known when the constructor returns
	node1, err := NewEtcdElection(ctx1, wg, logger, client, "node1", 2, FirstResultTimeout)
	require.NoError(t, err)
	master1, _ := node1.IsMaster(ctx1)
	assert.True(t, master1)

	startTime := time.Now()
	node2, err := NewEtcdElection(ctx2, wg, logger, client, "node2", 2, FirstResultTimeout)
	require.NoError(t, err)
	assert.Less(t, time.Since(startTime), FirstResultTimeout, "the observed leader should end the wait")
	master2, _ := node2.IsMaster(ctx2)
	assert.False(t, master2)

	// Node1 stops, node2 takes over
	cancel1()
	assert.Eventually(t, func() bool {
		master, _ := node2.IsMaster(ctx2)
		return master
	}, 10*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		master, _ := node1.IsMaster(ctx1)
		return !master
	}, 10*time.Second, 50*time.Millisecond)

	cancel2()
	wg.Wait()

	logger.AssertJSONMessages(t, `
{"level":"info","message":"node node1 elected as master","component":"election"}
{"level":"info","message":"node node1 lost the master role","component":"election"}
`)
	logger.AssertJSONMessages(t, `{"level":"info","message":"node node2 elected as master","component":"election","node.id":"node2"}`)
}
