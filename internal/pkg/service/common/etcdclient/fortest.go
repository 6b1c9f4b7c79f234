package etcdclient

import (
	"runtime"
	"testing"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/tests/v3/integration"

	"github.com/keboola/metric-duct/internal/pkg/idgenerator"
)

// NewClientForTest starts an embedded single-node etcd cluster
// and returns a client prefixed by a random namespace.
func NewClientForTest(t *testing.T) *etcd.Client {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skipf(`etcd is tested only on Linux`)
	}

	integration.BeforeTestExternal(t)
	cluster := integration.NewClusterV3(t, &integration.ClusterConfig{Size: 1})
	t.Cleanup(func() {
		cluster.Terminate(t)
	})
	cluster.WaitLeader(t)

	client := cluster.Client(0)
	UseNamespace(client, idgenerator.EtcdNamespaceForTest()+"/")
	return client
}
