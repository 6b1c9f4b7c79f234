package snapshotstore

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const snapshotKey = "snapshot/current"

// Etcd stores the snapshot as a JSON value of one key.
// The client is expected to be prefixed by the namespace, see etcdclient.UseNamespace.
type Etcd struct {
	client *etcd.Client
}

func NewEtcd(client *etcd.Client) *Etcd {
	return &Etcd{client: client}
}

func (s *Etcd) Get(ctx context.Context) (model.SnapshotData, bool, error) {
	data, modRevision, err := s.get(ctx)
	return data, modRevision > 0, err
}

// Put writes the snapshot, an older revision never overwrites a newer one.
func (s *Etcd) Put(ctx context.Context, data model.SnapshotData) error {
	value, err := json.Encode(data, false)
	if err != nil {
		return err
	}

	current, modRevision, err := s.get(ctx)
	if err != nil {
		return err
	}
	if modRevision > 0 && current.Revision >= data.Revision {
		return errors.Errorf(`snapshot revision %d is not newer than the stored revision %d`, data.Revision, current.Revision)
	}

	// Compare-and-swap protects against a concurrent write of a previous master.
	// ModRevision of a missing key is 0.
	resp, err := s.client.Txn(ctx).
		If(etcd.Compare(etcd.ModRevision(snapshotKey), "=", modRevision)).
		Then(etcd.OpPut(snapshotKey, string(value))).
		Commit()
	if err != nil {
		return errors.PrefixErrorf(err, `cannot put etcd key "%s"`, snapshotKey)
	}
	if !resp.Succeeded {
		return errors.Errorf(`etcd key "%s" was modified concurrently`, snapshotKey)
	}
	return nil
}

func (s *Etcd) get(ctx context.Context) (model.SnapshotData, int64, error) {
	resp, err := s.client.Get(ctx, snapshotKey)
	if err != nil {
		return model.SnapshotData{}, 0, errors.PrefixErrorf(err, `cannot get etcd key "%s"`, snapshotKey)
	}
	if len(resp.Kvs) == 0 {
		return model.SnapshotData{}, 0, nil
	}

	var data model.SnapshotData
	if err := json.Decode(resp.Kvs[0].Value, &data); err != nil {
		return model.SnapshotData{}, 0, errors.PrefixErrorf(err, `cannot decode etcd key "%s"`, snapshotKey)
	}
	return data, resp.Kvs[0].ModRevision, nil
}
