// Package snapshotstore shares the published configuration snapshot between cluster nodes.
//
// The master node writes each new snapshot, follower nodes read it.
// Memory is used in the standalone mode and in tests, Etcd in a cluster.
package snapshotstore

import (
	"context"
	"sync"

	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
)

type Store interface {
	// Get returns false if no snapshot has been published yet.
	Get(ctx context.Context) (model.SnapshotData, bool, error)
	Put(ctx context.Context, data model.SnapshotData) error
}

type Memory struct {
	lock  *sync.RWMutex
	data  model.SnapshotData
	found bool
	err   error
}

func NewMemory() *Memory {
	return &Memory{lock: &sync.RWMutex{}}
}

func (s *Memory) Get(_ context.Context) (model.SnapshotData, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.err != nil {
		return model.SnapshotData{}, false, s.err
	}
	return s.data, s.found, nil
}

func (s *Memory) Put(_ context.Context, data model.SnapshotData) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = data
	s.found = true
	return nil
}

// SetError makes all operations fail until the error is cleared by SetError(nil).
func (s *Memory) SetError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.err = err
}
