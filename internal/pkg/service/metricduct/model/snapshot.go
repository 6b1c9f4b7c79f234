package model

import (
	"slices"
	"time"
)

// Snapshot is an immutable set of configurations, sorted by hash.
// A new Snapshot is created on each refresh, a published Snapshot is never modified.
type Snapshot struct {
	revision  int64
	createdAt time.Time
	wrappers  []*ConfigurationWrapper
	byHash    map[uint64]*ConfigurationWrapper
}

// SnapshotData is the serializable form of the Snapshot, it is stored in the shared store.
type SnapshotData struct {
	Revision       int64           `json:"revision"`
	CreatedAt      time.Time       `json:"createdAt"`
	Configurations []Configuration `json:"configurations"`
}

// EmptySnapshot is served until the first snapshot is published.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(SnapshotData{}, nil)
}

// NewSnapshot creates a snapshot from the data.
// Duplicate configurations collapse to one.
// A configuration present also in the previous snapshot keeps its wrapper, so the last-processed marker is preserved.
func NewSnapshot(data SnapshotData, previous *Snapshot) *Snapshot {
	s := &Snapshot{
		revision:  data.Revision,
		createdAt: data.CreatedAt,
		byHash:    make(map[uint64]*ConfigurationWrapper, len(data.Configurations)),
	}

	for _, cfg := range data.Configurations {
		hash := cfg.Hash()
		if _, found := s.byHash[hash]; found {
			continue
		}

		w, found := previous.Lookup(hash)
		if !found {
			w = NewConfigurationWrapper(cfg)
		}

		s.byHash[hash] = w
		s.wrappers = append(s.wrappers, w)
	}

	slices.SortFunc(s.wrappers, func(a, b *ConfigurationWrapper) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		default:
			return 0
		}
	})

	return s
}

func (s *Snapshot) Revision() int64 {
	return s.revision
}

func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Snapshot) Len() int {
	return len(s.wrappers)
}

// All returns a copy of the wrappers slice, ordered by hash.
func (s *Snapshot) All() []*ConfigurationWrapper {
	return slices.Clone(s.wrappers)
}

// Lookup is nil-safe, so a missing previous snapshot can be passed directly.
func (s *Snapshot) Lookup(hash uint64) (*ConfigurationWrapper, bool) {
	if s == nil {
		return nil, false
	}
	w, found := s.byHash[hash]
	return w, found
}

func (s *Snapshot) Data() SnapshotData {
	cfgs := make([]Configuration, 0, len(s.wrappers))
	for _, w := range s.wrappers {
		cfgs = append(cfgs, w.configuration)
	}
	return SnapshotData{Revision: s.revision, CreatedAt: s.createdAt, Configurations: cfgs}
}
