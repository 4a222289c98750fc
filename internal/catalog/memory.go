package catalog

import (
	"sync"

	"github.com/launix-de/chronostore/internal/registry"
)

// MemoryStore is an in-process Store used by tests and by standalone
// single-node runs that don't need cross-restart persistence.
type MemoryStore struct {
	mu      sync.Mutex
	volumes []VolumeDescriptor
	series  map[uint64]registry.Tuple
	rescue  map[uint64]RescuePoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make(map[uint64]registry.Tuple),
		rescue: make(map[uint64]RescuePoint),
	}
}

func (m *MemoryStore) SetVolumes(vols []VolumeDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes = append([]VolumeDescriptor(nil), vols...)
}

func (m *MemoryStore) LoadVolumes() ([]VolumeDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VolumeDescriptor(nil), m.volumes...), nil
}

func (m *MemoryStore) LoadSeriesNames() ([]registry.Tuple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]registry.Tuple, 0, len(m.series))
	for _, t := range m.series {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) AppendSeriesNames(tuples []registry.Tuple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tuples {
		m.series[t.SeriesID] = t
	}
	return nil
}

func (m *MemoryStore) UpsertRescuePoints(points []RescuePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.rescue[p.SeriesID] = p
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
