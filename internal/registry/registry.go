package registry

import (
	"fmt"
	"sync"

	"github.com/launix-de/chronostore/internal/errs"
)

// BaseID is the first series id ever assigned; ids are dense and
// monotonically increasing from here (spec.md §3 "Registry entry").
const BaseID uint64 = 1024

// FlushBatchSize bounds how many tuples the registry batches per call to
// the catalog's AppendSeriesNames (spec.md §4.4 persistence contract).
const FlushBatchSize = 500

// Tuple is the {series_id, metric, tag_block} unit the catalog persists
// and reloads, exactly as spec.md §4.4 describes.
type Tuple struct {
	SeriesID uint64
	Metric   string
	TagBlock string
}

// Registry is the authoritative name<->id table, guarded by a single
// RWMutex (grounded on storage/tables_catalog.go's tableRegistryMu global
// map). IDs are assigned lazily on first write that mentions a new name
// and are never deleted.
type Registry struct {
	mu       sync.RWMutex
	nameToID map[string]uint64
	idToName map[uint64]Tuple
	nextID   uint64

	// unflushed accumulates tuples created since the last PendingBatches call, for the
	// asynchronous persistence path.
	unflushed []Tuple
}

// New creates an empty registry with the id counter at BaseID.
func New() *Registry {
	return &Registry{
		nameToID: make(map[string]uint64),
		idToName: make(map[uint64]Tuple),
		nextID:   BaseID,
	}
}

// Resolve canonicalizes name and returns its series id, assigning a new
// dense id if this is the first time the canonical form has been seen.
func (r *Registry) Resolve(name string) (uint64, error) {
	c, err := Canonicalize(name)
	if err != nil {
		return 0, err
	}
	return r.resolveCanonical(c), nil
}

func (r *Registry) resolveCanonical(c Canonical) uint64 {
	r.mu.RLock()
	if id, ok := r.nameToID[c.Name]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.nameToID[c.Name]; ok {
		return id // lost the race to another writer; reuse their id
	}
	id := r.nextID
	r.nextID++
	tup := Tuple{SeriesID: id, Metric: c.Metric, TagBlock: c.TagBlock}
	r.nameToID[c.Name] = id
	r.idToName[id] = tup
	r.unflushed = append(r.unflushed, tup)
	return id
}

// NameOf returns the canonical name for a previously assigned id.
func (r *Registry) NameOf(id uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tup, ok := r.idToName[id]
	if !ok {
		return "", false
	}
	if tup.TagBlock == "" {
		return tup.Metric, true
	}
	return tup.Metric + " " + tup.TagBlock, true
}

// Count returns the number of registered series.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.idToName)
}

// PendingBatches drains the tuples accumulated since the last call, split
// into groups of at most FlushBatchSize, ready for the catalog's
// AppendSeriesNames (spec.md §4.4: "batched in groups of ≤ 500").
func (r *Registry) PendingBatches() [][]Tuple {
	r.mu.Lock()
	pending := r.unflushed
	r.unflushed = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	var batches [][]Tuple
	for len(pending) > 0 {
		n := FlushBatchSize
		if n > len(pending) {
			n = len(pending)
		}
		batches = append(batches, pending[:n])
		pending = pending[n:]
	}
	return batches
}

// LoadTuples reconstructs both directions of the map from a startup load
// (order-independent, per spec.md §4.4), then sets the id counter one past
// the maximum observed id.
func (r *Registry) LoadTuples(tuples []Tuple) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	maxID := BaseID - 1
	for _, t := range tuples {
		name := t.Metric
		if t.TagBlock != "" {
			name = t.Metric + " " + t.TagBlock
		}
		if existing, ok := r.nameToID[name]; ok && existing != t.SeriesID {
			return fmt.Errorf("registry: duplicate name %q with conflicting ids %d and %d: %w", name, existing, t.SeriesID, errs.BadData)
		}
		r.nameToID[name] = t.SeriesID
		r.idToName[t.SeriesID] = t
		if t.SeriesID > maxID {
			maxID = t.SeriesID
		}
	}
	r.nextID = maxID + 1
	return nil
}

// Session is a session-owned, unsynchronized cache in front of a shared
// Registry: lookups fall back to the global table on miss and install the
// result locally, never taking a lock themselves (spec.md §4.4, §9
// "replace with per-session owned caches plus a single shared, mutex-guarded
// authoritative map").
type Session struct {
	reg   *Registry
	cache map[string]uint64
}

// OpenSession vends a registry-backed session for a single connection.
func (r *Registry) OpenSession() *Session {
	return &Session{reg: r, cache: make(map[string]uint64)}
}

// Resolve looks up name in the local cache first, falling back to the
// shared registry (which may assign a brand new id) on miss.
func (s *Session) Resolve(name string) (uint64, error) {
	c, err := Canonicalize(name)
	if err != nil {
		return 0, err
	}
	if id, ok := s.cache[c.Name]; ok {
		return id, nil
	}
	id := s.reg.resolveCanonical(c)
	s.cache[c.Name] = id
	return id, nil
}
