// Package facade implements the storage façade (spec.md §4.8): the single
// coordinator that ties the volume ring, sequencer, page codec and series
// registry together behind write/open_session/close. Grounded on
// storage/cache.go's single coordinator struct owning the active resource
// plus a rotation method, generalized from a table-shard cache to a
// time-series volume ring.
package facade

import (
	"fmt"
	"sync"

	"github.com/launix-de/chronostore/internal/errs"
	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/launix-de/chronostore/internal/registry"
	"github.com/launix-de/chronostore/internal/sequencer"
	"github.com/launix-de/chronostore/internal/volume"
)

// Durability controls how often Write forces an fsync (spec.md §6).
type Durability int

const (
	MaxDurability Durability = iota // fsync every flush
	Balanced                        // fsync every 8th
	MaxThroughput                   // fsync every 32nd
)

func (d Durability) interval() int {
	switch d {
	case Balanced:
		return 8
	case MaxThroughput:
		return 32
	default:
		return 1
	}
}

// SeriesCatalog is the subset of internal/catalog.Store the façade needs to
// persist newly assigned series ids (spec.md §4.4 persistence contract).
type SeriesCatalog interface {
	AppendSeriesNames(tuples []registry.Tuple) error
}

// Facade is the single writer-thread-owned coordinator (spec.md §5: "the
// writer is a single thread pinned logically to the storage façade").
type Facade struct {
	mu sync.Mutex

	volumes     []*volume.Volume
	meta        *volume.MetaVolume
	activeIndex int

	seq     *sequencer.Sequencer
	reg     *registry.Registry
	catalog SeriesCatalog

	durability      Durability
	writesSinceSync int
	rotations       uint64
}

func New(volumes []*volume.Volume, meta *volume.MetaVolume, seq *sequencer.Sequencer, reg *registry.Registry, catalog SeriesCatalog, activeIndex int, durability Durability) *Facade {
	return &Facade{
		volumes:     volumes,
		meta:        meta,
		seq:         seq,
		reg:         reg,
		catalog:     catalog,
		activeIndex: activeIndex,
		durability:  durability,
	}
}

// Recover selects the active volume at startup: the one with the highest
// open_count, ties broken by highest index. If that volume's open_count
// already equals its close_count, a rotation was interrupted mid-flight
// and the next volume is activated in its place (spec.md §4.8 step 4).
func Recover(volumes []*volume.Volume) (int, error) {
	if len(volumes) == 0 {
		return 0, fmt.Errorf("facade: no volumes to recover: %w", errs.BadData)
	}
	best := 0
	for i := 1; i < len(volumes); i++ {
		h, bh := volumes[i].Page().Header(), volumes[best].Page().Header()
		if h.OpenCount > bh.OpenCount || (h.OpenCount == bh.OpenCount && i > best) {
			best = i
		}
	}
	h := volumes[best].Page().Header()
	if h.OpenCount == h.CloseCount {
		next := (best + 1) % len(volumes)
		nv := volumes[next]
		nv.Reset(nv.Page().Header().PageID + 1)
		nv.Open()
		return next, nil
	}
	return best, nil
}

func (f *Facade) activeVolume() *volume.Volume { return f.volumes[f.activeIndex] }

// Write resolves nothing itself (the caller already resolved the series id
// through OpenSession before building the sample) and forwards to the
// sequencer. On an active-volume Overflow it rotates once and retries
// (spec.md §4.8 write(), §7 "Overflow").
func (f *Facade) Write(sample pagecodec.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.seq.Add(sample); err != nil {
		return err
	}
	if err := f.drainLocked(); err != nil {
		if err != errs.Overflow {
			return err
		}
		if rerr := f.rotateLocked(); rerr != nil {
			return rerr
		}
		if err := f.drainLocked(); err != nil {
			panic(fmt.Sprintf("facade: active volume overflow persists after rotation: %v", err))
		}
	}
	f.maybeSyncLocked()
	return nil
}

func (f *Facade) drainLocked() error {
	return f.seq.MergeAndCompress(f.activeVolume().Page())
}

func (f *Facade) maybeSyncLocked() {
	f.writesSinceSync++
	if f.writesSinceSync >= f.durability.interval() {
		f.activeVolume().Flush()
		f.writesSinceSync = 0
	}
}

// rotateLocked closes the current volume and activates the next one,
// without touching sequencer state: used by the overflow-retry path in
// Write, where the sequencer's pendingReady chunk must survive the
// rotation so it can be retried onto the freshly activated page instead of
// being discarded (discarding it here would violate the no-loss invariant
// the overflow-retry path exists to uphold).
func (f *Facade) rotateLocked() error {
	cur := f.activeVolume()
	cur.Close()
	if err := cur.Flush(); err != nil {
		return err
	}

	next := (f.activeIndex + 1) % len(f.volumes)
	nv := f.volumes[next]
	nv.Reset(nv.Page().Header().PageID + 1)
	nv.Open()
	f.activeIndex = next
	f.rotations++

	if f.meta != nil {
		d := f.meta.Get(next)
		d.Generation++
		if err := f.meta.Set(next, d); err != nil {
			return err
		}
	}
	return nil
}

// AdvanceVolume performs a full administrative rotation (spec.md §4.8
// steps 1-3): complete any in-progress merge onto the still-writable
// current page, reset the sequencer for the new page, then rotate. Unlike
// the overflow-retry path inside Write, this is only ever called when the
// current page has room, so completing the merge in place cannot fail with
// Overflow.
func (f *Facade) AdvanceVolume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.seq.Close(f.activeVolume().Page()); err != nil {
		return err
	}
	f.seq.Reset()
	return f.rotateLocked()
}

// OpenSession vends a registry-backed session for one connection (spec.md
// §4.8 open_session()).
func (f *Facade) OpenSession() *registry.Session {
	return f.reg.OpenSession()
}

// Stats is a point-in-time snapshot for the monitoring endpoint (spec.md
// §6 ambient stats; not part of the core write/read path).
type Stats struct {
	ActiveIndex int
	Rotations   uint64
	SeriesCount int
}

func (f *Facade) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		ActiveIndex: f.activeIndex,
		Rotations:   f.rotations,
		SeriesCount: f.reg.Count(),
	}
}

// ActiveVolume, Rotations and SeriesCount supply the volume and series half
// of internal/monitor.StatsSource. Facade has no QueueDepths, so it only
// satisfies StatsSource through monitor.Combine with an
// internal/ingest.Pipeline.
func (f *Facade) ActiveVolume() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeIndex
}

func (f *Facade) Rotations() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotations
}

func (f *Facade) SeriesCount() int { return f.reg.Count() }

// Close merges any remaining buffered samples into the active page,
// flushes the volume, and persists the registry (spec.md §4.8 close()).
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.seq.Close(f.activeVolume().Page()); err != nil {
		return err
	}
	if err := f.activeVolume().Flush(); err != nil {
		return err
	}
	return f.persistRegistryLocked()
}

func (f *Facade) persistRegistryLocked() error {
	if f.catalog == nil {
		return nil
	}
	for _, batch := range f.reg.PendingBatches() {
		if err := f.catalog.AppendSeriesNames(batch); err != nil {
			return err
		}
	}
	return nil
}
