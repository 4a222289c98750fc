// Package sequencer implements the reorder buffer (spec.md §4.3): a
// patience-sort of near-sorted samples into a small number of internally
// sorted runs, checkpointed on a sliding time window into strictly sorted
// compressed chunks.
package sequencer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/launix-de/chronostore/internal/errs"
	"github.com/launix-de/chronostore/internal/pagecodec"
)

// lockStripes is the fixed fan-out of per-run locks selected by
// run_index & mask, per spec.md §4.3/§5.
const lockStripes = 16
const lockMask = lockStripes - 1

type run struct {
	samples []pagecodec.Sample // sorted ascending by (timestamp, series_id)
}

func (r *run) tail() (pagecodec.Sample, bool) {
	if len(r.samples) == 0 {
		return pagecodec.Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Sequencer is bound to exactly one active page; when the page is sealed
// the sequencer is reset (spec.md §3 "Ownership and lifecycle").
type Sequencer struct {
	windowSize           uint64
	compressionThreshold int

	mu          sync.Mutex // "runs resize" mutex: guards structural changes to runs/pendingReady
	stripeLocks [lockStripes]sync.Mutex

	runs          []*run
	pendingReady  []*run // runs aged out by a committed checkpoint, awaiting MergeAndCompress
	topTimestamp  uint64
	haveTop       bool
	checkpointNum uint64 // current window id: floor(topTimestamp / windowSize)
	seqCounter    atomic.Uint64

	mergeInProgress atomic.Bool
}

// New creates a sequencer with the given sliding window size (ns) and
// minimum chunk size before a checkpoint materializes (spec.md §6
// "window_size", "compression_threshold").
func New(windowSize uint64, compressionThreshold int) *Sequencer {
	if windowSize < 2 {
		panic("sequencer: window_size must be >= 2")
	}
	return &Sequencer{windowSize: windowSize, compressionThreshold: compressionThreshold}
}

func sampleLess(a, b pagecodec.Sample) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.SeriesID < b.SeriesID
}

func sampleLessEq(a, b pagecodec.Sample) bool {
	return !sampleLess(b, a)
}

// Add inserts one sample, returning errs.LateWrite if it falls outside the
// window, or errs.Busy if a checkpoint triggered by this add collided with
// one already in progress (spec.md §4.3 add()).
func (s *Sequencer) Add(sample pagecodec.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveTop && sample.Timestamp+s.windowSize < s.topTimestamp {
		return errs.LateWrite
	}

	newCkpt := sample.Timestamp / s.windowSize
	if newCkpt > s.checkpointNum {
		if !s.tryCheckpointLocked(newCkpt) {
			return errs.Busy
		}
	}

	s.insertLocked(sample)
	if !s.haveTop || sample.Timestamp > s.topTimestamp {
		s.topTimestamp = sample.Timestamp
		s.haveTop = true
	}
	return nil
}

// insertLocked performs the patience-sort placement: binary search for the
// leftmost run whose tail key is <= sample's key (runs are kept ordered by
// descending tail key so the search is meaningful), append there (or
// overwrite the tail on an exact (timestamp, series_id) tie, since "the
// later add wins"), then re-seat the run to keep the descending-tail
// invariant. If no run qualifies, start a new one.
func (s *Sequencer) insertLocked(sample pagecodec.Sample) {
	n := len(s.runs)
	idx := sort.Search(n, func(i int) bool {
		t, ok := s.runs[i].tail()
		if !ok {
			return true
		}
		return sampleLessEq(t, sample)
	})

	if idx == n {
		s.runs = append(s.runs, &run{samples: []pagecodec.Sample{sample}})
		return
	}

	r := s.runs[idx]
	stripe := &s.stripeLocks[idx&lockMask]
	stripe.Lock()
	if tail, ok := r.tail(); ok && tail.Timestamp == sample.Timestamp && tail.SeriesID == sample.SeriesID {
		r.samples[len(r.samples)-1] = sample // duplicate (ts, series_id): later add wins
	} else {
		r.samples = append(r.samples, sample)
	}
	stripe.Unlock()

	s.reseatLocked(idx)
}

// reseatLocked moves the run at idx leftward until the descending-tail
// invariant holds again (its tail key may have changed by the append).
func (s *Sequencer) reseatLocked(idx int) {
	tail, _ := s.runs[idx].tail()
	i := idx
	for i > 0 {
		prevTail, ok := s.runs[i-1].tail()
		if ok && sampleLessEq(prevTail, tail) {
			s.runs[i-1], s.runs[i] = s.runs[i], s.runs[i-1]
			i--
		} else {
			break
		}
	}
}

// tryCheckpointLocked implements checkpoint(new_ckpt) (spec.md §4.3). The
// caller holds s.mu. Returns false if a merge is already in progress
// (caller surfaces errs.Busy).
func (s *Sequencer) tryCheckpointLocked(newCkpt uint64) bool {
	if !s.mergeInProgress.CompareAndSwap(false, true) {
		return false
	}
	s.seqCounter.Add(1) // -> odd: merge in progress

	oldCkpt := s.checkpointNum
	threshold := oldCkpt * s.windowSize

	var readyCount int
	var residual []*run
	var aged []*run
	for _, r := range s.runs {
		var stay, old []pagecodec.Sample
		for _, sample := range r.samples {
			if sample.Timestamp < threshold {
				old = append(old, sample)
			} else {
				stay = append(stay, sample)
			}
		}
		if len(old) > 0 {
			aged = append(aged, &run{samples: old})
			readyCount += len(old)
		}
		if len(stay) > 0 {
			residual = append(residual, &run{samples: stay})
		}
	}

	s.checkpointNum = newCkpt

	if readyCount < s.compressionThreshold {
		// abort: nothing actually separated out, runs stay as they were.
		s.seqCounter.Add(1) // -> even: stable
		s.mergeInProgress.Store(false)
		return true
	}

	s.runs = residual
	s.pendingReady = append(s.pendingReady, aged...)
	// counter stays odd until MergeAndCompress finishes the handoff.
	return true
}

// MergeAndCompress k-way-merges any staged ready runs by (timestamp,
// series_id) using a skew heap, encodes the result into a chunk, and
// places that chunk into targetPage. No-op if nothing is staged.
func (s *Sequencer) MergeAndCompress(targetPage *pagecodec.Page) error {
	s.mu.Lock()
	ready := s.pendingReady
	s.pendingReady = nil
	inProgress := s.mergeInProgress.Load()
	s.mu.Unlock()

	if len(ready) == 0 {
		if inProgress {
			s.seqCounter.Add(1) // -> even
			s.mergeInProgress.Store(false)
		}
		return nil
	}

	sorted := kWayMergeRuns(ready)
	if len(sorted) == 0 {
		s.seqCounter.Add(1)
		s.mergeInProgress.Store(false)
		return nil
	}
	chunkHeader, encoded := encodeSortedChunk(sorted)

	const minFree = 40 // room for the eventual index slot plus slack
	offset, err := targetPage.AddChunk(encoded, minFree)
	if err != nil {
		// restage so no sample is lost (spec.md §8 "Sequencer no-loss")
		s.mu.Lock()
		s.pendingReady = append([]*run{{samples: sorted}}, s.pendingReady...)
		s.mu.Unlock()
		return err
	}
	chunkHeader.Offset = offset
	targetPage.CompleteChunk(chunkHeader)

	s.seqCounter.Add(1) // -> even: stable
	s.mergeInProgress.Store(false)
	return nil
}

// kWayMergeRuns merges already-sorted runs into one strictly sorted slice
// via a skew heap seeded with each run's head, refilling from the same run
// on every pop (classic heap-based k-way merge; see heap.go). Exact
// (timestamp, series_id) ties across runs are resolved deterministically in
// favor of the higher run index (heap.itemLess's tiebreak); within a single
// run, ties are already resolved by insertLocked's "later add wins" rule
// before a run ever reaches this merge.
func kWayMergeRuns(runs []*run) []pagecodec.Sample {
	total := 0
	for _, r := range runs {
		total += len(r.samples)
	}
	if total == 0 {
		return nil
	}

	h := &skewHeap{}
	for ri, r := range runs {
		if len(r.samples) > 0 {
			h.push(heapItem{sample: r.samples[0], run: ri, idx: 0})
		}
	}

	out := make([]pagecodec.Sample, 0, total)
	for !h.empty() {
		item, _ := h.popMin()
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Timestamp == item.sample.Timestamp && last.SeriesID == item.sample.SeriesID {
				*last = item.sample // later-run wins on exact tie
			} else {
				out = append(out, item.sample)
			}
		} else {
			out = append(out, item.sample)
		}
		r := runs[item.run]
		if next := item.idx + 1; next < len(r.samples) {
			h.push(heapItem{sample: r.samples[next], run: item.run, idx: next})
		}
	}
	return out
}

func encodeSortedChunk(samples []pagecodec.Sample) (pagecodec.ChunkHeader, []byte) {
	encoded := pagecodec.EncodeChunk(samples)
	h := pagecodec.ChunkHeader{
		MinTS:       samples[0].Timestamp,
		MaxTS:       samples[len(samples)-1].Timestamp,
		NumElements: uint32(len(samples)),
		TotalBytes:  uint32(len(encoded)),
		MinID:       samples[0].SeriesID,
		MaxID:       samples[0].SeriesID,
	}
	for _, s := range samples {
		if s.SeriesID < h.MinID {
			h.MinID = s.SeriesID
		}
		if s.SeriesID > h.MaxID {
			h.MaxID = s.SeriesID
		}
	}
	return h, encoded
}

// Close forces every non-empty run into the ready set and merges/compresses
// immediately (spec.md §4.3 close()).
func (s *Sequencer) Close(targetPage *pagecodec.Page) error {
	s.mu.Lock()
	var nonEmpty []*run
	for _, r := range s.runs {
		if len(r.samples) > 0 {
			nonEmpty = append(nonEmpty, r)
		}
	}
	s.runs = nil
	s.pendingReady = append(s.pendingReady, nonEmpty...)
	s.mu.Unlock()
	return s.MergeAndCompress(targetPage)
}

// Reset forces everything into ready and discards it without writing,
// e.g. when a page is abandoned (spec.md §4.3 reset()).
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = nil
	s.pendingReady = nil
	s.topTimestamp = 0
	s.haveTop = false
	s.checkpointNum = 0
	s.mergeInProgress.Store(false)
}

// TopTimestamp returns the maximum timestamp ever accepted.
func (s *Sequencer) TopTimestamp() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topTimestamp
}

// SeqCounter returns the sequence counter's current value: odd means a
// merge is in progress and readers must retry, even means stable.
func (s *Sequencer) SeqCounter() uint64 {
	return s.seqCounter.Load()
}
