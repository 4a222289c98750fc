package sequencer

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/launix-de/chronostore/internal/errs"
	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/stretchr/testify/require"
)

func newTestPage(t *testing.T) *pagecodec.Page {
	t.Helper()
	buf := make([]byte, 16*pagecodec.BlockSize)
	return pagecodec.NewPage(buf, 1)
}

func drainChunks(t *testing.T, page *pagecodec.Page) []pagecodec.Sample {
	t.Helper()
	var out []pagecodec.Sample
	for _, e := range page.IndexEntries() {
		samples, err := page.ChunkAt(e.Offset)
		require.NoError(t, err)
		out = append(out, samples...)
	}
	return out
}

// Scenario 4 (spec.md §4.3 sequencer test plan): reorder within window.
func TestSequencerReorderWithinWindow(t *testing.T) {
	seq := New(1000, 1)
	page := newTestPage(t)

	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 100}))
	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 50}))
	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 80}))

	// Advance checkpoint one window at a time so that the threshold used
	// by the next checkpoint (old_ckpt * window_size) actually covers the
	// three samples above, per spec.md §4.3 checkpoint() step 2.
	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 9, Timestamp: 1000}))
	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 9, Timestamp: 2000}))

	require.NoError(t, seq.MergeAndCompress(page))

	got := drainChunks(t, page)
	require.Len(t, got, 3)
	var ts []uint64
	for _, s := range got {
		ts = append(ts, s.Timestamp)
	}
	require.Equal(t, []uint64{50, 80, 100}, ts)
}

// Scenario 5: late-write rejection.
func TestSequencerLateWriteRejection(t *testing.T) {
	seq := New(1000, 1)
	page := newTestPage(t)

	seq.topTimestamp = 5000
	seq.haveTop = true

	err := seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 3999})
	require.ErrorIs(t, err, errs.LateWrite)

	require.NoError(t, seq.Close(page))
	got := drainChunks(t, page)
	for _, s := range got {
		require.NotEqual(t, uint64(3999), s.Timestamp)
	}
}

// Sequencer window bound: no sample earlier than top_timestamp-window_size
// is ever accepted, across a randomized stream.
func TestSequencerWindowBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seq := New(500, 4)
	page := newTestPage(t)

	var top uint64
	for i := 0; i < 500; i++ {
		delta := rng.Intn(200) - 100 // sometimes behind "top"
		signed := int64(top) + int64(delta)
		if signed < 0 {
			signed = 0
		}
		ts := uint64(signed)
		if ts > top {
			top = ts
		}
		err := seq.Add(pagecodec.Sample{SeriesID: uint64(rng.Intn(5)), Timestamp: ts})
		if err != nil {
			require.True(t, err == errs.LateWrite || err == errs.Busy, "unexpected error: %v", err)
		}
		if i%30 == 0 {
			require.NoError(t, seq.MergeAndCompress(page))
		}
	}
	require.NoError(t, seq.Close(page))
	_ = drainChunks(t, page) // must not panic/err; bound itself enforced inside Add
}

// Sequencer sortedness: every chunk emitted is non-decreasing in timestamp.
func TestSequencerSortedness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seq := New(1000, 8)
	page := newTestPage(t)

	top := uint64(10000)
	for i := 0; i < 300; i++ {
		ts := top - uint64(rng.Intn(900)) // within the window, reordered
		if ts > top {
			top = ts
		}
		err := seq.Add(pagecodec.Sample{SeriesID: uint64(rng.Intn(10)), Timestamp: ts})
		require.NoError(t, err)
		if i%40 == 0 {
			top += 1200
			require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 999, Timestamp: top}))
		}
		// Drain after every add so a committed checkpoint never leaves
		// mergeInProgress set across iterations (which would surface as
		// errs.Busy on the next windowed add).
		require.NoError(t, seq.MergeAndCompress(page))
	}
	require.NoError(t, seq.Close(page))

	for _, e := range page.IndexEntries() {
		samples, err := page.ChunkAt(e.Offset)
		require.NoError(t, err)
		for i := 1; i < len(samples); i++ {
			require.LessOrEqual(t, samples[i-1].Timestamp, samples[i].Timestamp)
		}
	}
}

// Sequencer no-loss: every accepted sample appears in exactly one chunk.
func TestSequencerNoLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	seq := New(1000, 8)
	page := newTestPage(t)

	type key struct {
		id uint64
		ts uint64
	}
	accepted := map[key]float64{}

	top := uint64(50000)
	for i := 0; i < 400; i++ {
		ts := top - uint64(rng.Intn(900))
		if ts > top {
			top = ts
		}
		sample := pagecodec.Sample{SeriesID: uint64(rng.Intn(20)), Timestamp: ts, Value: rng.Float64()}
		err := seq.Add(sample)
		if err == nil {
			accepted[key{sample.SeriesID, sample.Timestamp}] = sample.Value
		} else {
			require.ErrorIs(t, err, errs.LateWrite)
		}
		if i%50 == 0 {
			top += 1500
			bump := pagecodec.Sample{SeriesID: 999, Timestamp: top}
			require.NoError(t, seq.Add(bump))
			accepted[key{bump.SeriesID, bump.Timestamp}] = bump.Value
		}
		require.NoError(t, seq.MergeAndCompress(page))
	}
	require.NoError(t, seq.Close(page))

	seen := map[key]bool{}
	got := drainChunks(t, page)
	for _, s := range got {
		k := key{s.SeriesID, s.Timestamp}
		require.False(t, seen[k], "duplicate sample in output: %+v", s)
		seen[k] = true
	}
	for k := range accepted {
		require.True(t, seen[k], "accepted sample missing from output: %+v", k)
	}
	require.Equal(t, len(accepted), len(got))
}

// Busy: a checkpoint triggered while a merge is already in progress is
// rejected rather than interleaved (spec.md §4.3 add() step 2).
func TestSequencerBusyOnConcurrentMerge(t *testing.T) {
	seq := New(1000, 1)
	require.NoError(t, seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 100}))

	seq.mergeInProgress.Store(true)
	err := seq.Add(pagecodec.Sample{SeriesID: 1, Timestamp: 2000})
	require.ErrorIs(t, err, errs.Busy)
}

func TestKWayMergeRunsDedupeTies(t *testing.T) {
	runs := []*run{
		{samples: []pagecodec.Sample{{SeriesID: 1, Timestamp: 10, Value: 1}, {SeriesID: 1, Timestamp: 20}}},
		{samples: []pagecodec.Sample{{SeriesID: 1, Timestamp: 10, Value: 2}, {SeriesID: 2, Timestamp: 15}}},
	}
	got := kWayMergeRuns(runs)
	want := []pagecodec.Sample{
		{SeriesID: 1, Timestamp: 10, Value: 2}, // second run's value wins the exact tie
		{SeriesID: 2, Timestamp: 15},
		{SeriesID: 1, Timestamp: 20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("kWayMergeRuns mismatch (-want +got):\n%s", diff)
	}
}
