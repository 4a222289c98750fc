package sequencer

import "github.com/launix-de/chronostore/internal/pagecodec"

// skew heap k-way merge (spec.md §4.3 merge_and_compress step 1). A skew
// heap merges in amortized O(log n) with no balance bookkeeping, a good
// match for the "merge then immediately drain to empty" access pattern a
// checkpoint's k-way merge needs. Grounded in spirit on scm/scheduler.go's
// use of a heap for time-ordered work, adapted here from a time-heap
// keyed on (time.Time, id) to a sample-heap keyed on (timestamp, series_id).

type heapItem struct {
	sample pagecodec.Sample
	run    int // which run this element came from, for k-way merge refill
	idx    int // index within that run
}

// itemLess orders the heap by (timestamp, series_id); ties between
// identical (timestamp, series_id) keys coming from different runs are
// broken by run index so that the higher run index pops last and wins the
// merge's de-dup step deterministically.
func itemLess(a, b heapItem) bool {
	if a.sample.Timestamp != b.sample.Timestamp {
		return a.sample.Timestamp < b.sample.Timestamp
	}
	if a.sample.SeriesID != b.sample.SeriesID {
		return a.sample.SeriesID < b.sample.SeriesID
	}
	return a.run < b.run
}

type skewNode struct {
	val         heapItem
	left, right *skewNode
}

type skewHeap struct {
	root *skewNode
	size int
}

func mergeNodes(a, b *skewNode) *skewNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if itemLess(b.val, a.val) {
		a, b = b, a
	}
	a.right = mergeNodes(a.right, b)
	a.left, a.right = a.right, a.left
	return a
}

func (h *skewHeap) push(v heapItem) {
	h.root = mergeNodes(h.root, &skewNode{val: v})
	h.size++
}

func (h *skewHeap) popMin() (heapItem, bool) {
	if h.root == nil {
		return heapItem{}, false
	}
	v := h.root.val
	h.root = mergeNodes(h.root.left, h.root.right)
	h.size--
	return v, true
}

func (h *skewHeap) empty() bool { return h.root == nil }
