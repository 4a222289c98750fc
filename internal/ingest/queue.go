// Package ingest implements the ingestion pipeline (spec.md §4.6): a fixed
// number of lock-free SPSC queues feeding one dedicated writer, with a
// per-session spout vending pre-allocated sample slots over a pooled
// NonBlockingBitMap (github.com/launix-de/NonLockingReadMap), grounded on
// storage/settings.go's onexit-registered lifecycle and scm/network.go's
// goroutine-per-connection reactor shape.
package ingest

import (
	"sync/atomic"

	"github.com/launix-de/chronostore/internal/pagecodec"
)

// queueCapacity is the default per-queue slot count (spec.md §4.6: "capacity
// ≈ 16"). Rounded up to a power of two so index wrap is a cheap mask.
const queueCapacity = 16

// slotMsg is what flows through a queue: a pointer into the spout's slot
// pool, or the poison sentinel (Spout == nil) used at shutdown.
type slotMsg struct {
	Spout     *Spout
	SlotIndex uint32
	Sample    pagecodec.Sample
}

func (m slotMsg) isPoison() bool { return m.Spout == nil }

// spscQueue is a bounded single-producer/single-consumer ring buffer. Only
// the spout that owns it calls Push; only the writer calls Pop.
type spscQueue struct {
	buf  [queueCapacity]slotMsg
	head atomic.Uint64 // next slot the consumer will read
	tail atomic.Uint64 // next slot the producer will write
}

// tryPush returns false if the queue is full; the caller (the spout) is the
// one that applies a back-pressure policy on false.
func (q *spscQueue) tryPush(m slotMsg) bool {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail-head >= queueCapacity {
		return false
	}
	q.buf[tail%queueCapacity] = m
	q.tail.Store(tail + 1)
	return true
}

// tryPop returns false if the queue is empty.
func (q *spscQueue) tryPop() (slotMsg, bool) {
	head := q.head.Load()
	tail := q.tail.Load()
	if head == tail {
		return slotMsg{}, false
	}
	m := q.buf[head%queueCapacity]
	q.head.Store(head + 1)
	return m, true
}

// depth reports the number of queued-but-not-yet-popped messages. Racy by
// nature (head/tail are independently loaded) but good enough for
// monitoring snapshots, which never need more than eventual consistency.
func (q *spscQueue) depth() int {
	return int(q.tail.Load() - q.head.Load())
}
