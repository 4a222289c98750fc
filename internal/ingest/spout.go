package ingest

import (
	"runtime"
	"time"

	"github.com/launix-de/NonLockingReadMap"
	"github.com/launix-de/chronostore/internal/pagecodec"
)

// PoolSize is the default number of pre-allocated slots per spout
// (spec.md §4.6: "default 512").
const PoolSize = 512

// BackpressurePolicy selects what a spout does when its pool is exhausted
// (created-deleted == PoolSize) or its queue is full.
type BackpressurePolicy int

const (
	// LinearBackoff yields the CPU and retries indefinitely.
	LinearBackoff BackpressurePolicy = iota
	// Throttle sleeps 1ms and drops the sample, returning immediately.
	Throttle
)

// ErrorCallback is invoked by the writer when a write fails for a sample
// this spout produced.
type ErrorCallback func(pagecodec.Sample, error)

// Spout is a single session's handle onto the pipeline: a pool of
// pre-allocated slots tracked by two monotonic counters plus a
// NonBlockingBitMap marking which slots are currently in flight, a
// reference to one of the N queues chosen round-robin at creation, and the
// session's error callback (spec.md §4.6).
type Spout struct {
	queue    *spscQueue
	policy   BackpressurePolicy
	onError  ErrorCallback
	created  uint64 // bumped by the producer (this spout's owning session)
	deleted  uint64 // bumped by the writer via slotDone
	inFlight NonLockingReadMap.NonBlockingBitMap
}

func newSpout(q *spscQueue, policy BackpressurePolicy, onError ErrorCallback) *Spout {
	return &Spout{queue: q, policy: policy, onError: onError, inFlight: NonLockingReadMap.NewBitMap()}
}

// Write reserves a slot and pushes the sample onto the spout's queue,
// applying the configured back-pressure policy if the pool or queue is
// full. Returns false if the sample was dropped (Throttle policy only).
func (s *Spout) Write(sample pagecodec.Sample) bool {
	for {
		if s.created-s.deleted < PoolSize {
			slot := uint32(s.created % PoolSize)
			s.inFlight.Set(slot, true)
			s.created++
			if s.queue.tryPush(slotMsg{Spout: s, SlotIndex: slot, Sample: sample}) {
				return true
			}
			// queue full even though the pool had room: undo the reservation
			// and fall through to the back-pressure policy below.
			s.inFlight.Set(slot, false)
			s.created--
		}
		switch s.policy {
		case Throttle:
			time.Sleep(time.Millisecond)
			return false
		default: // LinearBackoff
			runtime.Gosched()
		}
	}
}

// slotDone is called by the writer after processing a slot: it bumps the
// deleted counter and clears the in-flight bit, per spec.md §4.6's
// "invariant: a slot is never reused while the writer still references it."
func (s *Spout) slotDone(slot uint32, sample pagecodec.Sample, err error) {
	s.inFlight.Set(slot, false)
	s.deleted++
	if err != nil && s.onError != nil {
		s.onError(sample, err)
	}
}

// Backlog reports the producer/consumer gap (created - deleted): writes
// this spout has queued that the writer has not finished yet.
func (s *Spout) Backlog() uint64 { return s.created - s.deleted }
