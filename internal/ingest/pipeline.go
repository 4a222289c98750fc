package ingest

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/launix-de/chronostore/internal/pagecodec"
)

// QueueCount is the default number of SPSC queues (spec.md §4.6: "default
// N = 8").
const QueueCount = 8

// idleThreshold is the number of consecutive empty polls across all queues
// before the writer sleeps instead of busy-spinning (spec.md §4.6).
const idleThreshold = 65536

// WriteFunc is the storage façade's write(sample) entry point.
type WriteFunc func(pagecodec.Sample) error

// Pipeline owns the N SPSC queues and runs the single writer task that
// drains them round-robin, grounded on spec.md §4.6's topology.
type Pipeline struct {
	queues []*spscQueue
	next   atomic.Uint64
	write  WriteFunc
	log    *slog.Logger
}

func NewPipeline(n int, write WriteFunc, log *slog.Logger) *Pipeline {
	if n <= 0 {
		n = QueueCount
	}
	p := &Pipeline{queues: make([]*spscQueue, n), write: write, log: log}
	for i := range p.queues {
		p.queues[i] = &spscQueue{}
	}
	return p
}

// NewSpout vends a session-owned spout bound to one queue, chosen
// round-robin across the N queues at creation time.
func (p *Pipeline) NewSpout(policy BackpressurePolicy, onError ErrorCallback) *Spout {
	idx := p.next.Add(1) - 1
	q := p.queues[idx%uint64(len(p.queues))]
	return newSpout(q, policy, onError)
}

// Run drains the N queues round-robin until Shutdown has pushed a poison
// sample into every one of them and all have been observed, then drains
// whatever remains (logging it as lost) and returns.
func (p *Pipeline) Run() {
	poisonsSeen := 0
	idle := 0
	for poisonsSeen < len(p.queues) {
		progressed := false
		for _, q := range p.queues {
			m, ok := q.tryPop()
			if !ok {
				continue
			}
			progressed = true
			if m.isPoison() {
				poisonsSeen++
				continue
			}
			p.process(m)
		}
		if !progressed {
			idle++
			if idle >= idleThreshold {
				time.Sleep(time.Millisecond)
				idle = 0
			}
		} else {
			idle = 0
		}
	}
	p.drainRemaining()
}

func (p *Pipeline) process(m slotMsg) {
	err := p.write(m.Sample)
	m.Spout.slotDone(m.SlotIndex, m.Sample, err)
}

// drainRemaining empties every queue after all poisons have been seen,
// logging anything still queued per spec.md §4.6's shutdown step.
func (p *Pipeline) drainRemaining() {
	for _, q := range p.queues {
		for {
			m, ok := q.tryPop()
			if !ok {
				break
			}
			if m.isPoison() {
				continue
			}
			if p.log != nil {
				p.log.Warn("data will be lost: sample still queued at shutdown",
					"series_id", m.Sample.SeriesID, "timestamp", m.Sample.Timestamp)
			}
		}
	}
}

// QueueDepths reports the current backlog of each queue, in round-robin
// assignment order, for the monitoring endpoint (spec.md §6 ambient stats).
func (p *Pipeline) QueueDepths() []int {
	depths := make([]int, len(p.queues))
	for i, q := range p.queues {
		depths[i] = q.depth()
	}
	return depths
}

// Shutdown pushes a poison sample into every queue so Run can begin
// winding down (spec.md §4.6).
func (p *Pipeline) Shutdown() {
	for _, q := range p.queues {
		for !q.tryPush(slotMsg{Spout: nil}) {
			// queue momentarily full; the writer will make room shortly
			time.Sleep(time.Millisecond)
		}
	}
}
