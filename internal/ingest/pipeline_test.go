package ingest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launix-de/chronostore/internal/pagecodec"
	"github.com/stretchr/testify/require"
)

func TestPipelineFIFOPerSpout(t *testing.T) {
	var mu sync.Mutex
	var got []pagecodec.Sample
	p := NewPipeline(2, func(s pagecodec.Sample) error {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		return nil
	}, nil)

	go p.Run()

	spout := p.NewSpout(LinearBackoff, nil)
	for i := 0; i < 100; i++ {
		spout.Write(pagecodec.Sample{SeriesID: 1, Timestamp: uint64(i), Value: float64(i)})
	}

	p.Shutdown()
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	})

	mu.Lock()
	defer mu.Unlock()
	for i, s := range got {
		require.Equal(t, uint64(i), s.Timestamp, "same-spout samples must arrive FIFO")
	}
}

func TestSpoutThrottleDropsOnFullQueue(t *testing.T) {
	blocked := make(chan struct{})
	p := NewPipeline(1, func(s pagecodec.Sample) error {
		<-blocked // hold every write so the spout's queue fills up
		return nil
	}, nil)
	go p.Run()

	var dropped atomic.Int64
	spout := p.NewSpout(Throttle, func(pagecodec.Sample, error) {})
	for i := 0; i < PoolSize+queueCapacity+4; i++ {
		if !spout.Write(pagecodec.Sample{SeriesID: 1, Timestamp: uint64(i)}) {
			dropped.Add(1)
		}
	}
	require.Greater(t, dropped.Load(), int64(0), "Throttle must drop once the queue is full")
	close(blocked)
	p.Shutdown()
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
