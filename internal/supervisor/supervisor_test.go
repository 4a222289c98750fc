package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStopRunsHooksInReverseOrder(t *testing.T) {
	s := New(nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.OnShutdown(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.NoError(t, s.Stop())
	require.NoError(t, <-done)
	require.Equal(t, []int{2, 1, 0}, order)
}

func TestStopTimesOutOnSlowHook(t *testing.T) {
	s := New(nil)
	s.timeout = 10 * time.Millisecond
	s.OnShutdown(func() error {
		time.Sleep(time.Second)
		return nil
	})

	err := s.Stop()
	require.Equal(t, context.DeadlineExceeded, err)
}
