package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskmesh/idlecore/deque"
	"github.com/taskmesh/idlecore/idle"
)

// TestPoolDrainsInjectedWork pushes a fixed batch of tasks into a shared
// injector and confirms every worker's scan loop eventually runs all of
// them, even as workers fall sleepy and asleep in between batches -- a
// Scanner's coverage requirement exercised end to end.
func TestPoolDrainsInjectedWork(t *testing.T) {
	const n = 4
	const total = 500

	core := idle.NewWithThresholds(n, 4, 8)
	injector := deque.NewInjector(core, -1)

	var done int64
	scan := func(ctx context.Context, workerIndex int) bool {
		_, ok := injector.Pop()
		if !ok {
			return false
		}
		atomic.AddInt64(&done, 1)
		return true
	}

	pool := New(core, n, scan)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()

	for i := 0; i < total; i++ {
		injector.Push(i)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&done) == total
	}, 5*time.Second, time.Millisecond)

	cancel()
	wg.Wait()
	pool.Close()
}

// TestPoolShutdownDoesNotDeadlock verifies that a pool whose workers never
// find work still shuts down cleanly and promptly once its context is
// canceled, regardless of how many of them are already asleep.
func TestPoolShutdownDoesNotDeadlock(t *testing.T) {
	core := idle.NewWithThresholds(3, 2, 3)
	scan := func(context.Context, int) bool { return false }
	pool := New(core, 3, scan)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // let workers reach sleepy/asleep
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down after context cancellation")
	}
	pool.Close()
}

func TestStats_LiveCountMatchesWorkerCount(t *testing.T) {
	core := idle.New(3)
	scan := func(context.Context, int) bool { return false }
	pool := New(core, 3, scan)

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)

	require.Eventually(t, func() bool {
		return pool.Stats().Live == 3
	}, time.Second, time.Millisecond)

	cancel()
	pool.Close()
	require.Equal(t, 0, pool.Stats().Live)
}
