package idle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCore() *Core {
	return NewWithThresholds(4, 32, 64)
}

// S1: steady work. Worker 2 calls WorkFound(2, 5) -> returns 0, state stays
// at 0.
func TestScenario1_SteadyWork(t *testing.T) {
	c := newTestCore()
	got := c.WorkFound(2, 5)
	require.EqualValues(t, 0, got)
	require.EqualValues(t, 0, c.cell.load())
}

// S2: becoming sleepy. Worker 1 calls NoWorkFound(1, 32) with state == 0.
// State CAS's to (1+1)<<1 = 4. Return value: 33.
func TestScenario2_BecomingSleepy(t *testing.T) {
	c := newTestCore()
	got := c.NoWorkFound(context.Background(), 1, 32)
	require.EqualValues(t, 33, got)
	require.EqualValues(t, 4, c.cell.load())
}

// S3: sleepy loses to another sleepy. State == 4 (worker 0 sleepy). Worker 1
// calls NoWorkFound(1, 32); returns 32 (no advance), state stays at 4.
func TestScenario3_SleepyLosesToAnotherSleepy(t *testing.T) {
	c := newTestCore()
	c.cell.word.Store(4)
	c.SetYieldHint(false)
	got := c.NoWorkFound(context.Background(), 1, 32)
	require.EqualValues(t, 32, got)
	require.EqualValues(t, 4, c.cell.load())
}

// S4: tickle during sleepy. State == 4. External tickle swaps to 0, no
// notify (any-asleep bit was 0). Worker 0's next NoWorkFound(0, 40) sees the
// sleepy slot no longer names it and returns 0.
func TestScenario4_TickleDuringSleepy(t *testing.T) {
	c := newTestCore()
	c.cell.word.Store(4)
	c.Tickle(-1)
	require.EqualValues(t, 0, c.cell.load())

	got := c.NoWorkFound(context.Background(), 0, 40)
	require.EqualValues(t, 0, got)
}

// S5: fall asleep and wake. Worker 3 with yields=64 enters sleep; a
// concurrent tickle wakes it via notify_all.
func TestScenario5_FallAsleepAndWake(t *testing.T) {
	c := newTestCore()
	c.cell.word.Store(8) // (3+1)<<1

	woke := make(chan uint32, 1)
	go func() {
		woke <- c.NoWorkFound(context.Background(), 3, 64)
	}()

	require.Eventually(t, func() bool {
		return c.cell.load() == 1
	}, time.Second, time.Millisecond, "worker never committed to sleep")

	c.Tickle(2)

	select {
	case got := <-woke:
		require.EqualValues(t, 0, got)
	case <-time.After(time.Second):
		t.Fatal("sleeping worker was never woken")
	}
}

// S6: tickle-then-sleepy ordering. A latch-like flag is set, then tickled,
// concurrently with a worker CASing itself into sleepy. The worker's next
// scan after the sleepy CAS must observe the flag. This spawns the two
// threads across many interleavings.
func TestScenario6_TickleThenSleepyOrdering(t *testing.T) {
	for i := 0; i < 2000; i++ {
		c := newTestCore()
		c.SetYieldHint(false)

		var latch atomicBool
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			latch.set(true)
			c.Tickle(-1)
		}()

		var sawLatch bool
		go func() {
			defer wg.Done()
			c.NoWorkFound(context.Background(), 1, 32)
			// The next scan after becoming sleepy must observe the latch,
			// because the sleepy CAS is seq-cst ordered against the
			// tickle's load, which happens-after the latch write.
			sawLatch = latch.get()
		}()

		wg.Wait()
		require.True(t, sawLatch, "iteration %d: sleepy worker's rescan missed the latch write", i)
	}
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

// Invariant: at most one worker is ever the sleepy worker at a time, even
// under concurrent NoWorkFound calls racing to become sleepy from the same
// starting state.
func TestInvariant_UniqueSleepy(t *testing.T) {
	const threshold = 4
	c := NewWithThresholds(8, threshold, 1000)
	c.SetYieldHint(false)

	var wg sync.WaitGroup
	results := make([]uint32, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = c.NoWorkFound(context.Background(), idx, threshold)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		if r == threshold+1 {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one worker should win the sleepy CAS")

	final := c.cell.load()
	require.True(t, final.anyoneSleepy())
}

// work_found immediately after no_work_found yielding sleepy: the sleepy
// slot is cleared, and a subsequent tickle is a no-op.
func TestRoundTrip_WorkFoundClearsSleepy(t *testing.T) {
	c := newTestCore()
	yields := c.NoWorkFound(context.Background(), 1, 32)
	require.EqualValues(t, 33, yields)
	require.True(t, c.cell.load().isSleepyWorker(1))

	c.WorkFound(1, yields)
	require.EqualValues(t, 0, c.cell.load())

	// A subsequent tickle observes 0 and performs no write.
	before := c.cell.load()
	c.Tickle(-1)
	require.Equal(t, before, c.cell.load())
}

// Two back-to-back tickles with no intervening sleepy/asleep transition: the
// second is a load that observes 0 and returns.
func TestIdempotence_BackToBackTickles(t *testing.T) {
	c := newTestCore()
	c.cell.word.Store(4)
	c.Tickle(-1)
	require.EqualValues(t, 0, c.cell.load())
	c.Tickle(-1)
	require.EqualValues(t, 0, c.cell.load())
}

func TestNoWorkFound_BelowThreshold(t *testing.T) {
	c := newTestCore()
	got := c.NoWorkFound(context.Background(), 0, 0)
	require.EqualValues(t, 1, got)
	require.EqualValues(t, 0, c.cell.load())
}

func TestNoWorkFound_CanceledContextShortCircuitsSleep(t *testing.T) {
	c := newTestCore()
	c.cell.word.Store(8) // worker 3 sleepy
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := c.NoWorkFound(ctx, 3, 64)
	require.EqualValues(t, 0, got)
	// The cell is untouched: a canceled context short-circuits before the
	// fall-asleep CAS, it doesn't clear another worker's sleepy slot.
	require.EqualValues(t, 8, c.cell.load())
}

func TestTransitionHook(t *testing.T) {
	c := newTestCore()
	var events []string
	c.OnTransition(func(workerIndex int, from, to string) {
		events = append(events, from+"->"+to)
	})
	c.NoWorkFound(context.Background(), 0, 32)
	require.Contains(t, events, "Awake->Sleepy")
}
