package idle

import (
	"context"
	"runtime"

	"github.com/taskmesh/idlecore/tracing"
)

// Default threshold constants (N=4, RoundsUntilSleepy=32,
// RoundsUntilAsleep=64 is the canonical worked example). Callers that need
// different thresholds construct a Core with NewWithThresholds.
const (
	DefaultRoundsUntilSleepy = 32
	DefaultRoundsUntilAsleep = 64
)

// Core is the idle-coordination core for N worker goroutines. It has no
// knowledge of deques, injectors, or latches -- those are external
// collaborators that call Tickle after making work available, and whose
// scan loops call WorkFound/NoWorkFound after each pass.
//
// Correctness rests on two race arguments, both requiring every operation on
// the state cell to be sequentially consistent:
//
//  1. Tickle-then-get-sleepy: a writer publishes work, then tickles. A
//     worker that subsequently CASes itself into sleepy must observe the
//     published work on its next scan. Weaker-than-seq-cst orderings permit
//     the tickle's load to be reordered ahead of the writer's own prior
//     writes, and the sleepy CAS could then observe an empty cell while
//     missing work that happened-before the tickle's load.
//  2. Get-sleepy-then-get-tickled: a worker becomes sleepy, then rescans,
//     while a concurrent writer publishes and tickles. The tickle's load
//     must observe the sleepy slot and clear it, so the sleepy worker's next
//     state load tells it to abandon sleep. Acquire/release loads and
//     stores don't guarantee the tickle's load promptly observes the sleepy
//     CAS.
//
// A single total seq-cst order over every load/CAS/swap on the cell makes
// both cases provable by case analysis on that order; see the package tests
// for the six worked scenarios this is checked against.
type Core struct {
	cell              cell
	blocker           *blocker
	n                 int
	roundsUntilSleepy uint32
	roundsUntilAsleep uint32
	yieldHint         bool
	tracer            tracing.Tracer

	onTransition []func(workerIndex int, from, to string)
}

// New returns a Core for n workers using the canonical thresholds.
func New(n int) *Core {
	return NewWithThresholds(n, DefaultRoundsUntilSleepy, DefaultRoundsUntilAsleep)
}

// NewWithThresholds returns a Core for n workers with explicit sleepy/asleep
// thresholds. roundsUntilSleepy must be strictly less than roundsUntilAsleep;
// callers that need to validate that at a system boundary (e.g. loading
// configuration) should do so before calling this constructor -- the core
// itself treats a bad ordering as misuse, same as any other contract
// violation, not a checked error.
func NewWithThresholds(n int, roundsUntilSleepy, roundsUntilAsleep uint32) *Core {
	return &Core{
		blocker:           newBlocker(),
		n:                 n,
		roundsUntilSleepy: roundsUntilSleepy,
		roundsUntilAsleep: roundsUntilAsleep,
		yieldHint:         true,
		tracer:            tracing.NopTracer(),
	}
}

// SetTracer installs a tracer used to span the time a worker spends
// committed to blocking on the condvar (see sleep). The default is a no-op
// tracer; callers that want visibility into wake latency wire in
// tracing.GlobalTracer or an opentracing.Tracer-backed implementation.
func (c *Core) SetTracer(t tracing.Tracer) {
	if t == nil {
		t = tracing.NopTracer()
	}
	c.tracer = t
}

// SetYieldHint controls whether NoWorkFound issues a runtime.Gosched() hint
// between scan rounds. This is a tunable outside the correctness envelope
// (left to the caller's judgment) -- disabling it makes idle workers
// pure-spin, which trades scheduler fairness for lower wake latency.
func (c *Core) SetYieldHint(on bool) {
	c.yieldHint = on
}

// OnTransition registers an additional hook invoked (best-effort, not
// linearized with the transition itself) whenever a worker's per-worker
// state machine moves between Awake/Sleepy/Asleep. Hooks compose: each call
// adds a listener rather than replacing ones already registered, so a
// logging hook and a metrics hook can both be installed on the same Core.
// Intended for logging and metrics; must not block or call back into the
// Core.
func (c *Core) OnTransition(fn func(workerIndex int, from, to string)) {
	if fn == nil {
		return
	}
	c.onTransition = append(c.onTransition, fn)
}

func (c *Core) transition(workerIndex int, from, to string) {
	for _, fn := range c.onTransition {
		fn(workerIndex, from, to)
	}
}

// SleepyWorker reports the worker currently occupying the sleepy slot, if
// any, as a single atomic load of the state cell. By the time the caller
// observes the result the slot may already have changed; suitable for
// monitoring snapshots, not for synchronization.
func (c *Core) SleepyWorker() (workerIndex int, ok bool) {
	s := c.cell.load()
	if !s.anyoneSleepy() {
		return 0, false
	}
	return s.sleepyWorker(), true
}

// N reports the number of workers this Core was constructed for.
func (c *Core) N() int {
	return c.n
}

// WorkFound is called when a worker has located a task and is about to
// execute it. If this worker was the sleepy one, its slot is cleared. It
// always returns 0, the new yields count for the caller to store.
//
// Calling WorkFound while the worker is asleep, or with a workerIndex >= N,
// is a contract violation; this is undefined behavior, not a checked error.
func (c *Core) WorkFound(workerIndex int, yields uint32) uint32 {
	if yields > c.roundsUntilSleepy {
		s := c.cell.load()
		if c.cell.clearSleepySlot(workerIndex, s) && s.isSleepyWorker(workerIndex) {
			c.transition(workerIndex, "Sleepy", "Awake")
		}
	}
	return 0
}

// NoWorkFound is called after a worker completes one full scan of every work
// source and finds nothing. The scan's coverage must be such that any work
// published before the scan started would have been observed; work
// published during the scan may legitimately be missed, which is exactly
// the window the sleepy phase exists to close on the next iteration.
//
// ctx is consulted only before committing to block (see sleep): once a
// worker has CAS'd itself into asleep it waits on the condvar
// unconditionally, honoring the "no cancellation on Sleep" invariant. A
// canceled ctx short-circuits NoWorkFound to return 0 immediately, letting a
// shutting-down worker loop notice its context and exit rather than block.
func (c *Core) NoWorkFound(ctx context.Context, workerIndex int, yields uint32) uint32 {
	switch {
	case yields < c.roundsUntilSleepy:
		c.maybeYield()
		return yields + 1

	case yields == c.roundsUntilSleepy:
		s := c.cell.load()
		if s.anyoneSleepy() {
			c.maybeYield()
			return yields
		}
		if c.cell.tryBecomeSleepy(workerIndex, s) {
			c.transition(workerIndex, "Awake", "Sleepy")
			return yields + 1
		}
		c.maybeYield()
		return yields

	case yields < c.roundsUntilAsleep:
		s := c.cell.load()
		if !s.isSleepyWorker(workerIndex) {
			c.transition(workerIndex, "Sleepy", "Awake")
			return 0
		}
		c.maybeYield()
		return yields + 1

	default:
		select {
		case <-ctx.Done():
			return 0
		default:
		}
		return c.sleep(ctx, workerIndex)
	}
}

func (c *Core) maybeYield() {
	if c.yieldHint {
		runtime.Gosched()
	}
}

// sleep is the deepest regime of NoWorkFound: the calling worker attempts to
// commit to blocking on the shared condvar. It always returns 0; callers
// resume their scan loop with yields reset regardless of which branch was
// taken, since a false start here (lost the sleepy slot, lost the CAS,
// spurious wakeup) is always safe to treat as "start over".
func (c *Core) sleep(ctx context.Context, workerIndex int) uint32 {
	c.blocker.mu.Lock()
	defer c.blocker.mu.Unlock()

	s := c.cell.load()
	if !s.isSleepyWorker(workerIndex) {
		return 0
	}
	if !c.cell.tryFallAsleep(workerIndex, s) {
		return 0
	}
	c.transition(workerIndex, "Sleepy", "Asleep")

	span, _ := c.tracer.StartSpanFromContext(ctx, "idle.Sleep")
	span.LogKV("workerIndex", workerIndex)
	c.blocker.cond.Wait()
	span.Finish()

	c.transition(workerIndex, "Asleep", "Awake")
	return 0
}

// Tickle is invoked on every event that may release or feed a worker: a
// push to any deque, an injection, a latch set. It is designed to be
// extremely cheap in the common case where no one is sleepy or asleep.
// originWorkerIndex identifies the worker that caused the tickle, or -1 if
// the tickler is not itself a worker (an injector or a latch setter); the
// core does not currently use this beyond making the call site
// self-documenting, since wakeups are broadcast to every sleeper rather than
// targeted at one.
func (c *Core) Tickle(originWorkerIndex int) {
	s := c.cell.load()
	if s == 0 {
		return
	}
	old := c.cell.clearViaSwap()
	if old == 0 {
		return
	}
	if old.anySleeping() {
		c.blocker.notifyAll()
	}
}
