// Package latch provides the latch primitives the idle-coordination core
// treats as an external collaborator: a latch is anything a worker's scan
// loop probes for signaled state, and every transition into signaled must be
// followed by a tickle so no sleeper misses it.
//
// This mirrors the SpinLatch pattern from fork/join scheduling: join pushes
// a stack job with a latch, executes one half inline, then probes the latch
// in a loop, popping and running other jobs (or waiting) until it fires.
package latch

import "go.uber.org/atomic"

// tickler is satisfied by *idle.Core; latch depends only on this narrow
// interface so it has no import-time dependency on the idle package -- a
// latch is an external collaborator the core knows only by contract
// (Tickle), never by concrete type.
type tickler interface {
	Tickle(originWorkerIndex int)
}

// Spin is a one-shot latch: it starts unset and can be Set exactly once.
// Probe is wait-free and safe to call from any goroutine, including
// concurrently with Set.
type Spin struct {
	set    atomic.Bool
	core   tickler
	origin int
}

// NewSpin returns a latch that tickles core (with the given origin worker
// index, or -1) when it is set.
func NewSpin(core tickler, originWorkerIndex int) *Spin {
	return &Spin{core: core, origin: originWorkerIndex}
}

// Probe reports whether the latch has fired.
func (s *Spin) Probe() bool {
	return s.set.Load()
}

// Set fires the latch. Safe to call more than once; only the first call
// tickles.
func (s *Spin) Set() {
	if s.set.CAS(false, true) {
		if s.core != nil {
			s.core.Tickle(s.origin)
		}
	}
}

// Countdown is a latch that fires once N decrements have all been observed,
// the same shape as sync.WaitGroup but exposing a lock-free Probe suitable
// for a steal-loop scan and tickling on the transition to zero.
type Countdown struct {
	remaining atomic.Int64
	set       atomic.Bool
	core      tickler
	origin    int
}

// NewCountdown returns a latch that fires after n calls to Done, tickling
// core when it does. n must be >= 0; n == 0 fires immediately.
func NewCountdown(core tickler, originWorkerIndex int, n int) *Countdown {
	c := &Countdown{core: core, origin: originWorkerIndex}
	c.remaining.Store(int64(n))
	if n <= 0 {
		c.fire()
	}
	return c
}

// Done decrements the latch's counter, firing it if this was the last
// decrement.
func (c *Countdown) Done() {
	if c.remaining.Dec() <= 0 {
		c.fire()
	}
}

func (c *Countdown) fire() {
	if c.set.CAS(false, true) {
		if c.core != nil {
			c.core.Tickle(c.origin)
		}
	}
}

// Probe reports whether the latch has fired.
func (c *Countdown) Probe() bool {
	return c.set.Load()
}
