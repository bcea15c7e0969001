// Package workerpool drives a fixed set of goroutines through the
// idle-coordination protocol in package idle: each goroutine scans its work
// sources, feeds the result through idle.Core, and the pool's own shutdown
// uses a mutex-guarded live count plus a broadcast to drain cleanly.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/taskmesh/idlecore/idle"
)

// Scanner is supplied by the caller and performs one pass over every work
// source a worker knows about (its own deque, the shared injector, any
// latches of interest). It must observe any work published before the scan
// started. It returns true if it found and ran something.
type Scanner func(ctx context.Context, workerIndex int) (foundWork bool)

// Stats is a point-in-time, lock-free snapshot of the pool: individually-read
// counters with no cross-field consistency guarantee, suitable for
// monitoring, not for synchronization.
type Stats struct {
	Live   int
	Asleep int32
	// Sleepy is the index of the worker currently holding the sleepy slot,
	// or -1 if no worker is sleepy.
	Sleepy int
}

// Pool runs n goroutines, each looping Scanner against idle.Core's protocol
// until ctx is canceled.
type Pool struct {
	core    *idle.Core
	scan    Scanner
	n       int
	mu      sync.Mutex
	cond    *sync.Cond
	live    int32
	asleep  int32
	started bool
}

// New returns a pool of n workers around core, driving scan in each
// worker's loop. The pool does not start workers until Run is called.
func New(core *idle.Core, n int, scan Scanner) *Pool {
	p := &Pool{core: core, scan: scan, n: n}
	p.cond = sync.NewCond(&p.mu)
	core.OnTransition(p.onTransition)
	return p
}

func (p *Pool) onTransition(_ int, from, to string) {
	switch {
	case from == "Sleepy" && to == "Asleep":
		atomic.AddInt32(&p.asleep, 1)
	case from == "Asleep" && to == "Awake":
		atomic.AddInt32(&p.asleep, -1)
	}
}

// Run starts all n workers and blocks until ctx is canceled and every
// worker has exited. It tickles the core after ctx is canceled so that any
// sleeping worker wakes up to notice cancellation -- shutdown is just
// another latch observed by the steal loop, tickled after being set.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		panic("workerpool: Run called more than once")
	}
	p.started = true
	atomic.StoreInt32(&p.live, int32(p.n))
	p.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < p.n; i++ {
		wg.Add(1)
		go p.work(ctx, i, &wg)
	}

	go func() {
		<-ctx.Done()
		p.core.Tickle(-1)
	}()

	wg.Wait()
}

func (p *Pool) work(ctx context.Context, index int, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if atomic.AddInt32(&p.live, -1) == 0 {
			p.cond.Broadcast()
		}
	}()

	local := idle.NewWorkerLocal(index)
	for {
		if ctx.Err() != nil {
			return
		}
		if p.scan(ctx, index) {
			local.OnWorkFound(p.core)
			continue
		}
		local.OnNoWorkFound(ctx, p.core)
	}
}

// Close waits for every worker started by Run to exit. It is safe to call
// concurrently with Run: a worker's final live-count decrement could
// otherwise interleave with Close's read-then-wait, so both sides hold p.mu
// across the read/decrement and the Wait/Broadcast.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for atomic.LoadInt32(&p.live) > 0 {
		p.cond.Wait()
	}
}

// Stats returns a point-in-time snapshot of the pool, sampled without
// locking: live and asleep are independent atomic loads, and sleepy is a
// single load of the core's state cell, so the three numbers may not be
// mutually consistent with each other.
func (p *Pool) Stats() Stats {
	sleepy := -1
	if idx, ok := p.core.SleepyWorker(); ok {
		sleepy = idx
	}
	return Stats{
		Live:   int(atomic.LoadInt32(&p.live)),
		Asleep: atomic.LoadInt32(&p.asleep),
		Sleepy: sleepy,
	}
}
