// Package deque provides the local work-stealing deque and the shared
// injector queue that a caller wires up around an idle.Core (each takes the
// core at construction) and drains from a workerpool.Scanner. The
// idle-coordination core itself has no notion of either type; it only knows
// about Tickle. These implementations exist so the core has something real
// to drive in tests and in the cmd/idlectl demo.
package deque

import (
	"sync"

	"go.uber.org/atomic"
)

// tickler is satisfied by *idle.Core.
type tickler interface {
	Tickle(originWorkerIndex int)
}

// Chase is a Chase-Lev lock-free work-stealing deque: the owner pushes and
// pops from the bottom, thieves steal from the top. Capacity is fixed at
// construction; PushBottom panics if the deque is full, matching the
// original Chase-Lev design's assumption that callers size the ring for
// their workload (a growable variant is future work, not needed by the
// idle-coordination demo).
type Chase struct {
	tasks  []interface{}
	mask   uint64
	top    atomic.Uint64
	bottom atomic.Uint64

	core   tickler
	origin int
}

// NewChase allocates a deque of the given capacity (rounded up to the next
// power of two) that tickles core with originWorkerIndex after every
// successful push.
func NewChase(core tickler, originWorkerIndex int, capacity int) *Chase {
	if capacity <= 0 {
		capacity = 1
	}
	size := nextPow2(capacity)
	return &Chase{
		tasks:  make([]interface{}, size),
		mask:   uint64(size - 1),
		core:   core,
		origin: originWorkerIndex,
	}
}

func nextPow2(n int) int {
	x := uint64(n - 1)
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return int(x + 1)
}

// PushBottom appends a task at the owner end. Only the owning worker may
// call this. Every push tickles the core, since this is exactly the kind of
// event that may release a sleeping thief.
func (d *Chase) PushBottom(task interface{}) {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t >= uint64(len(d.tasks)) {
		panic("deque: PushBottom on a full deque")
	}
	d.tasks[b&d.mask] = task
	d.bottom.Store(b + 1)
	if d.core != nil {
		d.core.Tickle(d.origin)
	}
}

// PopBottom removes and returns a task from the owner end. Only the owning
// worker may call this. It does not tickle: popping never creates work for
// anyone else.
func (d *Chase) PopBottom() (interface{}, bool) {
	b := d.bottom.Load()
	if b == 0 {
		return nil, false
	}
	b--
	d.bottom.Store(b)

	t := d.top.Load()
	if t <= b {
		task := d.tasks[b&d.mask]
		if t == b {
			if !d.top.CAS(t, t+1) {
				// A thief won the race for the last item.
				d.bottom.Store(b + 1)
				return nil, false
			}
			d.bottom.Store(b + 1)
		}
		return task, true
	}
	d.bottom.Store(b + 1)
	return nil, false
}

// Steal removes and returns a task from the thief end. Any goroutine other
// than the owner may call this concurrently with other thieves and with the
// owner's PushBottom/PopBottom.
func (d *Chase) Steal() (interface{}, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil, false
	}
	task := d.tasks[t&d.mask]
	if !d.top.CAS(t, t+1) {
		return nil, false
	}
	return task, true
}

// Len reports the approximate number of items currently queued. Sampled
// without synchronization beyond the two atomic loads, so it may be stale
// under concurrent access; useful for scan-loop heuristics, not correctness.
func (d *Chase) Len() int {
	b := d.bottom.Load()
	t := d.top.Load()
	if b < t {
		return 0
	}
	return int(b - t)
}

// Injector is a mutex-guarded FIFO for tasks submitted by non-worker
// goroutines. Unlike Chase, any goroutine may push or pop; contention is
// acceptable because injection is expected to be far rarer than local
// deque traffic.
type Injector struct {
	mu     sync.Mutex
	items  []interface{}
	core   tickler
	origin int
}

// NewInjector returns an empty injector queue that tickles core with
// originWorkerIndex (typically -1, since injections don't originate from a
// worker) after every successful push.
func NewInjector(core tickler, originWorkerIndex int) *Injector {
	return &Injector{core: core, origin: originWorkerIndex}
}

// Push enqueues a task and tickles the core.
func (q *Injector) Push(task interface{}) {
	q.mu.Lock()
	q.items = append(q.items, task)
	q.mu.Unlock()
	if q.core != nil {
		q.core.Tickle(q.origin)
	}
}

// Pop dequeues the oldest task, if any.
func (q *Injector) Pop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	task := q.items[0]
	q.items = q.items[1:]
	return task, true
}

// Len reports the current queue length.
func (q *Injector) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
