// Package idle implements the idle-coordination core of a work-stealing
// runtime: the subsystem that decides when worker goroutines should stop
// spinning and block, and that rouses them when work reappears.
//
// It does not know about deques, injectors, or latches. It knows about one
// thing: a packed atomic word, and the three-state lifecycle (awake, sleepy,
// asleep) that every worker moves through as it fails to find work.
package idle

import "go.uber.org/atomic"

// state is the single packed machine word described by the data model:
//
//	bit 0:    any_sleeping  -- one or more workers are asleep or have
//	                           committed to fall asleep.
//	bits 1..: sleepyWorker  -- (worker index + 1) << 1, or 0 if no worker
//	                           is currently the sleepy one.
//
// The +1 bias on the sleepy slot is the only way to distinguish "worker 0 is
// sleepy" from "no one is sleepy" while keeping a single compare-to-zero fast
// path in tickle. Every transition into the sleepy slot is a CAS away from an
// empty slot, so at most one worker occupies it at a time.
type state uint64

func packSleepy(workerIndex int) state {
	return state(uint64(workerIndex+1) << 1)
}

func (s state) anySleeping() bool {
	return s&1 != 0
}

func (s state) anyoneSleepy() bool {
	return s>>1 != 0
}

// sleepyWorker returns the index of the sleepy worker. Only meaningful when
// anyoneSleepy() is true.
func (s state) sleepyWorker() int {
	return int(s>>1) - 1
}

func (s state) isSleepyWorker(workerIndex int) bool {
	return s.anyoneSleepy() && s.sleepyWorker() == workerIndex
}

func (s state) withoutSleepy() state {
	return s & 1
}

// cell is the atomic home of a state word. All operations here run at
// sequential consistency: the two races documented in Core's doc comment
// (tickle-then-get-sleepy, and get-sleepy-then-get-tickled) both require a
// single total order over every load/CAS/swap on this word, so nothing here
// may be weakened to acquire/release without reopening those races. Go's
// atomic package gives us exactly one ordering mode, which is a feature, not
// a limitation, for this cell.
type cell struct {
	word atomic.Uint64
}

func (c *cell) load() state {
	return state(c.word.Load())
}

// tryBecomeSleepy CAS's from expected (whose sleepy slot must be empty) to a
// word naming workerIndex as sleepy, preserving the any-asleep bit.
func (c *cell) tryBecomeSleepy(workerIndex int, expected state) bool {
	next := (expected & 1) | packSleepy(workerIndex)
	return c.word.CAS(uint64(expected), uint64(next))
}

// tryFallAsleep CAS's from expected (whose sleepy slot must name
// workerIndex) to a word with the sleepy slot cleared and the any-asleep bit
// set.
func (c *cell) tryFallAsleep(workerIndex int, expected state) bool {
	next := state(1)
	return c.word.CAS(uint64(expected), uint64(next))
}

// clearSleepySlot CAS's the sleepy slot for workerIndex back to empty,
// keeping whatever the any-asleep bit currently is. Used by WorkFound, which
// tolerates CAS failure: a failure means some other actor (a tickle) already
// cleared the slot, which is just as good.
func (c *cell) clearSleepySlot(workerIndex int, expected state) bool {
	if !expected.isSleepyWorker(workerIndex) {
		return true
	}
	next := expected.withoutSleepy()
	return c.word.CAS(uint64(expected), uint64(next))
}

// clearViaSwap atomically exchanges the cell to 0, returning the previous
// value. This is tickle's one interesting operation: it is how a tickle both
// clears the sleepy slot (abandoning whoever holds it) and discovers whether
// anyone needs a condvar notify, in a single RMW.
func (c *cell) clearViaSwap() state {
	return state(c.word.Swap(0))
}
