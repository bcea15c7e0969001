package idle

import "sync"

// blocker is the process-wide mutex+condvar pair used only when a worker
// actually commits to blocking. It guards no data of its own -- the state
// cell is lock-free -- it exists purely to pair correctly with the condvar,
// per the standard mutex+condvar discipline: a notifier must hold (or have
// held) this mutex in a way that brackets the waiter's own acquisition, or a
// notify between the waiter's CAS and its Wait call would be lost forever.
type blocker struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newBlocker() *blocker {
	b := &blocker{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// notifyAll wakes every waiter. Never notifyOne: all sleepers wake together
// by design, a stated limitation rather than a bug (see the data model's
// non-goals on targeted wakeups and sleeper fairness).
func (b *blocker) notifyAll() {
	// The empty critical section is the point: acquiring and releasing here
	// brackets the sleeper's CAS-then-Wait window, so a sleeper that has
	// CAS'd into asleep but not yet reached Wait still observes this notify.
	b.mu.Lock()
	b.mu.Unlock()
	b.cond.Broadcast()
}
