package idle

import "context"

// WorkerLocal is owned by a single worker goroutine, never shared. index is
// that worker's stable position in [0, N); yields is the running count of
// consecutive scans that found no work. Threshold constants live on the
// owning Core, since they're shared tunables, not per-worker state.
type WorkerLocal struct {
	index  int
	yields uint32
}

// NewWorkerLocal returns the local state for the worker at the given index.
// index must be a stable integer in [0, N) for the Core this worker will
// call into; the core treats any other value as misuse.
func NewWorkerLocal(index int) *WorkerLocal {
	return &WorkerLocal{index: index}
}

// Index reports this worker's stable position in [0, N).
func (w *WorkerLocal) Index() int {
	return w.index
}

// Yields reports the current run of consecutive fruitless scans.
func (w *WorkerLocal) Yields() uint32 {
	return w.yields
}

// OnWorkFound tells core this worker found and is about to run a task,
// updating the worker's own yields count. A thin wrapper over Core.WorkFound
// for callers that would rather not thread a yields variable through their
// own scan loop by hand.
func (w *WorkerLocal) OnWorkFound(c *Core) {
	w.yields = c.WorkFound(w.index, w.yields)
}

// OnNoWorkFound tells core this worker completed a scan and found nothing,
// updating the worker's own yields count. See Core.NoWorkFound for the
// regime this dispatches into, including the one regime that may block.
func (w *WorkerLocal) OnNoWorkFound(ctx context.Context, c *Core) {
	w.yields = c.NoWorkFound(ctx, w.index, w.yields)
}
