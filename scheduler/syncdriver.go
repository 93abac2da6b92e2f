package scheduler

import (
	"context"
	"sync"
)

// SyncDriver runs every worker synchronously on the calling goroutine —
// the "everything on the caller thread" driver required by spec §4.F,
// used in tests for deterministic ordering and selectable with
// `run --driver sync` (the CLI defaults to GoroutineDriver).
type SyncDriver struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewSyncDriver returns a ready-to-use SyncDriver.
func NewSyncDriver() *SyncDriver {
	return &SyncDriver{cancels: make(map[string]context.CancelFunc)}
}

// Spawn runs fn to completion before returning, on the calling goroutine.
func (d *SyncDriver) Spawn(ctx context.Context, handle WorkerHandle, fn func(ctx context.Context)) error {
	workerCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.cancels[handle.ID] = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.cancels, handle.ID)
		d.mu.Unlock()
		cancel()
	}()

	fn(workerCtx)
	return nil
}

// Kill cancels the worker's context. Since Spawn is synchronous, this can
// only take effect if fn itself observes ctx cancellation.
func (d *SyncDriver) Kill(handle WorkerHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancels[handle.ID]; ok {
		cancel()
	}
	return nil
}

var _ DistributionDriver = (*SyncDriver)(nil)
