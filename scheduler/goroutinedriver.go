package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// GoroutineDriver runs each worker on its own goroutine, the OS-thread
// equivalent distribution driver from spec §4.F, supervised by an
// errgroup.Group per the pattern golang.org/x/sync establishes — grounded
// on its appearance in the rest of the example pack (perkeep,
// steveyegge-beads) rather than on the teacher, which has no equivalent
// supervised-goroutine-pool dependency.
type GoroutineDriver struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	group   *errgroup.Group
}

// NewGoroutineDriver returns a driver whose workers are supervised by an
// errgroup bound to ctx; call Wait to block until every spawned worker
// has returned.
func NewGoroutineDriver(ctx context.Context) (*GoroutineDriver, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &GoroutineDriver{cancels: make(map[string]context.CancelFunc), group: g}, gctx
}

// Spawn launches fn on its own goroutine, supervised by the driver's
// errgroup, and blocks until fn returns — the same blocking contract
// SyncDriver offers, so Orchestrator.Run can treat both drivers
// identically. The goroutine-per-worker distinction is about where fn
// runs, not whether Spawn waits for it.
func (d *GoroutineDriver) Spawn(ctx context.Context, handle WorkerHandle, fn func(ctx context.Context)) error {
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

	done := make(chan struct{})
	d.group.Go(func() error {
		defer close(done)
		fn(workerCtx)
		return nil
	})
	<-done
	return nil
}

// Kill cancels the worker's context; the goroutine itself must observe
// cancellation to actually stop.
func (d *GoroutineDriver) Kill(handle WorkerHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancels[handle.ID]; ok {
		cancel()
	}
	return nil
}

// Wait blocks until every worker spawned by this driver has returned.
func (d *GoroutineDriver) Wait() error {
	return d.group.Wait()
}

var _ DistributionDriver = (*GoroutineDriver)(nil)
