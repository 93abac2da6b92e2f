// Package scheduler implements capability-matched task dispatch with
// global resource limits (spec §4.F), generalizing the teacher's
// runtime.Operator fan-out loop from "spawn child runs" to "spawn workers
// against capability-tagged tasks".
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CapabilitySet is what a worker (or the scheduler's global pool) offers:
// e.g. {"cpu": 4, "display": 1}. Keys are arbitrary resource names; the
// scheduler never attaches meaning to them beyond the Dominates check.
type CapabilitySet map[string]int

// RequirementSet is what a task needs, checked against a CapabilitySet via
// Dominates.
type RequirementSet map[string]int

// Dominates reports whether c offers at least as much of every resource
// req names (spec §4.F: "the scheduler checks (used + candidate) ≤
// limits").
func (c CapabilitySet) Dominates(req RequirementSet) bool {
	for k, v := range req {
		if c[k] < v {
			return false
		}
	}
	return true
}

// sub returns a new CapabilitySet with req's quantities subtracted,
// clamped at zero.
func (c CapabilitySet) sub(req RequirementSet) CapabilitySet {
	out := make(CapabilitySet, len(c))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range req {
		if out[k] < v {
			out[k] = 0
		} else {
			out[k] -= v
		}
	}
	return out
}

// ResourceLimitSet is the scheduler's global limits: mCPU, DISPLAY,
// per-proxy max_at_once, per-handler max_in_parallel (spec §5 "Global
// limits").
type ResourceLimitSet map[string]int

// BundleKey groups tasks by their requirement signature, used to key
// ActorSet accounting (spec §4.F "ActorSet (bundle key → in-queue +
// running workers)").
func BundleKey(req RequirementSet) string {
	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%d", k, req[k])
	}
	return b.String()
}

// DefaultAllowedFailCount is the allowed fail count a Task reports when its
// own AllowedFailCount is unset. Orchestrator.Run does not re-queue failed
// tasks and does not act on TaskOutcome.Recycle; FailCount and
// AllowedFailCount are carried on the Task for the caller's use.
const DefaultAllowedFailCount = 5

// Task is one unit of scheduled work: a handler/URL pair with its resource
// requirements and retry accounting (spec §4.F).
type Task struct {
	ID               string
	HandlerName      string
	URL              string
	Requirements     RequirementSet
	FailCount        int
	AllowedFailCount int // 0 means DefaultAllowedFailCount
}

func (t Task) allowedFailCount() int {
	if t.AllowedFailCount <= 0 {
		return DefaultAllowedFailCount
	}
	return t.AllowedFailCount
}

// TaskOutcome is the result of running one Task to completion.
type TaskOutcome struct {
	TaskID  string
	Err     error
	Recycle bool // true if the worker that ran this task should be recycled
}

// TaskRunner executes a single task and reports its outcome. Supplied by
// the caller (session.Worker.RunTask in practice); the scheduler itself is
// agnostic to what running a task means.
type TaskRunner func(ctx context.Context, task Task) TaskOutcome

// ActorSet tracks in-queue and running worker counts for one bundle key
// (spec §4.F).
type ActorSet struct {
	BundleKey string
	InQueue   int
	Running   int
}

// WorkerHandle identifies a spawned worker to its DistributionDriver.
type WorkerHandle struct {
	ID string
}

// DistributionDriver abstracts how a worker actually executes: in the
// caller's goroutine, in a new goroutine, or (out of scope here) a
// separate OS process (spec §4.F).
type DistributionDriver interface {
	// Spawn starts a worker running fn and returns once fn has returned
	// or the driver reports it can no longer track it; see individual
	// driver docs for blocking behavior.
	Spawn(ctx context.Context, handle WorkerHandle, fn func(ctx context.Context)) error
	// Kill requests the worker identified by handle stop as soon as
	// possible. Safe to call after the worker has already finished.
	Kill(handle WorkerHandle) error
}

// Orchestrator dispatches tasks to capability-matched workers within
// global resource limits, following runtime.Operator's dispatch/semaphore/
// workerDone pattern (grounded on the teacher's runtime/fanout.go),
// generalized from child-run fan-out to capability-matched task dispatch.
//
// Run is the single cooperative loop (spec §5 "single-threaded cooperative
// orchestrator"); Submit and Join are called from other goroutines.
type Orchestrator struct {
	limits ResourceLimitSet
	driver DistributionDriver
	runner TaskRunner

	mu     sync.Mutex
	actors map[string]*ActorSet
	inUse  CapabilitySet

	queue    chan Task
	poisoned bool

	resultsMu sync.Mutex
	results   []TaskOutcome

	done chan struct{}
}

// New creates an Orchestrator bounded by limits, dispatching work through
// driver, running each task via runner.
func New(limits ResourceLimitSet, driver DistributionDriver, runner TaskRunner) *Orchestrator {
	return &Orchestrator{
		limits: limits,
		driver: driver,
		runner: runner,
		actors: make(map[string]*ActorSet),
		inUse:  make(CapabilitySet),
		queue:  make(chan Task, 4096),
		done:   make(chan struct{}),
	}
}

// Submit enqueues a task for dispatch. Safe to call concurrently with Run.
func (o *Orchestrator) Submit(task Task) error {
	o.mu.Lock()
	if o.poisoned {
		o.mu.Unlock()
		return fmt.Errorf("scheduler: orchestrator is draining, task %s rejected", task.ID)
	}
	key := BundleKey(task.Requirements)
	actors, ok := o.actors[key]
	if !ok {
		actors = &ActorSet{BundleKey: key}
		o.actors[key] = actors
	}
	actors.InQueue++
	o.mu.Unlock()

	select {
	case o.queue <- task:
		return nil
	default:
		o.mu.Lock()
		actors.InQueue--
		o.mu.Unlock()
		return fmt.Errorf("scheduler: queue full, task %s rejected", task.ID)
	}
}

// Run drains the task queue until Join poisons the orchestrator and every
// pending/in-flight task finishes, dispatching each task to a worker once
// global limits permit (spec §4.F, §5). Call Run in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)

	var wg sync.WaitGroup
	var pending []Task
	seq := 0
	released := make(chan struct{}, 1)

	canDispatch := func(req RequirementSet) bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		remaining := CapabilitySet(o.limits).sub(RequirementSet(o.inUse))
		return remaining.Dominates(req)
	}

	dispatch := func(task Task) {
		key := BundleKey(task.Requirements)
		o.mu.Lock()
		o.actors[key].InQueue--
		o.actors[key].Running++
		for k, v := range task.Requirements {
			o.inUse[k] += v
		}
		o.mu.Unlock()

		seq++
		handle := WorkerHandle{ID: fmt.Sprintf("%s-%d", key, seq)}

		release := func() {
			o.mu.Lock()
			o.actors[key].Running--
			for k, v := range task.Requirements {
				o.inUse[k] -= v
			}
			o.mu.Unlock()
			select {
			case released <- struct{}{}:
			default:
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()

			var outcome TaskOutcome
			err := o.driver.Spawn(ctx, handle, func(workerCtx context.Context) {
				outcome = o.runner(workerCtx, task)
			})
			if err != nil {
				outcome = TaskOutcome{TaskID: task.ID, Err: fmt.Errorf("scheduler: spawn failed: %w", err)}
			}

			o.resultsMu.Lock()
			o.results = append(o.results, outcome)
			o.resultsMu.Unlock()
		}()
	}

	admitPending := func() {
		remaining := pending[:0]
		for _, task := range pending {
			if canDispatch(task.Requirements) {
				dispatch(task)
			} else {
				remaining = append(remaining, task)
			}
		}
		pending = remaining
	}

	for {
		admitPending()

		select {
		case task, ok := <-o.queue:
			if !ok {
				// Poisoned: admit pending tasks as running ones release
				// capacity, then wait for all of them and exit.
				for admitPending(); len(pending) > 0; admitPending() {
					select {
					case <-released:
					case <-ctx.Done():
						wg.Wait()
						return
					}
				}
				wg.Wait()
				return
			}
			if canDispatch(task.Requirements) {
				dispatch(task)
			} else {
				pending = append(pending, task)
			}
		case <-released:
		case <-ctx.Done():
			wg.Wait()
			return
		}
	}
}

// Join poisons the orchestrator (no further Submit calls are accepted),
// closes the queue so Run drains and exits, then waits for Run to return
// or ctx to expire. On ctx expiry it returns the outcomes collected so far;
// workers still running are not killed, and their outcomes are not in the
// returned slice.
func (o *Orchestrator) Join(ctx context.Context) []TaskOutcome {
	o.mu.Lock()
	if !o.poisoned {
		o.poisoned = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
	case <-ctx.Done():
	}

	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	return append([]TaskOutcome(nil), o.results...)
}
