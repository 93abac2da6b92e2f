package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/quarry-depot/depot"
	"github.com/justapithecus/quarry-depot/proxy"
	"github.com/justapithecus/quarry-depot/scheduler"
	"github.com/justapithecus/quarry-depot/session"
	"github.com/justapithecus/quarry-depot/session/requestsession"
)

// runnerFactory adapts the scheduler's capability-matched dispatch to
// session.Worker.RunTask. It keeps one Worker per handler name so the
// worker's initiated/broken/numQuery state (spec §4.G session lifecycle)
// persists across tasks the way a single long-lived crawl session would,
// rather than resetting on every fetch. Worker.RunTask holds no internal
// lock, so calls against the same handler's Worker are serialized through
// handlerLocks; tasks for distinct handlers still run concurrently, bounded
// only by the scheduler's resource limits. Every Worker shares the depot's
// object store, so a successful fetch's parsed output (or a parse
// failure's exception summary) lands as a real blob instead of an empty
// OutputBlobName (spec §2 data flow, §4.A).
type runnerFactory struct {
	depot     *depot.Depot
	selector  *proxy.Selector
	proxyPool string
	timeout   time.Duration
	userAgent string

	mu           sync.Mutex
	workers      map[string]*session.Worker
	handlerLocks map[string]*sync.Mutex
}

func newRunnerFactory(d *depot.Depot, selector *proxy.Selector, proxyPool string, timeout time.Duration, userAgent string) *runnerFactory {
	return &runnerFactory{
		depot:        d,
		selector:     selector,
		proxyPool:    proxyPool,
		timeout:      timeout,
		userAgent:    userAgent,
		workers:      make(map[string]*session.Worker),
		handlerLocks: make(map[string]*sync.Mutex),
	}
}

func (f *runnerFactory) lockFor(handlerName string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.handlerLocks[handlerName]
	if !ok {
		l = &sync.Mutex{}
		f.handlerLocks[handlerName] = l
	}
	return l
}

func (f *runnerFactory) workerFor(handlerName string) *session.Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[handlerName]; ok {
		return w
	}
	w := session.NewWorker(func() (session.Session, error) {
		return requestsession.New(requestsession.Config{
			ProxyPoolName: f.proxyPool,
			Selector:      f.selector,
			Timeout:       f.timeout,
			UserAgent:     f.userAgent,
		}), nil
	}, session.WithObjectStore(f.depot.ObjectStore()))
	f.workers[handlerName] = w
	return w
}

// run implements scheduler.TaskRunner: build a fresh handler instance for
// this task (handlers carry only per-fetch state, per handlers.go), drive
// it through the handler's Worker, then integrate whatever events came
// back before reporting the outcome to the orchestrator.
func (f *runnerFactory) run(ctx context.Context, task scheduler.Task) scheduler.TaskOutcome {
	ctor, ok := handlerRegistry[task.HandlerName]
	if !ok {
		return scheduler.TaskOutcome{TaskID: task.ID, Err: fmt.Errorf("run: no registered handler %q", task.HandlerName)}
	}

	lock := f.lockFor(task.HandlerName)
	lock.Lock()
	defer lock.Unlock()

	worker := f.workerFor(task.HandlerName)
	handler := ctor()

	outcome, err := worker.RunTask(ctx, handler, task.URL, nil)
	if err != nil {
		return scheduler.TaskOutcome{TaskID: task.ID, Err: err}
	}
	if err := f.depot.Integrate(ctx, outcome.Events); err != nil {
		return scheduler.TaskOutcome{TaskID: task.ID, Err: fmt.Errorf("integrate %s: %w", task.URL, err)}
	}
	return scheduler.TaskOutcome{TaskID: task.ID, Recycle: outcome.Recycle}
}
