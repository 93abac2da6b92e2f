// Package session implements the per-worker connection session and the
// per-task state machine that drives a Handler through fetch, cache, and
// restart transitions (spec §4.G).
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/justapithecus/quarry-depot/objstore"
	"github.com/justapithecus/quarry-depot/scheduler"
	"github.com/justapithecus/quarry-depot/types"
)

// Session wraps the fetch backend a worker drives: either a request-based
// session (requestsession.Session) or a browser-driven one
// (browsersession.Session), configured at worker construction (spec §4.G).
type Session interface {
	// Get fetches url and classifies the outcome (spec §9 "exceptions-as-
	// control-flow" redesign: a tagged result, not an error chain).
	Get(ctx context.Context, url string) types.FetchResult
	// Close releases any resources the session holds (connections,
	// browser process).
	Close() error
}

// Outcome is what RunTask reports back to the orchestrator for one task:
// the events to integrate and whether the worker should be recycled.
type Outcome struct {
	Events      []types.Event
	Recycle     bool
	HandlerName string
}

// Worker owns one connection Session plus the per-handler state the
// task state machine consults (broken/initiated sets, query counts).
type Worker struct {
	newSession func() (Session, error)
	sess       Session
	store      objstore.Store

	initiated map[string]bool
	broken    map[string]bool
	numQuery  int

	sleep func(d time.Duration) // injected for tests
}

// WorkerOption configures optional Worker behavior at construction, the
// same functional-option shape depot.Option uses.
type WorkerOption func(*Worker)

// WithObjectStore gives the worker somewhere to persist parsed output and
// parse-error payloads (spec §2 data flow, §4.A). Without one, fetches
// still run but never produce an output blob — Collection events carry an
// empty OutputBlobName.
func WithObjectStore(store objstore.Store) WorkerOption {
	return func(w *Worker) { w.store = store }
}

// NewWorker constructs a Worker whose sessions are produced by newSession
// (called on first use and every Restart).
func NewWorker(newSession func() (Session, error), opts ...WorkerOption) *Worker {
	w := &Worker{
		newSession: newSession,
		initiated:  make(map[string]bool),
		broken:     make(map[string]bool),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunTask drives one task through the [Idle]→[CheckHandler]→...
// transition table verbatim (spec §4.G).
func (w *Worker) RunTask(ctx context.Context, handler types.Handler, url string, driver any) (Outcome, error) {
	desc := handler.Descriptor()

	// CheckHandler
	if w.broken[desc.Name] || (desc.RestartSessionAfter > 0 && w.numQuery > desc.RestartSessionAfter) {
		if err := w.restart(ctx, true); err != nil {
			return Outcome{}, err
		}
	}

	// Initiate?
	if !w.initiated[desc.Name] {
		if err := w.initiate(ctx, handler, desc, driver); err != nil {
			return Outcome{}, err
		}
	}

	// Cache?
	if cached, err := handler.LoadCache(url); err == nil && cached != nil {
		status := types.StatusCacheLoaded
		if desc.ProcessIndefinitely {
			status = types.StatusPersistentCached
		}
		return w.emitCollection(handler, desc, url, status, "")
	}

	// Fetch
	return w.fetch(ctx, handler, desc, url)
}

func (w *Worker) initiate(ctx context.Context, handler types.Handler, desc types.HandlerDescriptor, driver any) error {
	attempts := desc.InitiationRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := handler.StartSession(ctx, driver); err == nil {
			w.initiated[desc.Name] = true
			return nil
		}
		if desc.WaitOnInitiationFail > 0 {
			w.sleep(time.Duration(desc.WaitOnInitiationFail * float64(time.Second)))
		}
		if err := w.restart(ctx, false); err != nil {
			return err
		}
	}
	return errInitiationFailed(desc.Name)
}

// fetch runs the retry loop inside the Fetch state, classifying
// Session.Get's tagged result into the right Collection status (spec §4.G
// "Fetch", §7 error kinds).
func (w *Worker) fetch(ctx context.Context, handler types.Handler, desc types.HandlerDescriptor, url string) (Outcome, error) {
	handler.SetURL(url)
	w.sleep(time.Duration(handler.GetSleepTime() * float64(time.Second)))

	maxRetries := desc.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var last types.FetchResult
	for attempt := 0; attempt < maxRetries; attempt++ {
		w.numQuery++
		result := w.sess.Get(ctx, url)
		last = result

		if handler.IsSessionBroken(result) {
			w.broken[desc.Name] = true
			return w.emitCollection(handler, desc, url, types.StatusSessionBroken, "")
		}

		switch result.Kind {
		case types.FetchOK:
			pre, err := handler.PreParse(result.Body)
			if err != nil {
				return w.emitParsingError(handler, desc, url, err)
			}
			parsed, err := handler.Parse(pre)
			if err != nil {
				return w.emitParsingError(handler, desc, url, err)
			}
			blobName, err := w.dumpOutput(parsed)
			if err != nil {
				return Outcome{}, fmt.Errorf("session: dump parsed output: %w", err)
			}
			status := types.StatusProcessed
			if desc.ProcessIndefinitely {
				status = types.StatusPersistentProcessed
			}
			return w.emitCollection(handler, desc, url, status, blobName)
		case types.FetchTimeout, types.FetchTransientHTTP, types.FetchOther:
			if attempt < maxRetries-1 {
				w.sleep(w.retryBackoff(handler))
				continue
			}
		}
	}

	_ = last
	return w.emitCollection(handler, desc, url, types.StatusConnectionError, "")
}

// dumpOutput persists a handler's Parse result as a content-addressed blob
// (spec §2 data flow, §4.A): []byte and string payloads are stored as-is,
// anything else is JSON-marshaled. Returns "" without error when the
// worker has no object store or the handler produced no output — an empty
// OutputBlobName is a valid Collection event per spec §3.1's event schema.
func (w *Worker) dumpOutput(v any) (string, error) {
	if w.store == nil || v == nil {
		return "", nil
	}
	switch val := v.(type) {
	case []byte:
		return w.store.Dump(val)
	case string:
		return w.store.DumpString(val)
	default:
		return w.store.DumpJSON(val)
	}
}

// emitParsingError dumps the exception type name and message into the
// output blob (spec §7, §9 Open Question: "exception type name and
// message are captured into the output blob") rather than writing the raw
// error string straight into OutputBlobName.
func (w *Worker) emitParsingError(handler types.Handler, desc types.HandlerDescriptor, url string, parseErr error) (Outcome, error) {
	summary := fmt.Sprintf("%T: %s", parseErr, parseErr.Error())
	name, err := w.dumpOutput(summary)
	if err != nil {
		return Outcome{}, fmt.Errorf("session: dump parse error: %w", err)
	}
	return w.emitCollection(handler, desc, url, types.StatusParsingError, name)
}

func (w *Worker) emitCollection(handler types.Handler, desc types.HandlerDescriptor, url string, status types.SourceStatus, outputBlobName string) (Outcome, error) {
	coll := types.CollectionEvent{
		HandlerName:    desc.Name,
		URL:            url,
		Status:         status,
		Timestamp:      time.Now().UTC(),
		OutputBlobName: outputBlobName,
	}
	events := []types.Event{{Kind: types.KindCollection, Collection: &coll}}
	for _, reg := range handler.PopRegisteredLinks() {
		r := reg
		events = append(events, types.Event{Kind: types.KindRegistration, Registration: &r})
	}
	return Outcome{Events: events, HandlerName: desc.Name}, nil
}

// restart stops the current session, optionally rotates to a new proxy
// (handled by the caller's newSession closure), clears initiated/broken
// sets, and starts a new session, resetting num_queries (spec §4.G
// "Restart").
func (w *Worker) restart(ctx context.Context, newProxy bool) error {
	if w.sess != nil {
		_ = w.sess.Close()
	}
	sess, err := w.newSession()
	if err != nil {
		return err
	}
	w.sess = sess
	w.initiated = make(map[string]bool)
	w.broken = make(map[string]bool)
	w.numQuery = 0
	return nil
}

// retryBackoff asks the handler for its retry sleep time; a handler that
// doesn't override GetRetrySleepTime returns a uniform random value in
// [0.1s, 0.6s) itself (the default implementations embed DefaultBackoff),
// so this is a thin conversion from seconds to a Duration. math/rand/v2
// is stdlib: sleeping a worker goroutine between retries is not a concern
// any example repo reaches for a third-party library to do.
func (w *Worker) retryBackoff(handler types.Handler) time.Duration {
	seconds := handler.GetRetrySleepTime()
	return time.Duration(seconds * float64(time.Second))
}

// DefaultBackoff returns a uniform random duration in [0.1s, 0.6s), for
// Handler implementations that want the spec's default GetRetrySleepTime
// behavior without hand-rolling it.
func DefaultBackoff() float64 {
	const lo, hi = 0.1, 0.6
	return lo + rand.Float64()*(hi-lo)
}

// RequirementsFor returns the scheduler requirement set a handler needs,
// bridging types.HandlerDescriptor's capability map into scheduler's type.
func RequirementsFor(desc types.HandlerDescriptor) scheduler.RequirementSet {
	return scheduler.RequirementSet(desc.RequiredCapabilities)
}
