// Package metrics provides per-run metrics collection for the depot.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies, so any component can hold a
// *Collector without an import cycle.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters. Returned by
// Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Fetch outcomes (spec §4.G FetchResult kinds)
	FetchOK             int64
	FetchTransientHTTP  int64
	FetchBrokenSession  int64
	FetchTimeout        int64
	FetchOther          int64
	CacheHits           int64

	// Session lifecycle
	SessionsStarted  int64
	SessionsRestarted int64
	SessionsBroken   int64

	// Object store
	BlobWriteSuccess int64
	BlobWriteFailure int64

	// Queue / integration
	EventsIntegrated  int64
	RowsRegistered    int64
	RowsStatusChanged int64

	// Dimensions (informational, set at construction)
	Handler string
	RunID   string
}

// Collector accumulates metrics during a single run. Thread-safe via
// sync.Mutex. All increment methods are nil-receiver safe, so a component
// can be handed a nil *Collector in tests without branching.
type Collector struct {
	mu sync.Mutex

	fetchOK            int64
	fetchTransientHTTP int64
	fetchBrokenSession int64
	fetchTimeout       int64
	fetchOther         int64
	cacheHits          int64

	sessionsStarted   int64
	sessionsRestarted int64
	sessionsBroken    int64

	blobWriteSuccess int64
	blobWriteFailure int64

	eventsIntegrated  int64
	rowsRegistered    int64
	rowsStatusChanged int64

	handler string
	runID   string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(handler, runID string) *Collector {
	return &Collector{handler: handler, runID: runID}
}

// --- Fetch outcomes ---

func (c *Collector) IncFetchOK() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchOK++
	c.mu.Unlock()
}

func (c *Collector) IncFetchTransientHTTP() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchTransientHTTP++
	c.mu.Unlock()
}

func (c *Collector) IncFetchBrokenSession() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchBrokenSession++
	c.mu.Unlock()
}

func (c *Collector) IncFetchTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchTimeout++
	c.mu.Unlock()
}

func (c *Collector) IncFetchOther() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchOther++
	c.mu.Unlock()
}

func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

// --- Session lifecycle ---

func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsStarted++
	c.mu.Unlock()
}

func (c *Collector) IncSessionRestarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsRestarted++
	c.mu.Unlock()
}

func (c *Collector) IncSessionBroken() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessionsBroken++
	c.mu.Unlock()
}

// --- Object store ---

func (c *Collector) IncBlobWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.blobWriteSuccess++
	c.mu.Unlock()
}

func (c *Collector) IncBlobWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.blobWriteFailure++
	c.mu.Unlock()
}

// --- Queue / integration ---

// AddEventsIntegrated records the number of events folded into the queue by
// one integrate_events call (spec §4.E).
func (c *Collector) AddEventsIntegrated(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsIntegrated += n
	c.mu.Unlock()
}

func (c *Collector) AddRowsRegistered(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rowsRegistered += n
	c.mu.Unlock()
}

func (c *Collector) AddRowsStatusChanged(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rowsStatusChanged += n
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics. The
// returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FetchOK:            c.fetchOK,
		FetchTransientHTTP: c.fetchTransientHTTP,
		FetchBrokenSession: c.fetchBrokenSession,
		FetchTimeout:       c.fetchTimeout,
		FetchOther:         c.fetchOther,
		CacheHits:          c.cacheHits,

		SessionsStarted:   c.sessionsStarted,
		SessionsRestarted: c.sessionsRestarted,
		SessionsBroken:    c.sessionsBroken,

		BlobWriteSuccess: c.blobWriteSuccess,
		BlobWriteFailure: c.blobWriteFailure,

		EventsIntegrated:  c.eventsIntegrated,
		RowsRegistered:    c.rowsRegistered,
		RowsStatusChanged: c.rowsStatusChanged,

		Handler: c.handler,
		RunID:   c.runID,
	}
}
