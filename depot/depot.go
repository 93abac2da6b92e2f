// Package depot is the top-level facade wiring the object store, run
// archive, lineage DAG, queue engine, and event integrator into the
// on-disk layout of spec §6. It owns the current-run workspace lifecycle:
// begin_run, commit, integrate, and merge (spec §3 "Lifecycle").
package depot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/justapithecus/quarry-depot/adapter"
	"github.com/justapithecus/quarry-depot/integrator"
	"github.com/justapithecus/quarry-depot/lineage"
	"github.com/justapithecus/quarry-depot/log"
	"github.com/justapithecus/quarry-depot/metrics"
	"github.com/justapithecus/quarry-depot/objstore"
	"github.com/justapithecus/quarry-depot/queue"
	"github.com/justapithecus/quarry-depot/types"
)

const (
	objectStoreDir = "object-store"
	runsDir        = "runs"
	statusesDir    = "statuses"
	currentRunDir  = "current-run"
	eventsSubdir   = "events"
	dbFile         = "db.sqlite"
	parentFile     = "parent"
	contextFile    = "context.yaml"

	objectStorePrefixChars = 2
)

// ErrRunInProgress is returned by BeginRun when a current-run workspace
// already exists.
var ErrRunInProgress = errors.New("depot: a run is already in progress")

// ErrNoRunInProgress is returned by workspace operations (Queue, Integrate,
// Commit) when no run has been started.
var ErrNoRunInProgress = errors.New("depot: no run in progress")

// workspace holds the mutable state of an in-progress current-run (spec §3
// "Current workspace"): an open queue database, an integrator writing loose
// event files, and the parent status this run is attempting to extend.
type workspace struct {
	queue       *queue.Queue
	integrator  *integrator.Integrator
	parent      *string
	dbPath      string
	startedAt   time.Time
}

// Depot composes the on-disk stores for one project under a depot root
// (spec §6): object-store/, runs/, statuses/, and the ephemeral
// current-run/ workspace. A Depot instance is owned by exactly one
// orchestrator process (spec §5 "Shared resources").
type Depot struct {
	root     string // <depot_root>/<project_name>
	store    objstore.Store
	metrics  *metrics.Collector
	logger   *log.Logger
	adapters []adapter.Adapter

	mu sync.Mutex
	ws *workspace
}

// Option configures optional Depot dependencies.
type Option func(*Depot)

// WithMetrics attaches a metrics collector. Nil is fine (Collector's
// increment methods are nil-receiver-safe).
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Depot) { d.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Depot) { d.logger = l }
}

// WithAdapters registers completion-notification adapters, published to
// best-effort on every Commit (spec §4.D extension; never fails a commit).
func WithAdapters(adapters ...adapter.Adapter) Option {
	return func(d *Depot) { d.adapters = adapters }
}

// WithObjectStore overrides the default filesystem-backed object store,
// e.g. with objstore.S3Store so a depot's blobs live in S3 while runs/
// statuses stay on the local (or remote-synced) filesystem (spec §4.H
// "optional S3-compatible object backend"). Must be applied after Open has
// already created the on-disk layout; the object-store/ subdirectory is
// left in place but unused.
func WithObjectStore(store objstore.Store) Option {
	return func(d *Depot) { d.store = store }
}

// Open creates (if absent) the directory layout for one project under
// root and returns a ready Depot. root is <depot_root>/<project_name>.
func Open(root string, opts ...Option) (*Depot, error) {
	for _, sub := range []string{objectStoreDir, runsDir, statusesDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("depot: mkdir %s: %w", sub, err)
		}
	}

	d := &Depot{
		root:  root,
		store: objstore.NewFSStore(filepath.Join(root, objectStoreDir), objectStorePrefixChars),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ObjectStore returns the content-addressed blob store for this depot.
func (d *Depot) ObjectStore() objstore.Store { return d.store }

// Root returns the depot's project root directory.
func (d *Depot) Root() string { return d.root }

func (d *Depot) objectStoreRoot() string { return filepath.Join(d.root, objectStoreDir) }
func (d *Depot) runsRoot() string        { return filepath.Join(d.root, runsDir) }
func (d *Depot) statusesRoot() string    { return filepath.Join(d.root, statusesDir) }
func (d *Depot) currentRunPath() string  { return filepath.Join(d.root, currentRunDir) }

// Leaf returns the current leaf status (largest full run tree, ties broken
// by status id), or lineage.ErrNoStatuses if the depot has never committed
// a run.
func (d *Depot) Leaf() (types.Status, error) {
	return lineage.Leaf(d.statusesRoot())
}

// GetCompleteStatus returns a freshly computed view of the depot's current
// leaf status (spec §3 worked example: after committing R1 then R2,
// get_complete_status reflects integrated_runs ⊇ {R1, R2}). It always scans
// the statuses directory directly rather than consulting a Cache — status
// freshness never depends on cache presence (spec §4.D invariant).
func (d *Depot) GetCompleteStatus(ctx context.Context) (types.Status, error) {
	status, err := lineage.Leaf(d.statusesRoot())
	if errors.Is(err, lineage.ErrNoStatuses) {
		return types.Status{Context: types.StatusContext{}}, nil
	}
	return status, err
}
