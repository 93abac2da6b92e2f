package depot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justapithecus/quarry-depot/adapter"
	"github.com/justapithecus/quarry-depot/integrator"
	"github.com/justapithecus/quarry-depot/lineage"
	"github.com/justapithecus/quarry-depot/queue"
	"github.com/justapithecus/quarry-depot/runarchive"
	"github.com/justapithecus/quarry-depot/types"
)

// BeginRun materializes the current workspace (spec §3 lifecycle step 1):
// copies the snapshot database from baseStatus (unless baseStatus is nil,
// meaning root) and writes a run-context record. Fails with
// ErrRunInProgress if a workspace already exists.
func (d *Depot) BeginRun(ctx context.Context, baseStatus *string, runCtx types.RunContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ws != nil {
		return ErrRunInProgress
	}
	if _, err := os.Stat(d.currentRunPath()); err == nil {
		return ErrRunInProgress
	}

	dir := d.currentRunPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("depot: mkdir current-run: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	if baseStatus != nil {
		if err := lineage.ExtractSnapshot(d.statusesRoot(), *baseStatus, dbPath); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("depot: extract base snapshot: %w", err)
		}
	}

	q, err := queue.Open(dbPath)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("depot: open workspace queue: %w", err)
	}

	if err := writeParentFile(dir, baseStatus); err != nil {
		q.Close()
		os.RemoveAll(dir)
		return err
	}
	if runCtx.StartTimestamp == 0 {
		runCtx.StartTimestamp = float64(time.Now().UnixNano()) / 1e9
	}
	if err := writeRunContext(filepath.Join(dir, contextFile), runCtx); err != nil {
		q.Close()
		os.RemoveAll(dir)
		return err
	}

	d.ws = &workspace{
		queue:      q,
		integrator: integrator.New(q, dir, d.metrics),
		parent:     baseStatus,
		dbPath:     dbPath,
		startedAt:  time.Now(),
	}
	return nil
}

// Queue returns the in-progress workspace's queue, for AddURLs/NextBatch
// calls by the scheduler. ErrNoRunInProgress if BeginRun has not been
// called.
func (d *Depot) Queue() (*queue.Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ws == nil {
		return nil, ErrNoRunInProgress
	}
	return d.ws.queue, nil
}

// Integrate applies a batch of events to the in-progress workspace: loose
// event files plus the corresponding queue table updates, atomically per
// batch (spec §4.E integrate_events). Thin wrapper around
// integrator.Integrator, the actual atomic-write implementation.
func (d *Depot) Integrate(ctx context.Context, events []types.Event) error {
	d.mu.Lock()
	ws := d.ws
	d.mu.Unlock()
	if ws == nil {
		return ErrNoRunInProgress
	}
	return ws.integrator.Integrate(ctx, events)
}

// Commit zips the workspace's loose event files into a new Run, saves a new
// Status whose parent is the workspace's parent pointer and whose
// integrated_runs is exactly {new_run_id}, then purges the workspace (spec
// §3 lifecycle step 3). If the workspace has no events, the run is
// discarded (never saved, per spec §3's Run invariant) and the workspace is
// purged without producing a new Status; runarchive.ErrEmptyRun is returned
// so the caller can distinguish a no-op commit from a real one.
func (d *Depot) Commit(ctx context.Context) (types.Run, types.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ws == nil {
		return types.Run{}, types.Status{}, ErrNoRunInProgress
	}
	ws := d.ws
	dir := d.currentRunPath()

	events, err := loadLooseEvents(filepath.Join(dir, eventsSubdir))
	if err != nil {
		return types.Run{}, types.Status{}, fmt.Errorf("depot: load loose events: %w", err)
	}

	runCtx, err := readRunContext(filepath.Join(dir, contextFile))
	if err != nil {
		return types.Run{}, types.Status{}, err
	}

	run, saveErr := runarchive.Save(d.runsRoot(), events, runCtx)
	if saveErr != nil && !errors.Is(saveErr, runarchive.ErrEmptyRun) {
		return types.Run{}, types.Status{}, fmt.Errorf("depot: save run: %w", saveErr)
	}

	// Close the workspace's sqlite connection before snapshotting its file,
	// so the new Status's snapshot reflects every committed transaction.
	if err := ws.queue.Close(); err != nil {
		return types.Run{}, types.Status{}, fmt.Errorf("depot: close workspace queue: %w", err)
	}

	var status types.Status
	if saveErr == nil {
		dbPath := filepath.Join(dir, dbFile)
		status, err = lineage.Save(d.statusesRoot(), ws.parent, []string{run.RunID}, dbPath)
		if err != nil {
			return types.Run{}, types.Status{}, fmt.Errorf("depot: save status: %w", err)
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return types.Run{}, types.Status{}, fmt.Errorf("depot: purge workspace: %w", err)
	}
	d.ws = nil

	if saveErr != nil {
		return types.Run{}, types.Status{}, saveErr
	}

	d.notifyAdapters(ctx, run, status, events)
	return run, status, nil
}

// Abandon purges the current-run workspace without promoting it, discarding
// any events accumulated so far.
func (d *Depot) Abandon(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ws == nil {
		return ErrNoRunInProgress
	}
	if err := d.ws.queue.Close(); err != nil {
		return fmt.Errorf("depot: close workspace queue: %w", err)
	}
	if err := os.RemoveAll(d.currentRunPath()); err != nil {
		return fmt.Errorf("depot: purge workspace: %w", err)
	}
	d.ws = nil
	return nil
}

func (d *Depot) notifyAdapters(ctx context.Context, run types.Run, status types.Status, events []types.Event) {
	if len(d.adapters) == 0 {
		return
	}
	var registered, changed int
	for _, e := range events {
		switch e.Kind {
		case types.KindRegistration:
			registered++
		case types.KindCollection:
			changed++
		}
	}
	var parent string
	if status.Context.Parent != nil {
		parent = *status.Context.Parent
	}
	evt := &adapter.StatusCommittedEvent{
		EventType:      "status_committed",
		StatusID:       status.StatusID,
		ParentStatusID: parent,
		IntegratedRuns: status.Context.IntegratedRuns,
		RowsChanged:    changed,
		RowsRegistered: registered,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	for _, a := range d.adapters {
		if err := a.Publish(ctx, evt); err != nil && d.logger != nil {
			d.logger.Warn("adapter publish failed", map[string]any{"run_id": run.RunID, "status_id": status.StatusID, "error": err.Error()})
		}
	}
}

func writeParentFile(dir string, parent *string) error {
	val := ""
	if parent != nil {
		val = *parent
	}
	path := filepath.Join(dir, parentFile)
	if err := os.WriteFile(path, []byte(val), 0o644); err != nil {
		return fmt.Errorf("depot: write parent file: %w", err)
	}
	return nil
}

func readParentFile(dir string) (*string, error) {
	b, err := os.ReadFile(filepath.Join(dir, parentFile))
	if err != nil {
		return nil, fmt.Errorf("depot: read parent file: %w", err)
	}
	val := strings.TrimSpace(string(b))
	if val == "" {
		return nil, nil
	}
	return &val, nil
}

// WorkspaceInfo describes an on-disk current-run workspace, recovered
// without requiring BeginRun to have been called in this process (spec §5:
// only the orchestrator process touches current-run/, but a CLI inspect
// invocation runs as a separate short-lived process and must read it back).
type WorkspaceInfo struct {
	Parent    *string
	RunCtx    types.RunContext
	StartedAt time.Time
}

// InspectWorkspace reports the on-disk current-run workspace, if any,
// without requiring an active in-memory BeginRun session.
func (d *Depot) InspectWorkspace() (*WorkspaceInfo, bool, error) {
	dir := d.currentRunPath()
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("depot: stat current-run: %w", err)
	}

	parent, err := readParentFile(dir)
	if err != nil {
		return nil, false, err
	}
	runCtx, err := readRunContext(filepath.Join(dir, contextFile))
	if err != nil {
		return nil, false, err
	}

	info := &WorkspaceInfo{
		Parent:    parent,
		RunCtx:    runCtx,
		StartedAt: time.Unix(0, int64(runCtx.StartTimestamp*1e9)),
	}
	return info, true, nil
}
