package depot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/justapithecus/quarry-depot/lineage"
	"github.com/justapithecus/quarry-depot/queue"
	"github.com/justapithecus/quarry-depot/runarchive"
	"github.com/justapithecus/quarry-depot/types"
)

// MergeStatus produces a merge status that linearly folds runIDs into a
// copy of baseStatus's snapshot, without consulting the live workspace
// (spec §3 lifecycle step 4: "integrate(status, runs)"). Runs are applied
// in the given order; each run's events are replayed against a scratch
// queue database seeded from baseStatus's snapshot. The resulting status's
// parent is baseStatus and its integrated_runs is exactly runIDs.
func (d *Depot) MergeStatus(ctx context.Context, baseStatus string, runIDs []string) (types.Status, error) {
	if len(runIDs) == 0 {
		return types.Status{}, fmt.Errorf("depot: merge status: no runs given")
	}

	scratch, err := os.MkdirTemp("", "quarry-merge-*")
	if err != nil {
		return types.Status{}, fmt.Errorf("depot: merge status: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	dbPath := filepath.Join(scratch, dbFile)
	if err := lineage.ExtractSnapshot(d.statusesRoot(), baseStatus, dbPath); err != nil {
		return types.Status{}, fmt.Errorf("depot: merge status: extract base snapshot: %w", err)
	}

	q, err := queue.Open(dbPath)
	if err != nil {
		return types.Status{}, fmt.Errorf("depot: merge status: open scratch queue: %w", err)
	}
	defer q.Close()

	scratchEvents := filepath.Join(scratch, eventsSubdir)
	for _, runID := range runIDs {
		_, events, err := runarchive.Load(filepath.Join(d.runsRoot(), runID))
		if err != nil {
			return types.Status{}, fmt.Errorf("depot: merge status: load run %s: %w", runID, err)
		}
		if err := q.IntegrateEvents(ctx, scratchEvents, events); err != nil {
			return types.Status{}, fmt.Errorf("depot: merge status: integrate run %s: %w", runID, err)
		}
	}

	parent := baseStatus
	return lineage.Save(d.statusesRoot(), &parent, runIDs, dbPath)
}
