// Package integrator wires the queue engine's atomic integrate_events
// operation to the current-run workspace layout (spec §4.E, §6
// "current-run/events/<event-name>") and records the resulting counts.
package integrator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/justapithecus/quarry-depot/metrics"
	"github.com/justapithecus/quarry-depot/queue"
	"github.com/justapithecus/quarry-depot/types"
)

const eventsSubdir = "events"

// Integrator applies batches of events to a queue's source_urls table and
// the current-run's loose event file directory, atomically per batch.
type Integrator struct {
	q             *queue.Queue
	workspaceRoot string // current-run/
	metrics       *metrics.Collector
}

// New returns an Integrator writing event files under
// <workspaceRoot>/events and applying queue updates through q. metrics may
// be nil (Collector's increment methods are nil-receiver-safe).
func New(q *queue.Queue, workspaceRoot string, m *metrics.Collector) *Integrator {
	return &Integrator{q: q, workspaceRoot: workspaceRoot, metrics: m}
}

// Integrate writes events to the current-run events directory and applies
// their queue updates in one transaction (spec §4.E integrate_events, §8
// invariant 2: the resulting table is independent of integration order
// within a batch).
func (in *Integrator) Integrate(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	eventsDir := filepath.Join(in.workspaceRoot, eventsSubdir)
	if err := in.q.IntegrateEvents(ctx, eventsDir, events); err != nil {
		return fmt.Errorf("integrator: integrate events: %w", err)
	}

	var registered, changed int64
	for _, e := range events {
		switch e.Kind {
		case types.KindRegistration:
			registered++
		case types.KindCollection:
			changed++
		}
	}
	in.metrics.AddEventsIntegrated(int64(len(events)))
	in.metrics.AddRowsRegistered(registered)
	in.metrics.AddRowsStatusChanged(changed)

	return nil
}
