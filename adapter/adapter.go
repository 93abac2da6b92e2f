// Package adapter defines the completion-notification adapter boundary.
//
// Adapters publish status-commit notifications to downstream systems once
// a Status node lands in the lineage DAG (spec §4.D). The depot owns
// adapter lifecycle; callers provide configuration only.
package adapter

import "context"

// StatusCommittedEvent is the payload published when the depot commits the
// current run as a new Status onto the lineage DAG.
type StatusCommittedEvent struct {
	EventType      string `json:"event_type"` // always "status_committed"
	StatusID       string `json:"status_id"`
	ParentStatusID string `json:"parent_status_id,omitempty"`
	IntegratedRuns []string `json:"integrated_runs"`
	RowsChanged    int    `json:"rows_changed"`
	RowsRegistered int    `json:"rows_registered"`
	Timestamp      string `json:"timestamp"` // RFC 3339
}

// Adapter publishes status-commit events to a downstream system.
// Implementations must be safe for concurrent use across runs.
type Adapter interface {
	// Publish sends a status-commit event to the downstream system. Must
	// respect context cancellation and deadlines.
	Publish(ctx context.Context, event *StatusCommittedEvent) error

	// Close releases adapter resources.
	Close() error
}
