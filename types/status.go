// Package types defines the core domain types for the depot: source-URL
// status, events, run and status lineage, and the proxy/handler interfaces
// the scheduler and session runtime consume.
package types

// SourceStatus is the status of a source-URL row, or the outcome recorded
// against a Collection event. See spec §3.
type SourceStatus string

const (
	StatusTODO                 SourceStatus = "TODO"
	StatusProcessing           SourceStatus = "PROCESSING"
	StatusProcessed            SourceStatus = "PROCESSED"
	StatusPersistentProcessed  SourceStatus = "PERSISTENT_PROCESSED"
	StatusCacheLoaded          SourceStatus = "CACHE_LOADED"
	StatusPersistentCached     SourceStatus = "PERSISTENT_CACHED"
	StatusParsingError         SourceStatus = "PARSING_ERROR"
	StatusConnectionError      SourceStatus = "CONNECTION_ERROR"
	StatusSessionBroken        SourceStatus = "SESSION_BROKEN"
)

// IsQueuable reports whether a row with this status is eligible for
// next_batch (TODO or SESSION_BROKEN per spec §4.E).
func (s SourceStatus) IsQueuable() bool {
	return s == StatusTODO || s == StatusSessionBroken
}

// IsTerminalSuccess reports whether this status represents a successful
// fetch that deletes the source-URL row (PROCESSED, CACHE_LOADED — but not
// their persistent variants, which never delete per spec §9).
func (s SourceStatus) IsTerminalSuccess() bool {
	return s == StatusProcessed || s == StatusCacheLoaded
}

// IsPersistent reports whether this status is a persistent success variant.
// Persistent statuses never delete the source-URL row (spec §9 decision).
func (s SourceStatus) IsPersistent() bool {
	return s == StatusPersistentProcessed || s == StatusPersistentCached
}

// IsSuccess reports whether this status — persistent or not — represents a
// successful outcome (fetch or cache hit).
func (s SourceStatus) IsSuccess() bool {
	return s.IsTerminalSuccess() || s.IsPersistent()
}
