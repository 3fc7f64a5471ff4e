package sync

import (
	"context"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

// Engine drives bidirectional sync for one store and one remote calendar.
//
// The engine is resilient per item: a malformed remote event or a failure
// scoped to one entity is logged, counted, and skipped, and the run
// continues. Only a mapping-store failure aborts a run, since every
// classification after it would read the same broken store.
//
// All methods serialize per user. It is safe to call them from multiple
// goroutines.
type Engine interface {
	// SyncUser runs one full reconciliation for a user: it lists remote
	// events updated since the stored cursor, classifies each against the
	// mapping store, then runs the export pass to push deferred local
	// changes outward. The returned run carries per-action counters and is
	// also persisted to the sync_runs audit log.
	//
	// A run that skipped or failed individual items finishes with status
	// "partial"; a run cut short by a store failure or cancellation
	// finishes "aborted" and the error is returned alongside the run.
	//
	// Example:
	//   run, err := engine.SyncUser(ctx, "user-1")
	SyncUser(ctx context.Context, userID string) (*db.SyncRun, error)

	// ProcessEvent classifies a single remote event against the mapping
	// store and applies the resulting action. It is the single-item form
	// of the inbound half of SyncUser, used by webhook-style callers that
	// already hold the event payload.
	//
	// Returns a *gcal.ValidationError for a malformed event; the caller
	// decides whether to skip or surface it.
	ProcessEvent(ctx context.Context, userID string, ev *gcal.Event) (*Classification, error)

	// ExportUser runs only the export pass: deferred local changes are
	// pushed to the remote calendar, and unmapped local entities are
	// published as new remote events when the engine was built with
	// ExportNew. Before each push the remote event is re-read; if it moved
	// past the checkpoint while the push was pending, the engine opens a
	// conflict instead of overwriting the remote change.
	ExportUser(ctx context.Context, userID string) (*db.SyncRun, error)

	// Resolve closes an open conflict by applying a strategy:
	//
	//   prefer_local:  push the local entity's fields to the remote event
	//   prefer_remote: apply the conflict's remote snapshot to the entity
	//   merge:         apply a caller-supplied payload to both sides
	//
	// The mapping checkpoint advances only when every required write
	// succeeded. If the remote write fails, the conflict stays open, the
	// checkpoint is untouched, and the error is returned; the next poll
	// re-detects the same divergence. Resolved conflict rows are kept for
	// audit, never deleted.
	//
	// Returns ErrConflictClosed when the conflict was already resolved and
	// ErrMergePayloadRequired when strategy is merge and payload is empty.
	Resolve(ctx context.Context, conflictID string, strategy schema.ResolutionStrategy, payload *schema.MergePayload) error
}

// RemoteCalendar is the slice of the calendar API the engine depends on.
// *gcal.Client implements it; tests substitute an in-memory fake.
type RemoteCalendar interface {
	ListUpdatedSince(ctx context.Context, calendarID string, updatedMin time.Time) ([]gcal.Event, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error)
	InsertEvent(ctx context.Context, calendarID string, patch *gcal.EventPatch) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, patch *gcal.EventPatch) (*gcal.Event, error)
}
