package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

// Options configures an Engine. The zero value is usable: the primary
// calendar, no new-entity export, stderr logging, and a no-op event sink.
type Options struct {
	// CalendarID is the remote calendar to reconcile against
	// (default: schema.DefaultCalendarID)
	CalendarID string

	// ExportNew publishes local entities that have never been mapped as
	// new remote events during the export pass
	ExportNew bool

	// Logger for engine activity (default: stderr logger)
	Logger *log.Logger

	// Sink receives lifecycle events (default: NopSink)
	Sink EventSink
}

// engine implements the Engine interface.
type engine struct {
	store      *db.DB
	remote     RemoteCalendar
	calendarID string
	exportNew  bool
	locks      *keyedMutex
	logger     *log.Logger
	sink       EventSink
}

// New creates a new Engine instance.
//
// The database connection must be initialized and have schema created
// before passing to this function. If opts is nil, defaults are used.
//
// Example:
//
//	store, err := db.Open(".aqsync/aqsync.db")
//	if err != nil {
//	    return err
//	}
//	if err := store.InitSchema(); err != nil {
//	    return err
//	}
//	engine := sync.New(store, client, nil)
func New(store *db.DB, remote RemoteCalendar, opts *Options) Engine {
	if opts == nil {
		opts = &Options{}
	}
	calendarID := opts.CalendarID
	if calendarID == "" {
		calendarID = schema.DefaultCalendarID
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}

	return &engine{
		store:      store,
		remote:     remote,
		calendarID: calendarID,
		exportNew:  opts.ExportNew,
		locks:      newKeyedMutex(),
		logger:     logger,
		sink:       sink,
	}
}

// SyncUser implements Engine.SyncUser.
func (e *engine) SyncUser(ctx context.Context, userID string) (*db.SyncRun, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	run, err := e.startRun(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventRunStarted, UserID: userID})

	err = e.syncLocked(ctx, userID, run)
	return e.finishRun(run, err)
}

// ProcessEvent implements Engine.ProcessEvent.
func (e *engine) ProcessEvent(ctx context.Context, userID string, ev *gcal.Event) (*Classification, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	return e.classifyLocked(ctx, userID, ev)
}

// ExportUser implements Engine.ExportUser.
func (e *engine) ExportUser(ctx context.Context, userID string) (*db.SyncRun, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	run, err := e.startRun(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventRunStarted, UserID: userID})

	err = e.exportLocked(ctx, userID, run)
	return e.finishRun(run, err)
}

// syncLocked runs the inbound pass (classify every remote event updated
// since the cursor) followed by the export pass. Caller holds the user lock.
func (e *engine) syncLocked(ctx context.Context, userID string, run *db.SyncRun) error {
	cursor, err := e.store.GetSyncCursor(ctx, userID, e.calendarID)
	if errors.Is(err, db.ErrNotFound) {
		// First sync for this user: list everything.
		cursor = &db.SyncCursor{UserID: userID, CalendarID: e.calendarID}
	} else if err != nil {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}

	events, err := e.remote.ListUpdatedSince(ctx, e.calendarID, cursor.UpdatedMin)
	if err != nil {
		return fmt.Errorf("failed to list remote events: %w", err)
	}
	e.logger.Printf("Syncing %d changed events for %s", len(events), userID)

	maxUpdated := cursor.UpdatedMin
	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := &events[i]
		cls, err := e.classifyLocked(ctx, userID, ev)

		var vErr *gcal.ValidationError
		var item *itemFailure
		switch {
		case errors.As(err, &vErr):
			run.Skipped++
			e.logger.Printf("WARNING: skipping malformed event: %v", vErr)
			continue
		case errors.As(err, &item):
			run.Failed++
			e.logger.Printf("WARNING: failed to process event %s: %v", ev.ID, item)
			continue
		case err != nil:
			// Mapping-store failure: every later item reads the same store.
			return err
		}

		e.tally(run, cls.Action)
		if ev.Updated.After(maxUpdated) {
			maxUpdated = ev.Updated
		}
	}

	// A first sync with an empty calendar still moves the cursor: everything
	// updated before the run started was in the (empty) list.
	if maxUpdated.IsZero() {
		maxUpdated = run.StartedAt
	}
	cursor.UpdatedMin = maxUpdated
	cursor.LastFullSync = time.Now().UTC()
	if err := e.store.SaveSyncCursor(ctx, cursor); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}

	return e.exportLocked(ctx, userID, run)
}

// tally maps one classification onto the run counters.
func (e *engine) tally(run *db.SyncRun, a Action) {
	switch a {
	case ActionCreateLocal:
		run.Created++
	case ActionUpdateLocal:
		run.UpdatedLocal++
	case ActionDeferPush:
		run.Deferred++
	case ActionConflict:
		run.Conflicts++
	case ActionNoOp:
		run.NoOps++
	}
}

// startRun opens the sync-log row for a run.
func (e *engine) startRun(ctx context.Context, userID string) (*db.SyncRun, error) {
	started := time.Now().UTC()
	id, err := e.store.StartSyncRun(ctx, userID, started)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}
	return &db.SyncRun{ID: id, UserID: userID, StartedAt: started}, nil
}

// finishRun closes the sync-log row. The write uses a fresh context so a
// cancelled run still records how far it got.
func (e *engine) finishRun(run *db.SyncRun, runErr error) (*db.SyncRun, error) {
	run.FinishedAt = time.Now().UTC()
	switch {
	case runErr != nil:
		run.Status = db.RunStatusAborted
		run.Error = runErr.Error()
	case run.Skipped > 0 || run.Failed > 0:
		run.Status = db.RunStatusPartial
	default:
		run.Status = db.RunStatusOK
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.FinishSyncRun(ctx, run); err != nil {
		e.logger.Printf("WARNING: failed to record sync run %d: %v", run.ID, err)
	}

	e.logger.Printf("Sync run %d for %s finished %s: created=%d updated=%d deferred=%d conflicts=%d noops=%d skipped=%d failed=%d pushed=%d",
		run.ID, run.UserID, run.Status, run.Created, run.UpdatedLocal, run.Deferred,
		run.Conflicts, run.NoOps, run.Skipped, run.Failed, run.Pushed)
	e.emit(Event{Type: EventRunFinished, UserID: run.UserID, Detail: run.Status})
	return run, runErr
}

// emit stamps and publishes one lifecycle event.
func (e *engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.sink.SyncEvent(ev)
}

// checkpoint advances a mapping's reconciliation state in the store and
// mirrors it on the in-memory row.
func (e *engine) checkpoint(ctx context.Context, m *schema.Mapping, localUpdated, googleUpdated, lastSynced time.Time, hash string) error {
	if err := e.store.UpdateMappingSyncState(ctx, m.ID, localUpdated, googleUpdated, lastSynced, hash); err != nil {
		return fmt.Errorf("failed to checkpoint mapping %s: %w", m.ID, err)
	}
	m.LocalEventUpdated = localUpdated
	m.GoogleEventUpdated = googleUpdated
	m.LastSyncedAt = lastSynced
	m.ContentHash = hash
	return nil
}
