package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

// Action is the change detector's verdict for one remote event.
type Action string

const (
	// ActionCreateLocal: the event had no mapping; a local entity and its
	// mapping were created.
	ActionCreateLocal Action = "create_local"

	// ActionUpdateLocal: only the remote side changed since the checkpoint;
	// its fields were applied to the local entity.
	ActionUpdateLocal Action = "update_local_from_remote"

	// ActionDeferPush: only the local side changed. The mapping's local
	// bookkeeping was refreshed; the remote write happens in the export
	// pass, not here.
	ActionDeferPush Action = "update_remote_from_local"

	// ActionConflict: both sides changed independently since the
	// checkpoint; a conflict record is now open for the mapping.
	ActionConflict Action = "conflict"

	// ActionNoOp: nothing needed doing.
	ActionNoOp Action = "noop"
)

// Classification is the decision for one remote event together with the
// rows it touched. Entity and Conflict are set when the action produced or
// read them.
type Classification struct {
	Action   Action
	Mapping  *schema.Mapping
	Entity   schema.Entity
	Conflict *schema.Conflict
	Reason   string
}

// itemFailure wraps an error that poisons one batch item but not the batch.
// Entity-table failures are item-scoped; mapping-store failures are not,
// since every later classification reads the same store.
type itemFailure struct {
	err error
}

func (e *itemFailure) Error() string { return e.err.Error() }
func (e *itemFailure) Unwrap() error { return e.err }

// classifyLocked runs the change detection algorithm for one event. Caller
// holds the user lock.
func (e *engine) classifyLocked(ctx context.Context, userID string, ev *gcal.Event) (*Classification, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	m, err := e.store.GetMappingByEvent(ctx, userID, ev.ID)
	if errors.Is(err, db.ErrNotFound) {
		if ev.Status == gcal.StatusCancelled {
			// A tombstone for an event that was never mapped here.
			return &Classification{Action: ActionNoOp, Reason: "cancelled event has no mapping"}, nil
		}
		return e.createLocal(ctx, userID, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up mapping for event %s: %w", ev.ID, err)
	}

	ent, err := e.store.GetEntity(ctx, m.EntityType, m.EntityID)
	if errors.Is(err, db.ErrNotFound) {
		// The entity was deleted locally, so the mapping is stale. Remove
		// it; the remote event keeps existing and may map fresh later.
		if err := e.store.DeleteMapping(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("failed to remove stale mapping %s: %w", m.ID, err)
		}
		e.emit(Event{
			Type: EventMappingRemoved, UserID: userID,
			EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: ev.ID,
		})
		return &Classification{Action: ActionNoOp, Mapping: m, Reason: "local entity deleted"}, nil
	}
	if err != nil {
		return nil, &itemFailure{fmt.Errorf("failed to load %s %s: %w", m.EntityType, m.EntityID, err)}
	}

	remoteChanged := ev.Updated.After(m.LastSyncedAt)
	localChanged := ent.LastUpdated().After(m.LastSyncedAt)

	switch {
	case remoteChanged && localChanged:
		return e.openConflict(ctx, m, ent, ev)
	case remoteChanged:
		return e.updateLocal(ctx, m, ent, ev)
	case localChanged:
		return e.deferPush(ctx, m, ent)
	default:
		return &Classification{Action: ActionNoOp, Mapping: m, Entity: ent}, nil
	}
}

// createLocal instantiates a local entity from the remote event and maps
// the pair. The checkpoint is set no earlier than the event's updated stamp
// so the event does not immediately re-classify as a remote change.
func (e *engine) createLocal(ctx context.Context, userID string, ev *gcal.Event) (*Classification, error) {
	now := time.Now().UTC()
	ent := newEntityFromEvent(userID, ev, now)
	if err := e.store.InsertScheduleBlock(ctx, ent); err != nil {
		return nil, &itemFailure{fmt.Errorf("failed to create entity for event %s: %w", ev.ID, err)}
	}

	m := &schema.Mapping{
		UserID:             userID,
		EntityType:         ent.Kind(),
		EntityID:           ent.ID,
		GoogleEventID:      ev.ID,
		CalendarID:         e.calendarID,
		LocalEventUpdated:  now,
		GoogleEventUpdated: ev.Updated,
		LastSyncedAt:       laterOf(now, ev.Updated),
		ContentHash:        contentHash(ent),
	}
	m.SetDefaults()
	if err := e.store.UpsertMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to map event %s: %w", ev.ID, err)
	}

	e.emit(Event{
		Type: EventEntityCreated, UserID: userID,
		EntityType: ent.Kind(), EntityID: ent.ID, GoogleEventID: ev.ID,
	})
	return &Classification{Action: ActionCreateLocal, Mapping: m, Entity: ent}, nil
}

// updateLocal applies the remote side's change to the local entity and
// advances the checkpoint. A cancelled event propagates as a local delete.
func (e *engine) updateLocal(ctx context.Context, m *schema.Mapping, ent schema.Entity, ev *gcal.Event) (*Classification, error) {
	if ev.Status == gcal.StatusCancelled {
		if err := e.store.DeleteEntity(ctx, m.EntityType, m.EntityID); err != nil {
			return nil, &itemFailure{fmt.Errorf("failed to delete %s %s: %w", m.EntityType, m.EntityID, err)}
		}
		if err := e.store.DeleteMapping(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("failed to remove mapping %s: %w", m.ID, err)
		}
		e.emit(Event{
			Type: EventEntityDeleted, UserID: m.UserID,
			EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: ev.ID,
		})
		return &Classification{Action: ActionUpdateLocal, Mapping: m, Entity: ent, Reason: "remote event cancelled"}, nil
	}

	now := time.Now().UTC()
	if err := applyEventToEntity(ent, ev); err != nil {
		return nil, err
	}
	setEntityUpdatedAt(ent, now)
	if err := e.store.UpdateEntity(ctx, ent); err != nil {
		return nil, &itemFailure{fmt.Errorf("failed to apply event %s to %s %s: %w", ev.ID, m.EntityType, m.EntityID, err)}
	}
	if err := e.checkpoint(ctx, m, now, ev.Updated, laterOf(now, ev.Updated), contentHash(ent)); err != nil {
		return nil, err
	}

	e.emit(Event{
		Type: EventEntityUpdated, UserID: m.UserID,
		EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: ev.ID,
	})
	return &Classification{Action: ActionUpdateLocal, Mapping: m, Entity: ent}, nil
}

// deferPush refreshes the mapping's local-timestamp bookkeeping. The
// checkpoint stays put until the export pass lands the remote write.
func (e *engine) deferPush(ctx context.Context, m *schema.Mapping, ent schema.Entity) (*Classification, error) {
	err := e.store.UpdateMappingSyncState(ctx, m.ID, ent.LastUpdated(), m.GoogleEventUpdated, m.LastSyncedAt, m.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh mapping %s: %w", m.ID, err)
	}
	m.LocalEventUpdated = ent.LastUpdated()

	e.emit(Event{
		Type: EventPushDeferred, UserID: m.UserID,
		EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: m.GoogleEventID,
	})
	return &Classification{Action: ActionDeferPush, Mapping: m, Entity: ent}, nil
}

// openConflict snapshots both sides into a conflict record. Re-detecting
// the same divergence refreshes the open record rather than stacking a new
// one. The checkpoint is left alone so nothing is masked as resolved.
func (e *engine) openConflict(ctx context.Context, m *schema.Mapping, ent schema.Entity, ev *gcal.Event) (*Classification, error) {
	c := &schema.Conflict{
		MappingID:      m.ID,
		UserID:         m.UserID,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		LocalSnapshot:  entitySnapshot(ent),
		RemoteSnapshot: eventSnapshot(ev),
	}
	stored, err := e.store.UpsertOpenConflict(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to record conflict for mapping %s: %w", m.ID, err)
	}

	e.logger.Printf("WARNING: conflict on %s %s (event %s): both sides changed since %s",
		m.EntityType, m.EntityID, ev.ID, m.LastSyncedAt.Format(time.RFC3339))
	e.emit(Event{
		Type: EventConflictDetected, UserID: m.UserID,
		EntityType: m.EntityType, EntityID: m.EntityID,
		GoogleEventID: ev.ID, ConflictID: stored.ID,
	})
	return &Classification{Action: ActionConflict, Mapping: m, Entity: ent, Conflict: stored}, nil
}
