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

// exportLocked pushes deferred local changes to the remote calendar and,
// when ExportNew is set, publishes unmapped entities as new events. Caller
// holds the user lock. Counters accumulate into run.
func (e *engine) exportLocked(ctx context.Context, userID string, run *db.SyncRun) error {
	mappings, err := e.store.ListMappings(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list mappings: %w", err)
	}

	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.exportMapping(ctx, m, run); err != nil {
			return err
		}
	}

	if e.exportNew {
		if err := e.exportNewEntities(ctx, userID, run); err != nil {
			return err
		}
	}
	return nil
}

// exportMapping pushes one mapping's pending local change, if any. Remote
// failures are item-scoped: the checkpoint stays put and the next pass
// retries.
func (e *engine) exportMapping(ctx context.Context, m *schema.Mapping, run *db.SyncRun) error {
	ent, err := e.store.GetEntity(ctx, m.EntityType, m.EntityID)
	if errors.Is(err, db.ErrNotFound) {
		if err := e.store.DeleteMapping(ctx, m.ID); err != nil {
			return fmt.Errorf("failed to remove stale mapping %s: %w", m.ID, err)
		}
		e.emit(Event{
			Type: EventMappingRemoved, UserID: m.UserID,
			EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: m.GoogleEventID,
		})
		run.NoOps++
		return nil
	}
	if err != nil {
		run.Failed++
		e.logger.Printf("WARNING: failed to load %s %s: %v", m.EntityType, m.EntityID, err)
		return nil
	}

	if !ent.LastUpdated().After(m.LastSyncedAt) {
		return nil
	}

	// An open conflict owns this mapping; the push waits for the user's
	// resolution.
	if _, err := e.store.GetOpenConflictByMapping(ctx, m.ID); err == nil {
		return nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to check conflicts for mapping %s: %w", m.ID, err)
	}

	// A timestamp bump without a content change needs no remote write;
	// just move the checkpoint forward.
	hash := contentHash(ent)
	if hash == m.ContentHash {
		now := time.Now().UTC()
		if err := e.checkpoint(ctx, m, ent.LastUpdated(), m.GoogleEventUpdated, laterOf(now, m.GoogleEventUpdated), hash); err != nil {
			return err
		}
		run.NoOps++
		return nil
	}

	// Re-read the remote side before writing over it. If it moved past the
	// last-seen remote stamp while this push was pending, that is a
	// divergence, not an export. The checkpoint is the wrong reference here:
	// it is clamped to local now on create, so a remote edit stamped behind
	// it would slip through.
	remote, err := e.remote.GetEvent(ctx, m.CalendarID, m.GoogleEventID)
	if err != nil {
		if errors.Is(err, gcal.ErrEventNotFound) {
			tomb := &gcal.Event{ID: m.GoogleEventID, Status: gcal.StatusCancelled, Updated: time.Now().UTC()}
			if _, err := e.openConflict(ctx, m, ent, tomb); err != nil {
				return err
			}
			run.Conflicts++
			return nil
		}
		run.Failed++
		e.logger.Printf("WARNING: failed to read event %s before push: %v", m.GoogleEventID, err)
		return nil
	}
	if remote.Updated.After(m.GoogleEventUpdated) {
		if _, err := e.openConflict(ctx, m, ent, remote); err != nil {
			return err
		}
		run.Conflicts++
		return nil
	}

	patch, err := entityToPatch(ent)
	if err != nil {
		return err
	}
	updated, err := e.remote.UpdateEvent(ctx, m.CalendarID, m.GoogleEventID, patch)
	if err != nil {
		run.Failed++
		e.logger.Printf("WARNING: failed to push %s %s to event %s: %v", m.EntityType, m.EntityID, m.GoogleEventID, err)
		return nil
	}

	now := time.Now().UTC()
	if err := e.checkpoint(ctx, m, ent.LastUpdated(), updated.Updated, laterOf(now, updated.Updated), hash); err != nil {
		return err
	}
	run.Pushed++
	e.emit(Event{
		Type: EventRemotePushed, UserID: m.UserID,
		EntityType: m.EntityType, EntityID: m.EntityID, GoogleEventID: m.GoogleEventID,
	})
	return nil
}

// exportNewEntities publishes local entities that have never been mapped.
// Completed assignments are left alone; there is nothing to remind anyone
// of.
func (e *engine) exportNewEntities(ctx context.Context, userID string, run *db.SyncRun) error {
	ents, err := e.listAllEntities(ctx, userID)
	if err != nil {
		return err
	}

	for _, ent := range ents {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := e.store.GetMappingByEntity(ctx, ent.Kind(), ent.EntityID())
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("failed to look up mapping for %s %s: %w", ent.Kind(), ent.EntityID(), err)
		}

		if a, ok := ent.(*schema.Assignment); ok && a.Completed {
			continue
		}

		patch, err := entityToPatch(ent)
		if err != nil {
			return err
		}
		created, err := e.remote.InsertEvent(ctx, e.calendarID, patch)
		if err != nil {
			run.Failed++
			e.logger.Printf("WARNING: failed to create event for %s %s: %v", ent.Kind(), ent.EntityID(), err)
			continue
		}

		now := time.Now().UTC()
		m := &schema.Mapping{
			UserID:             userID,
			EntityType:         ent.Kind(),
			EntityID:           ent.EntityID(),
			GoogleEventID:      created.ID,
			CalendarID:         e.calendarID,
			LocalEventUpdated:  ent.LastUpdated(),
			GoogleEventUpdated: created.Updated,
			LastSyncedAt:       laterOf(now, created.Updated),
			ContentHash:        contentHash(ent),
		}
		m.SetDefaults()
		if err := e.store.UpsertMapping(ctx, m); err != nil {
			return fmt.Errorf("failed to map new event %s: %w", created.ID, err)
		}

		run.Pushed++
		e.emit(Event{
			Type: EventRemotePushed, UserID: userID,
			EntityType: ent.Kind(), EntityID: ent.EntityID(), GoogleEventID: created.ID,
		})
	}
	return nil
}

func (e *engine) listAllEntities(ctx context.Context, userID string) ([]schema.Entity, error) {
	blocks, err := e.store.ListScheduleBlocks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule blocks: %w", err)
	}
	assignments, err := e.store.ListAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	exams, err := e.store.ListExams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	out := make([]schema.Entity, 0, len(blocks)+len(assignments)+len(exams))
	for _, b := range blocks {
		out = append(out, b)
	}
	for _, a := range assignments {
		out = append(out, a)
	}
	for _, x := range exams {
		out = append(out, x)
	}
	return out, nil
}
