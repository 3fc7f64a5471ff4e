package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

var (
	// ErrConflictClosed is returned by Resolve for an already-resolved
	// conflict.
	ErrConflictClosed = errors.New("conflict already resolved")

	// ErrMergePayloadRequired is returned by Resolve when strategy is merge
	// and no payload (or an empty one) was supplied.
	ErrMergePayloadRequired = errors.New("merge resolution requires a payload")
)

// Resolve implements Engine.Resolve.
func (e *engine) Resolve(ctx context.Context, conflictID string, strategy schema.ResolutionStrategy, payload *schema.MergePayload) error {
	if !strategy.Valid() {
		return fmt.Errorf("unknown resolution strategy %q", strategy)
	}
	if strategy == schema.Merge && (payload == nil || payload.Empty()) {
		return ErrMergePayloadRequired
	}

	c, err := e.store.GetConflictByID(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("failed to load conflict %s: %w", conflictID, err)
	}

	unlock := e.locks.lock(c.UserID)
	defer unlock()

	// Re-read under the lock; a concurrent resolve may have closed it.
	c, err = e.store.GetConflictByID(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("failed to load conflict %s: %w", conflictID, err)
	}
	if c.Resolved {
		return fmt.Errorf("conflict %s: %w", conflictID, ErrConflictClosed)
	}

	m, err := e.store.GetMappingByID(ctx, c.MappingID)
	if err != nil {
		return fmt.Errorf("failed to load mapping for conflict %s: %w", conflictID, err)
	}

	switch strategy {
	case schema.PreferLocal:
		err = e.resolvePreferLocal(ctx, m)
	case schema.PreferRemote:
		err = e.resolvePreferRemote(ctx, c, m)
	case schema.Merge:
		err = e.resolveMerge(ctx, m, payload)
	}
	if err != nil {
		// The conflict stays open and the checkpoint stays put; the next
		// poll re-detects the same divergence.
		return err
	}

	if err := e.store.MarkConflictResolved(ctx, c.ID, strategy); err != nil {
		return fmt.Errorf("failed to close conflict %s: %w", c.ID, err)
	}

	e.logger.Printf("Resolved conflict %s on %s %s with %s", c.ID, c.EntityType, c.EntityID, strategy)
	e.emit(Event{
		Type: EventConflictResolved, UserID: c.UserID,
		EntityType: c.EntityType, EntityID: c.EntityID,
		GoogleEventID: m.GoogleEventID, ConflictID: c.ID,
		Detail: string(strategy),
	})
	return nil
}

// resolvePreferLocal pushes the current local entity state over the remote
// event, then checkpoints.
func (e *engine) resolvePreferLocal(ctx context.Context, m *schema.Mapping) error {
	ent, err := e.store.GetEntity(ctx, m.EntityType, m.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", m.EntityType, m.EntityID, err)
	}
	patch, err := entityToPatch(ent)
	if err != nil {
		return err
	}

	updated, err := e.remote.UpdateEvent(ctx, m.CalendarID, m.GoogleEventID, patch)
	if err != nil {
		return fmt.Errorf("failed to push %s %s to event %s: %w", m.EntityType, m.EntityID, m.GoogleEventID, err)
	}

	now := time.Now().UTC()
	return e.checkpoint(ctx, m, ent.LastUpdated(), updated.Updated, laterOf(now, updated.Updated), contentHash(ent))
}

// resolvePreferRemote applies the conflict's remote snapshot onto the local
// entity, then checkpoints. A cancelled snapshot deletes the entity and the
// mapping instead.
func (e *engine) resolvePreferRemote(ctx context.Context, c *schema.Conflict, m *schema.Mapping) error {
	var ev gcal.Event
	if err := json.Unmarshal(c.RemoteSnapshot, &ev); err != nil {
		return fmt.Errorf("failed to decode remote snapshot of conflict %s: %w", c.ID, err)
	}

	if ev.Status == gcal.StatusCancelled {
		if err := e.store.DeleteEntity(ctx, m.EntityType, m.EntityID); err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", m.EntityType, m.EntityID, err)
		}
		if err := e.store.DeleteMapping(ctx, m.ID); err != nil {
			return fmt.Errorf("failed to remove mapping %s: %w", m.ID, err)
		}
		return nil
	}

	ent, err := e.store.GetEntity(ctx, m.EntityType, m.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", m.EntityType, m.EntityID, err)
	}
	if err := applyEventToEntity(ent, &ev); err != nil {
		return err
	}
	now := time.Now().UTC()
	setEntityUpdatedAt(ent, now)
	if err := e.store.UpdateEntity(ctx, ent); err != nil {
		return fmt.Errorf("failed to apply remote snapshot to %s %s: %w", m.EntityType, m.EntityID, err)
	}

	return e.checkpoint(ctx, m, now, ev.Updated, laterOf(now, ev.Updated), contentHash(ent))
}

// resolveMerge applies the user's payload to both sides. The local half
// goes first: if the remote write then fails, the checkpoint is still
// behind both sides and the divergence stays detectable.
func (e *engine) resolveMerge(ctx context.Context, m *schema.Mapping, payload *schema.MergePayload) error {
	ent, err := e.store.GetEntity(ctx, m.EntityType, m.EntityID)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", m.EntityType, m.EntityID, err)
	}
	if err := applyMergePayload(ent, payload); err != nil {
		return err
	}
	now := time.Now().UTC()
	setEntityUpdatedAt(ent, now)
	if err := e.store.UpdateEntity(ctx, ent); err != nil {
		return fmt.Errorf("failed to apply merge to %s %s: %w", m.EntityType, m.EntityID, err)
	}

	patch, err := entityToPatch(ent)
	if err != nil {
		return err
	}
	updated, err := e.remote.UpdateEvent(ctx, m.CalendarID, m.GoogleEventID, patch)
	if err != nil {
		return fmt.Errorf("failed to push merge to event %s: %w", m.GoogleEventID, err)
	}

	return e.checkpoint(ctx, m, ent.LastUpdated(), updated.Updated, laterOf(now, updated.Updated), contentHash(ent))
}
