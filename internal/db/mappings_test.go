package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

func testMapping(userID, entityID, eventID string) *schema.Mapping {
	m := &schema.Mapping{
		UserID:        userID,
		EntityType:    schema.KindScheduleBlock,
		EntityID:      entityID,
		GoogleEventID: eventID,
		LastSyncedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	m.SetDefaults()
	return m
}

func TestMapping_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testMapping("user-1", "block-1", "gev-1")
	m.LastSyncedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.ContentHash = "abc123"

	if err := store.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}

	byEvent, err := store.GetMappingByEvent(ctx, "user-1", "gev-1")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if byEvent.EntityID != "block-1" || byEvent.ContentHash != "abc123" {
		t.Errorf("GetMappingByEvent() = %+v, want entity block-1 hash abc123", byEvent)
	}
	if !byEvent.LastSyncedAt.Equal(m.LastSyncedAt) {
		t.Errorf("last_synced_at = %v, want %v", byEvent.LastSyncedAt, m.LastSyncedAt)
	}

	byEntity, err := store.GetMappingByEntity(ctx, schema.KindScheduleBlock, "block-1")
	if err != nil {
		t.Fatalf("GetMappingByEntity() error = %v", err)
	}
	if byEntity.ID != m.ID {
		t.Errorf("GetMappingByEntity() id = %s, want %s", byEntity.ID, m.ID)
	}
	if byEntity.CalendarID != schema.DefaultCalendarID {
		t.Errorf("calendar_id = %q, want default", byEntity.CalendarID)
	}
}

func TestMapping_GetMissingReturnsNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetMappingByEvent(ctx, "user-1", "no-such-event"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMappingByEvent() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetMappingByEntity(ctx, schema.KindExam, "no-such-exam"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMappingByEntity() error = %v, want ErrNotFound", err)
	}
}

// A second live mapping for the same entity, or for the same remote event,
// must be rejected by the store itself.
func TestMapping_UniquenessEnforced(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMapping(ctx, testMapping("user-1", "block-1", "gev-1")); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}

	dupEntity := testMapping("user-1", "block-1", "gev-other")
	if err := store.UpsertMapping(ctx, dupEntity); err == nil {
		t.Error("UpsertMapping() with duplicate entity succeeded, want unique violation")
	}

	dupEvent := testMapping("user-1", "block-other", "gev-1")
	if err := store.UpsertMapping(ctx, dupEvent); err == nil {
		t.Error("UpsertMapping() with duplicate event succeeded, want unique violation")
	}

	// Same mapping id is a refresh, not a violation.
	m := testMapping("user-2", "block-2", "gev-2")
	if err := store.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}
	m.ContentHash = "updated"
	if err := store.UpsertMapping(ctx, m); err != nil {
		t.Errorf("UpsertMapping() refresh error = %v", err)
	}
	got, err := store.GetMappingByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMappingByID() error = %v", err)
	}
	if got.ContentHash != "updated" {
		t.Errorf("content_hash = %q, want refreshed value", got.ContentHash)
	}
}

func TestMapping_DeleteFreesIdentity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testMapping("user-1", "block-1", "gev-1")
	if err := store.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}
	if err := store.DeleteMapping(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMapping() error = %v", err)
	}
	if _, err := store.GetMappingByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMappingByID() after delete error = %v, want ErrNotFound", err)
	}

	// Identity is free again once the old mapping is gone.
	if err := store.UpsertMapping(ctx, testMapping("user-1", "block-1", "gev-1")); err != nil {
		t.Errorf("UpsertMapping() after delete error = %v", err)
	}

	// Deleting twice is fine.
	if err := store.DeleteMapping(ctx, m.ID); err != nil {
		t.Errorf("DeleteMapping() second call error = %v", err)
	}
}

func TestUpdateMappingSyncState(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testMapping("user-1", "block-1", "gev-1")
	if err := store.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}

	local := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	remote := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	synced := time.Date(2026, 3, 1, 10, 6, 0, 0, time.UTC)
	if err := store.UpdateMappingSyncState(ctx, m.ID, local, remote, synced, "h1"); err != nil {
		t.Fatalf("UpdateMappingSyncState() error = %v", err)
	}

	got, err := store.GetMappingByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMappingByID() error = %v", err)
	}
	if !got.LocalEventUpdated.Equal(local) || !got.GoogleEventUpdated.Equal(remote) || !got.LastSyncedAt.Equal(synced) {
		t.Errorf("sync state = %v/%v/%v, want %v/%v/%v",
			got.LocalEventUpdated, got.GoogleEventUpdated, got.LastSyncedAt, local, remote, synced)
	}

	err = store.UpdateMappingSyncState(ctx, "missing", local, remote, synced, "h1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMappingSyncState(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListMappings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		m := testMapping("user-1", "block-"+id, "gev-"+id)
		m.CreatedAt = time.Date(2026, 3, 1, 9, i, 0, 0, time.UTC)
		if err := store.UpsertMapping(ctx, m); err != nil {
			t.Fatalf("UpsertMapping() error = %v", err)
		}
	}
	other := testMapping("user-2", "block-x", "gev-x")
	if err := store.UpsertMapping(ctx, other); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}

	got, err := store.ListMappings(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListMappings() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListMappings() returned %d mappings, want 3", len(got))
	}
	if got[0].EntityID != "block-a" || got[2].EntityID != "block-c" {
		t.Errorf("ListMappings() order = %s..%s, want block-a..block-c", got[0].EntityID, got[2].EntityID)
	}
}
