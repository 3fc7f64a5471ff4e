package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

func testConflict(mappingID string) *schema.Conflict {
	return &schema.Conflict{
		MappingID:      mappingID,
		UserID:         "user-1",
		EntityType:     schema.KindScheduleBlock,
		EntityID:       "block-1",
		LocalSnapshot:  json.RawMessage(`{"title":"local"}`),
		RemoteSnapshot: json.RawMessage(`{"summary":"remote"}`),
	}
}

func TestUpsertOpenConflict_DedupesPerMapping(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertOpenConflict(ctx, testConflict("map-1"))
	if err != nil {
		t.Fatalf("UpsertOpenConflict() error = %v", err)
	}

	// Re-detecting the same divergence refreshes the open row instead of
	// stacking a second one.
	again := testConflict("map-1")
	again.LocalSnapshot = json.RawMessage(`{"title":"local v2"}`)
	second, err := store.UpsertOpenConflict(ctx, again)
	if err != nil {
		t.Fatalf("UpsertOpenConflict() second call error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second detection created new row %s, want refresh of %s", second.ID, first.ID)
	}
	if string(second.LocalSnapshot) != `{"title":"local v2"}` {
		t.Errorf("local snapshot = %s, want refreshed snapshot", second.LocalSnapshot)
	}

	open, err := store.ListConflicts(ctx, ConflictFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open conflicts = %d, want 1", len(open))
	}
}

func TestMarkConflictResolved_KeepsAuditRow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c, err := store.UpsertOpenConflict(ctx, testConflict("map-1"))
	if err != nil {
		t.Fatalf("UpsertOpenConflict() error = %v", err)
	}

	if err := store.MarkConflictResolved(ctx, c.ID, schema.PreferLocal); err != nil {
		t.Fatalf("MarkConflictResolved() error = %v", err)
	}

	got, err := store.GetConflictByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConflictByID() error = %v", err)
	}
	if !got.Resolved || got.Resolution != schema.PreferLocal {
		t.Errorf("conflict = resolved %v strategy %q, want resolved prefer_local", got.Resolved, got.Resolution)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not stamped")
	}

	// Resolving twice is an error; the audit record is immutable.
	if err := store.MarkConflictResolved(ctx, c.ID, schema.PreferRemote); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkConflictResolved() twice error = %v, want ErrNotFound", err)
	}

	// A fresh divergence on the same mapping opens a new row; the resolved
	// one stays behind for audit.
	fresh, err := store.UpsertOpenConflict(ctx, testConflict("map-1"))
	if err != nil {
		t.Fatalf("UpsertOpenConflict() after resolve error = %v", err)
	}
	if fresh.ID == c.ID {
		t.Error("new detection reused resolved row, want a separate open conflict")
	}

	all, err := store.ListConflicts(ctx, ConflictFilter{UserID: "user-1", IncludeResolved: true})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("total conflicts = %d, want 2 (one resolved, one open)", len(all))
	}
}

func TestCountOpenConflicts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertOpenConflict(ctx, testConflict("map-1")); err != nil {
		t.Fatalf("UpsertOpenConflict() error = %v", err)
	}
	other := testConflict("map-2")
	other.UserID = "user-2"
	if _, err := store.UpsertOpenConflict(ctx, other); err != nil {
		t.Fatalf("UpsertOpenConflict() error = %v", err)
	}

	n, err := store.CountOpenConflicts(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountOpenConflicts() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountOpenConflicts(user-1) = %d, want 1", n)
	}

	n, err = store.CountOpenConflicts(ctx, "")
	if err != nil {
		t.Fatalf("CountOpenConflicts() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountOpenConflicts(all) = %d, want 2", n)
	}
}

func TestSyncCursor_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetSyncCursor(ctx, "user-1", schema.DefaultCalendarID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSyncCursor() before first sync error = %v, want ErrNotFound", err)
	}

	cur := &SyncCursor{
		UserID:       "user-1",
		CalendarID:   schema.DefaultCalendarID,
		UpdatedMin:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		LastFullSync: time.Date(2026, 3, 1, 8, 0, 5, 0, time.UTC),
	}
	if err := store.SaveSyncCursor(ctx, cur); err != nil {
		t.Fatalf("SaveSyncCursor() error = %v", err)
	}

	cur.UpdatedMin = cur.UpdatedMin.Add(time.Hour)
	if err := store.SaveSyncCursor(ctx, cur); err != nil {
		t.Fatalf("SaveSyncCursor() update error = %v", err)
	}

	got, err := store.GetSyncCursor(ctx, "user-1", schema.DefaultCalendarID)
	if err != nil {
		t.Fatalf("GetSyncCursor() error = %v", err)
	}
	if !got.UpdatedMin.Equal(cur.UpdatedMin) {
		t.Errorf("updated_min = %v, want %v", got.UpdatedMin, cur.UpdatedMin)
	}
}

func TestSyncRun_Lifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	id, err := store.StartSyncRun(ctx, "user-1", started)
	if err != nil {
		t.Fatalf("StartSyncRun() error = %v", err)
	}

	run := &SyncRun{
		ID:         id,
		UserID:     "user-1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Created:    3,
		Conflicts:  1,
		Status:     RunStatusOK,
	}
	if err := store.FinishSyncRun(ctx, run); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}

	runs, err := store.ListSyncRuns(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListSyncRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListSyncRuns() returned %d runs, want 1", len(runs))
	}
	if runs[0].Created != 3 || runs[0].Conflicts != 1 || runs[0].Status != RunStatusOK {
		t.Errorf("run = %+v, want created 3, conflicts 1, status ok", runs[0])
	}
}
