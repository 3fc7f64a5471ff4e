package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

func TestClassify_NoMappingCreatesLocal(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	ev := testEvent("ev-1", time.Now().UTC().Add(-time.Minute))
	cls, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionCreateLocal {
		t.Fatalf("Action = %q, want create_local", cls.Action)
	}

	m, err := store.GetMappingByEvent(ctx, "user-1", "ev-1")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if m.LastSyncedAt.Before(ev.Updated) {
		t.Errorf("last_synced_at %v precedes event updated %v", m.LastSyncedAt, ev.Updated)
	}

	block, err := store.GetScheduleBlockByID(ctx, m.EntityID)
	if err != nil {
		t.Fatalf("GetScheduleBlockByID() error = %v", err)
	}
	if block.Title != ev.Summary {
		t.Errorf("title = %q, want %q", block.Title, ev.Summary)
	}
	if !block.StartTime.Equal(ev.StartTime()) {
		t.Errorf("start = %v, want event start %v", block.StartTime, ev.StartTime())
	}
}

func TestClassify_CreateLocalCheckpointClampedUnderClockSkew(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	// Remote clock running ahead of ours.
	ev := testEvent("ev-skew", time.Now().UTC().Add(10*time.Minute))
	if _, err := eng.ProcessEvent(ctx, "user-1", ev); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}

	m, err := store.GetMappingByEvent(ctx, "user-1", "ev-skew")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if m.LastSyncedAt.Before(ev.Updated) {
		t.Errorf("checkpoint %v not clamped to remote updated %v", m.LastSyncedAt, ev.Updated)
	}
}

func TestClassify_BothNewerIsConflict(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour)
	block := seedScheduleBlock(t, store, "user-1", t0.Add(10*time.Minute)) // local changed after checkpoint
	seedMapping(t, store, block, "ev-1", t0)

	ev := testEvent("ev-1", t0.Add(20*time.Minute)) // remote changed after checkpoint too
	cls, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionConflict {
		t.Fatalf("Action = %q, want conflict (never a one-sided update)", cls.Action)
	}
	if cls.Conflict == nil || cls.Conflict.Resolved {
		t.Fatal("expected an open conflict record")
	}
	if len(cls.Conflict.LocalSnapshot) == 0 || len(cls.Conflict.RemoteSnapshot) == 0 {
		t.Error("conflict must snapshot both sides")
	}

	// Checkpoint untouched: nothing is masked as resolved.
	m, err := store.GetMappingByEvent(ctx, "user-1", "ev-1")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if !m.LastSyncedAt.Equal(t0) {
		t.Errorf("checkpoint moved to %v on conflict, want %v", m.LastSyncedAt, t0)
	}
}

func TestClassify_ConflictRedetectionRefreshesOpenRecord(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour)
	block := seedScheduleBlock(t, store, "user-1", t0.Add(10*time.Minute))
	seedMapping(t, store, block, "ev-1", t0)

	ev := testEvent("ev-1", t0.Add(20*time.Minute))
	first, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("first ProcessEvent() error = %v", err)
	}

	ev.Updated = t0.Add(25 * time.Minute)
	second, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("second ProcessEvent() error = %v", err)
	}
	if second.Conflict.ID != first.Conflict.ID {
		t.Errorf("re-detection created conflict %s, want refresh of %s", second.Conflict.ID, first.Conflict.ID)
	}

	open, err := store.ListConflicts(ctx, db.ConflictFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open conflicts = %d, want 1 (re-polling must not grow the table)", len(open))
	}
}

func TestClassify_RemoteOnlyUpdatesLocal(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	// Mapping checkpoint T0, local entity unchanged at T0, remote at T1 > T0.
	t0 := time.Now().UTC().Add(-time.Hour)
	block := seedScheduleBlock(t, store, "user-1", t0)
	seedMapping(t, store, block, "ev-1", t0)

	ev := testEvent("ev-1", t0.Add(30*time.Minute))
	ev.Summary = "Linear Algebra (moved)"
	ev.Location = "Hall C"

	cls, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionUpdateLocal {
		t.Fatalf("Action = %q, want update_local_from_remote", cls.Action)
	}

	got, err := store.GetScheduleBlockByID(ctx, block.ID)
	if err != nil {
		t.Fatalf("GetScheduleBlockByID() error = %v", err)
	}
	if got.Title != "Linear Algebra (moved)" || got.Location != "Hall C" {
		t.Errorf("remote fields not applied: %+v", got)
	}
	if !got.StartTime.Equal(ev.StartTime()) {
		t.Errorf("start = %v, want remote start %v", got.StartTime, ev.StartTime())
	}

	m, err := store.GetMappingByEvent(ctx, "user-1", "ev-1")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if !m.LastSyncedAt.After(t0) {
		t.Errorf("checkpoint did not advance past %v", t0)
	}
}

func TestClassify_LocalOnlyDefersPush(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour)
	localTouch := t0.Add(15 * time.Minute)
	block := seedScheduleBlock(t, store, "user-1", localTouch)
	seedMapping(t, store, block, "ev-1", t0)

	ev := testEvent("ev-1", t0) // remote unchanged since checkpoint

	cls, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionDeferPush {
		t.Fatalf("Action = %q, want update_remote_from_local", cls.Action)
	}

	// Only bookkeeping moved; the checkpoint waits for the export pass.
	m, err := store.GetMappingByEvent(ctx, "user-1", "ev-1")
	if err != nil {
		t.Fatalf("GetMappingByEvent() error = %v", err)
	}
	if !m.LocalEventUpdated.Equal(localTouch) {
		t.Errorf("local_event_updated = %v, want %v", m.LocalEventUpdated, localTouch)
	}
	if !m.LastSyncedAt.Equal(t0) {
		t.Errorf("checkpoint = %v, want unchanged %v", m.LastSyncedAt, t0)
	}
}

func TestClassify_IdempotentSecondCallNoOp(t *testing.T) {
	eng, _, _ := setupEngine(t, nil)
	ctx := context.Background()

	ev := testEvent("ev-1", time.Now().UTC().Add(-time.Minute))
	first, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("first ProcessEvent() error = %v", err)
	}
	if first.Action != ActionCreateLocal {
		t.Fatalf("first Action = %q, want create_local", first.Action)
	}

	second, err := eng.ProcessEvent(ctx, "user-1", ev)
	if err != nil {
		t.Fatalf("second ProcessEvent() error = %v", err)
	}
	if second.Action != ActionNoOp {
		t.Errorf("second Action = %q, want noop (idempotence)", second.Action)
	}
}

func TestClassify_DeletedEntityRemovesMapping(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour)
	block := seedScheduleBlock(t, store, "user-1", t0)
	m := seedMapping(t, store, block, "ev-1", t0)

	// User deleted the block locally; the mapping is now stale.
	if err := store.DeleteEntity(ctx, schema.KindScheduleBlock, block.ID); err != nil {
		t.Fatalf("DeleteEntity() error = %v", err)
	}

	cls, err := eng.ProcessEvent(ctx, "user-1", testEvent("ev-1", t0.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionNoOp {
		t.Errorf("Action = %q, want noop", cls.Action)
	}

	if _, err := store.GetMappingByID(ctx, m.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("mapping lookup error = %v, want ErrNotFound (row removed)", err)
	}

	conflicts, err := store.ListConflicts(ctx, db.ConflictFilter{UserID: "user-1", IncludeResolved: true})
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("conflicts = %d, want 0", len(conflicts))
	}
}

func TestClassify_CancelledEventDeletesLocal(t *testing.T) {
	eng, store, _ := setupEngine(t, nil)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour)
	block := seedScheduleBlock(t, store, "user-1", t0)
	m := seedMapping(t, store, block, "ev-1", t0)

	tomb := &gcal.Event{ID: "ev-1", Status: gcal.StatusCancelled, Updated: t0.Add(time.Minute)}
	cls, err := eng.ProcessEvent(ctx, "user-1", tomb)
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if cls.Action != ActionUpdateLocal {
		t.Fatalf("Action = %q, want update_local_from_remote", cls.Action)
	}

	if _, err := store.GetScheduleBlockByID(ctx, block.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("entity lookup error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetMappingByID(ctx, m.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("mapping lookup error = %v, want ErrNotFound", err)
	}
}

func TestClassify_MalformedEventIsValidationError(t *testing.T) {
	eng, _, _ := setupEngine(t, nil)

	ev := testEvent("ev-1", time.Time{}) // missing updated stamp
	_, err := eng.ProcessEvent(context.Background(), "user-1", ev)

	var vErr *gcal.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *gcal.ValidationError", err)
	}
	if vErr.Field != "updated" {
		t.Errorf("field = %q, want updated", vErr.Field)
	}
}
