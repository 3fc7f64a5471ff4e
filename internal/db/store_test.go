package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

// setupTestStore creates a fresh database in a temp dir with schema applied.
func setupTestStore(t *testing.T) *DB {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return store
}

func TestInitSchema_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() error = %v", err)
	}
}

func TestScheduleBlock_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	block := &schema.ScheduleBlock{
		UserID:      "user-1",
		Title:       "Linear Algebra",
		Description: "Room change this week",
		Location:    "Hall B",
		CourseCode:  "MATH201",
		StartTime:   start,
		EndTime:     start.Add(90 * time.Minute),
	}
	block.SetDefaults()

	if err := store.InsertScheduleBlock(ctx, block); err != nil {
		t.Fatalf("InsertScheduleBlock() error = %v", err)
	}

	got, err := store.GetScheduleBlockByID(ctx, block.ID)
	if err != nil {
		t.Fatalf("GetScheduleBlockByID() error = %v", err)
	}
	if got.Title != block.Title || got.Location != block.Location || got.CourseCode != block.CourseCode {
		t.Errorf("got %+v, want fields of %+v", got, block)
	}
	if !got.StartTime.Equal(block.StartTime) || !got.EndTime.Equal(block.EndTime) {
		t.Errorf("times did not round-trip: got %v-%v, want %v-%v",
			got.StartTime, got.EndTime, block.StartTime, block.EndTime)
	}

	got.Title = "Linear Algebra II"
	got.UpdatedAt = time.Now().UTC()
	if err := store.UpdateScheduleBlock(ctx, got); err != nil {
		t.Fatalf("UpdateScheduleBlock() error = %v", err)
	}

	updated, err := store.GetScheduleBlockByID(ctx, block.ID)
	if err != nil {
		t.Fatalf("GetScheduleBlockByID() after update error = %v", err)
	}
	if updated.Title != "Linear Algebra II" {
		t.Errorf("title = %q, want updated title", updated.Title)
	}
}

func TestAssignment_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := &schema.Assignment{
		UserID:  "user-1",
		Title:   "Problem set 3",
		DueDate: time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
	}
	a.SetDefaults()

	if err := store.InsertAssignment(ctx, a); err != nil {
		t.Fatalf("InsertAssignment() error = %v", err)
	}

	got, err := store.GetAssignmentByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAssignmentByID() error = %v", err)
	}
	if !got.DueDate.Equal(a.DueDate) {
		t.Errorf("due date = %v, want %v", got.DueDate, a.DueDate)
	}
	if got.Completed {
		t.Error("new assignment should not be completed")
	}
}

func TestExam_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := &schema.Exam{
		UserID:          "user-1",
		Title:           "Midterm",
		Location:        "Gym",
		Notes:           "Bring calculator",
		ExamDate:        time.Date(2026, 3, 20, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
	}
	e.SetDefaults()

	if err := store.InsertExam(ctx, e); err != nil {
		t.Fatalf("InsertExam() error = %v", err)
	}

	got, err := store.GetExamByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExamByID() error = %v", err)
	}
	if got.DurationMinutes != 120 || got.Notes != "Bring calculator" {
		t.Errorf("got %+v, want duration 120 and notes preserved", got)
	}
}

func TestGetEntity_Dispatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := &schema.Assignment{UserID: "user-1", Title: "Essay", DueDate: time.Now().Add(time.Hour)}
	a.SetDefaults()
	if err := store.InsertEntity(ctx, a); err != nil {
		t.Fatalf("InsertEntity() error = %v", err)
	}

	ent, err := store.GetEntity(ctx, schema.KindAssignment, a.ID)
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if ent.Kind() != schema.KindAssignment || ent.EntityID() != a.ID {
		t.Errorf("GetEntity() = %v/%v, want assignment/%s", ent.Kind(), ent.EntityID(), a.ID)
	}

	if _, err := store.GetEntity(ctx, schema.KindExam, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEntity(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntity_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.DeleteEntity(ctx, schema.KindScheduleBlock, "never-existed"); err != nil {
		t.Errorf("DeleteEntity() on missing row error = %v, want nil", err)
	}
}

func TestUpdate_MissingRowReturnsNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := &schema.Assignment{UserID: "user-1", Title: "Ghost", DueDate: time.Now()}
	a.SetDefaults()

	err := store.UpdateAssignment(ctx, a)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAssignment() on missing row error = %v, want ErrNotFound", err)
	}
}
