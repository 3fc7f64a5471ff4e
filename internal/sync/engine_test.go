package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

// fakeRemote is an in-memory RemoteCalendar. Writes can be forced to fail
// to exercise the checkpoint-untouched guarantees.
type fakeRemote struct {
	mu     stdsync.Mutex
	events map[string]*gcal.Event
	nextID int

	failWrites bool
	inserts    int
	updates    int

	// onList runs at the start of every ListUpdatedSince call
	onList func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{events: make(map[string]*gcal.Event)}
}

func (f *fakeRemote) put(ev *gcal.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.events[ev.ID] = &cp
}

func (f *fakeRemote) get(id string) *gcal.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil
	}
	cp := *ev
	return &cp
}

func (f *fakeRemote) ListUpdatedSince(_ context.Context, _ string, updatedMin time.Time) ([]gcal.Event, error) {
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gcal.Event
	for _, ev := range f.events {
		if updatedMin.IsZero() || !ev.Updated.Before(updatedMin) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeRemote) GetEvent(_ context.Context, _ string, eventID string) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok {
		return nil, &gcal.RemoteError{Op: "get", StatusCode: 404, Err: gcal.ErrEventNotFound}
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeRemote) InsertEvent(_ context.Context, _ string, patch *gcal.EventPatch) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return nil, &gcal.RemoteError{Op: "insert", StatusCode: 503, Err: fmt.Errorf("service unavailable")}
	}
	f.inserts++
	f.nextID++
	ev := &gcal.Event{
		ID:          fmt.Sprintf("ev-new-%d", f.nextID),
		Status:      gcal.StatusConfirmed,
		Summary:     patch.Summary,
		Description: patch.Description,
		Location:    patch.Location,
		Updated:     time.Now().UTC(),
		Start:       patch.Start,
		End:         patch.End,
	}
	f.events[ev.ID] = ev
	cp := *ev
	return &cp, nil
}

func (f *fakeRemote) UpdateEvent(_ context.Context, _ string, eventID string, patch *gcal.EventPatch) (*gcal.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return nil, &gcal.RemoteError{Op: "update", StatusCode: 503, Err: fmt.Errorf("service unavailable")}
	}
	ev, ok := f.events[eventID]
	if !ok {
		return nil, &gcal.RemoteError{Op: "update", StatusCode: 404, Err: gcal.ErrEventNotFound}
	}
	f.updates++
	ev.Summary = patch.Summary
	ev.Description = patch.Description
	ev.Location = patch.Location
	ev.Start = patch.Start
	ev.End = patch.End
	ev.Updated = time.Now().UTC()
	cp := *ev
	return &cp, nil
}

// recordingSink collects emitted events for assertions.
type recordingSink struct {
	mu     stdsync.Mutex
	events []Event
}

func (s *recordingSink) SyncEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count(typ EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// setupEngine creates a fresh store, fake remote, and engine.
func setupEngine(t *testing.T, opts *Options) (*engine, *db.DB, *fakeRemote) {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	remote := newFakeRemote()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	eng := New(store, remote, opts).(*engine)
	return eng, store, remote
}

// testEvent builds a well-formed remote event.
func testEvent(id string, updated time.Time) *gcal.Event {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &gcal.Event{
		ID:      id,
		Status:  gcal.StatusConfirmed,
		Summary: "Linear Algebra",
		Updated: updated,
		Start:   gcal.NewDateTime(start, "UTC"),
		End:     gcal.NewDateTime(start.Add(time.Hour), "UTC"),
	}
}

// seedScheduleBlock inserts a block with a fixed updated_at.
func seedScheduleBlock(t *testing.T, store *db.DB, userID string, updatedAt time.Time) *schema.ScheduleBlock {
	t.Helper()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := &schema.ScheduleBlock{
		UserID:    userID,
		Title:     "Linear Algebra",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	b.SetDefaults()
	b.UpdatedAt = updatedAt
	if err := store.InsertScheduleBlock(context.Background(), b); err != nil {
		t.Fatalf("InsertScheduleBlock() error = %v", err)
	}
	return b
}

// seedMapping links an entity and an event with a fixed checkpoint.
func seedMapping(t *testing.T, store *db.DB, ent schema.Entity, eventID string, lastSynced time.Time) *schema.Mapping {
	t.Helper()

	m := &schema.Mapping{
		UserID:             ent.Owner(),
		EntityType:         ent.Kind(),
		EntityID:           ent.EntityID(),
		GoogleEventID:      eventID,
		LocalEventUpdated:  lastSynced,
		GoogleEventUpdated: lastSynced,
		LastSyncedAt:       lastSynced,
		ContentHash:        contentHash(ent),
	}
	m.SetDefaults()
	if err := store.UpsertMapping(context.Background(), m); err != nil {
		t.Fatalf("UpsertMapping() error = %v", err)
	}
	return m
}

func TestSyncUser_CountsAndCursor(t *testing.T) {
	eng, store, remote := setupEngine(t, nil)
	ctx := context.Background()

	t1 := time.Now().UTC().Add(-30 * time.Minute)
	remote.put(testEvent("ev-1", t1))
	remote.put(testEvent("ev-2", t1.Add(time.Minute)))

	run, err := eng.SyncUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}
	if run.Created != 2 {
		t.Errorf("Created = %d, want 2", run.Created)
	}
	if run.Status != db.RunStatusOK {
		t.Errorf("Status = %q, want ok", run.Status)
	}

	cursor, err := store.GetSyncCursor(ctx, "user-1", schema.DefaultCalendarID)
	if err != nil {
		t.Fatalf("GetSyncCursor() error = %v", err)
	}
	if !cursor.UpdatedMin.Equal(t1.Add(time.Minute)) {
		t.Errorf("cursor = %v, want max observed updated %v", cursor.UpdatedMin, t1.Add(time.Minute))
	}

	// Second run with nothing changed: both events re-list at the cursor
	// boundary and classify as no-ops.
	run2, err := eng.SyncUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("second SyncUser() error = %v", err)
	}
	if run2.Created != 0 || run2.Conflicts != 0 || run2.UpdatedLocal != 0 {
		t.Errorf("second run mutated state: %+v", run2)
	}
}

func TestSyncUser_MalformedEventSkippedBatchContinues(t *testing.T) {
	eng, _, remote := setupEngine(t, nil)
	ctx := context.Background()

	good := testEvent("ev-good", time.Now().UTC().Add(-time.Minute))
	bad := testEvent("ev-bad", time.Now().UTC().Add(-time.Minute))
	bad.Start = nil // malformed: no start
	remote.put(good)
	remote.put(bad)

	run, err := eng.SyncUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}
	if run.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", run.Skipped)
	}
	if run.Created != 1 {
		t.Errorf("Created = %d, want 1 (batch continues past malformed item)", run.Created)
	}
	if run.Status != db.RunStatusPartial {
		t.Errorf("Status = %q, want partial", run.Status)
	}
}

func TestSyncUser_CancelledBetweenItems(t *testing.T) {
	eng, _, remote := setupEngine(t, nil)

	for i := 0; i < 5; i++ {
		remote.put(testEvent(fmt.Sprintf("ev-%d", i), time.Now().UTC().Add(-time.Minute)))
	}

	// Cancel after the run has opened and listed, so the abort lands on the
	// item boundary inside the batch loop.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote.onList = cancel

	run, err := eng.SyncUser(ctx, "user-1")
	if err == nil {
		t.Fatal("SyncUser() error = nil, want context error")
	}
	if run.Status != db.RunStatusAborted {
		t.Errorf("Status = %q, want aborted", run.Status)
	}
}

func TestSyncUser_EmitsLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	eng, _, remote := setupEngine(t, &Options{Sink: sink})

	remote.put(testEvent("ev-1", time.Now().UTC().Add(-time.Minute)))

	if _, err := eng.SyncUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	if sink.count(EventRunStarted) != 1 || sink.count(EventRunFinished) != 1 {
		t.Errorf("lifecycle events = %d started / %d finished, want 1/1",
			sink.count(EventRunStarted), sink.count(EventRunFinished))
	}
	if sink.count(EventEntityCreated) != 1 {
		t.Errorf("entity_created events = %d, want 1", sink.count(EventEntityCreated))
	}
}
