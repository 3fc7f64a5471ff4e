// Package loadtest provides load testing utilities for the sync engine.
//
// It simulates many calendars feeding change notifications at once to
// validate that classification stays fast while per-user serialization is
// in effect.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
	"github.com/aqademiq/aqsync/internal/sync"
)

// TestDatabase is a populated store plus an engine wired to a synthetic
// remote calendar.
type TestDatabase struct {
	DB     *db.DB
	Engine sync.Engine

	UserIDs []string
	Events  []seededEvent

	TotalEntities int
	MappedPct     float64
}

type seededEvent struct {
	userID string
	event  gcal.Event
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// memoryCalendar is a no-network RemoteCalendar for load runs.
type memoryCalendar struct {
	mu     gosync.Mutex
	events map[string]*gcal.Event
	nextID int
}

func newMemoryCalendar() *memoryCalendar {
	return &memoryCalendar{events: make(map[string]*gcal.Event)}
}

func (m *memoryCalendar) ListUpdatedSince(_ context.Context, _ string, updatedMin time.Time) ([]gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []gcal.Event
	for _, ev := range m.events {
		if updatedMin.IsZero() || !ev.Updated.Before(updatedMin) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memoryCalendar) GetEvent(_ context.Context, _ string, eventID string) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, &gcal.RemoteError{Op: "get", StatusCode: 404, Err: gcal.ErrEventNotFound}
	}
	cp := *ev
	return &cp, nil
}

func (m *memoryCalendar) InsertEvent(_ context.Context, _ string, patch *gcal.EventPatch) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev := &gcal.Event{
		ID:      fmt.Sprintf("load-ev-%d", m.nextID),
		Status:  gcal.StatusConfirmed,
		Summary: patch.Summary,
		Updated: time.Now().UTC(),
		Start:   patch.Start,
		End:     patch.End,
	}
	m.events[ev.ID] = ev
	cp := *ev
	return &cp, nil
}

func (m *memoryCalendar) UpdateEvent(_ context.Context, _ string, eventID string, patch *gcal.EventPatch) (*gcal.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return nil, &gcal.RemoteError{Op: "update", StatusCode: 404, Err: gcal.ErrEventNotFound}
	}
	ev.Summary = patch.Summary
	ev.Updated = time.Now().UTC()
	cp := *ev
	return &cp, nil
}

// CreateTestDatabase builds a store with numUsers users, entitiesPerUser
// schedule blocks each, and an event stream to classify. mappedPct controls
// what fraction of events already carry a mapping (the rest classify as new
// remote events).
func CreateTestDatabase(dbPath string, numUsers, entitiesPerUser int, mappedPct float64) (*TestDatabase, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool sized for concurrent workers.
	database.RawDB().SetMaxOpenConns(50)
	database.RawDB().SetMaxIdleConns(20)
	database.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	remote := newMemoryCalendar()
	engine := sync.New(database, remote, &sync.Options{
		Logger: log.New(io.Discard, "", 0),
	})

	td := &TestDatabase{
		DB:            database,
		Engine:        engine,
		TotalEntities: numUsers * entitiesPerUser,
		MappedPct:     mappedPct,
	}

	// Deterministic random for reproducibility.
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()
	base := time.Now().UTC().Add(-30 * 24 * time.Hour)

	for u := 0; u < numUsers; u++ {
		userID := fmt.Sprintf("load-user-%03d", u)
		td.UserIDs = append(td.UserIDs, userID)

		for i := 0; i < entitiesPerUser; i++ {
			start := base.Add(time.Duration(u*entitiesPerUser+i) * time.Hour)
			block := &schema.ScheduleBlock{
				UserID:    userID,
				Title:     fmt.Sprintf("Block %d/%d", u, i),
				StartTime: start,
				EndTime:   start.Add(time.Hour),
			}
			block.SetDefaults()
			block.CreatedAt = base
			block.UpdatedAt = base
			if err := database.InsertScheduleBlock(ctx, block); err != nil {
				_ = database.Close()
				return nil, fmt.Errorf("failed to insert block: %w", err)
			}

			eventID := fmt.Sprintf("load-ev-%03d-%04d", u, i)
			ev := gcal.Event{
				ID:      eventID,
				Status:  gcal.StatusConfirmed,
				Summary: block.Title,
				Updated: base,
				Start:   gcal.NewDateTime(start, "UTC"),
				End:     gcal.NewDateTime(start.Add(time.Hour), "UTC"),
			}

			if rng.Float64() < mappedPct {
				m := &schema.Mapping{
					UserID:             userID,
					EntityType:         schema.KindScheduleBlock,
					EntityID:           block.ID,
					GoogleEventID:      eventID,
					LocalEventUpdated:  base,
					GoogleEventUpdated: base,
					LastSyncedAt:       base,
				}
				m.SetDefaults()
				if err := database.UpsertMapping(ctx, m); err != nil {
					_ = database.Close()
					return nil, fmt.Errorf("failed to insert mapping: %w", err)
				}
			} else {
				// Unmapped stream events use distinct ids so they classify
				// as brand-new remote events.
				ev.ID = "fresh-" + eventID
			}

			remote.mu.Lock()
			cp := ev
			remote.events[ev.ID] = &cp
			remote.mu.Unlock()

			td.Events = append(td.Events, seededEvent{userID: userID, event: ev})
		}
	}
	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// RunConcurrentClassification simulates numWorkers webhook handlers each
// classifying eventsPerWorker events, recording latency for each call.
func (td *TestDatabase) RunConcurrentClassification(numWorkers, eventsPerWorker int) (*LatencyStats, error) {
	if len(td.Events) == 0 {
		return nil, fmt.Errorf("no seeded events to classify")
	}

	var wg gosync.WaitGroup
	resultsChan := make(chan []time.Duration, numWorkers)
	errorsChan := make(chan error, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, eventsPerWorker)
			ctx := context.Background()

			for j := 0; j < eventsPerWorker; j++ {
				seed := td.Events[(workerID*eventsPerWorker+j)%len(td.Events)]
				ev := seed.event

				start := time.Now()
				_, err := td.Engine.ProcessEvent(ctx, seed.userID, &ev)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("worker %d event %d failed: %w", workerID, j, err)
					return
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for err := range errorsChan {
		if err != nil {
			errorCount++
		}
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful classifications completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
		Durations:    sorted,
	}
}

// PrintStats formats and prints latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Classifications: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:          %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:             %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):    %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:            %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:             %v\n", s.P95)
	fmt.Fprintf(w, "  P99:             %v\n", s.P99)
	fmt.Fprintf(w, "  Max:             %v\n", s.Max)
}

// GetStats returns summary statistics about the seeded database.
func (td *TestDatabase) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"users":          len(td.UserIDs),
		"total_entities": td.TotalEntities,
		"seeded_events":  len(td.Events),
		"mapped_percent": td.MappedPct * 100,
	}
}
