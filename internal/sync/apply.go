package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aqademiq/aqsync/internal/gcal"
	"github.com/aqademiq/aqsync/internal/schema"
)

// untitledEvent stands in for an empty remote summary so the entity still
// satisfies its own validation.
const untitledEvent = "(No title)"

// assignmentEventSpan is the length of the calendar event a due date is
// published as; assignments have no duration of their own.
const assignmentEventSpan = 30 * time.Minute

func eventTitle(ev *gcal.Event) string {
	if ev.Summary == "" {
		return untitledEvent
	}
	return ev.Summary
}

// applyEventToEntity copies the remote event's fields onto the local entity
// using the per-kind field mapping. Timestamps are the caller's job.
func applyEventToEntity(ent schema.Entity, ev *gcal.Event) error {
	switch t := ent.(type) {
	case *schema.ScheduleBlock:
		t.Title = eventTitle(ev)
		t.Description = ev.Description
		t.Location = ev.Location
		t.StartTime = ev.StartTime()
		t.EndTime = ev.EndTime()
	case *schema.Assignment:
		t.Title = eventTitle(ev)
		t.Description = ev.Description
		t.DueDate = ev.StartTime()
	case *schema.Exam:
		t.Title = eventTitle(ev)
		t.Location = ev.Location
		t.Notes = ev.Description
		t.ExamDate = ev.StartTime()
		if d := ev.EndTime().Sub(ev.StartTime()); d > 0 {
			t.DurationMinutes = int(d / time.Minute)
		}
	default:
		return fmt.Errorf("unsupported entity kind %q", ent.Kind())
	}
	return nil
}

// entityToPatch renders the local entity as a remote write body, the
// inverse of applyEventToEntity. Instants are published in UTC.
func entityToPatch(ent schema.Entity) (*gcal.EventPatch, error) {
	switch t := ent.(type) {
	case *schema.ScheduleBlock:
		return &gcal.EventPatch{
			Summary:     t.Title,
			Description: t.Description,
			Location:    t.Location,
			Start:       gcal.NewDateTime(t.StartTime.UTC(), "UTC"),
			End:         gcal.NewDateTime(t.EndTime.UTC(), "UTC"),
		}, nil
	case *schema.Assignment:
		due := t.DueDate.UTC()
		return &gcal.EventPatch{
			Summary:     t.Title,
			Description: t.Description,
			Start:       gcal.NewDateTime(due, "UTC"),
			End:         gcal.NewDateTime(due.Add(assignmentEventSpan), "UTC"),
		}, nil
	case *schema.Exam:
		start := t.ExamDate.UTC()
		end := start.Add(time.Duration(t.DurationMinutes) * time.Minute)
		return &gcal.EventPatch{
			Summary:     t.Title,
			Description: t.Notes,
			Location:    t.Location,
			Start:       gcal.NewDateTime(start, "UTC"),
			End:         gcal.NewDateTime(end, "UTC"),
		}, nil
	}
	return nil, fmt.Errorf("unsupported entity kind %q", ent.Kind())
}

// applyMergePayload overlays the user-chosen fields onto the entity. Only
// fields present in the payload change; Description maps to an exam's Notes
// and Start to whichever date field the kind carries.
func applyMergePayload(ent schema.Entity, p *schema.MergePayload) error {
	switch t := ent.(type) {
	case *schema.ScheduleBlock:
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Location != nil {
			t.Location = *p.Location
		}
		if p.Start != nil {
			t.StartTime = *p.Start
		}
		if p.End != nil {
			t.EndTime = *p.End
		}
	case *schema.Assignment:
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Start != nil {
			t.DueDate = *p.Start
		}
	case *schema.Exam:
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Notes = *p.Description
		}
		if p.Location != nil {
			t.Location = *p.Location
		}
		if p.Start != nil {
			t.ExamDate = *p.Start
		}
		if p.Start != nil && p.End != nil {
			if d := p.End.Sub(*p.Start); d > 0 {
				t.DurationMinutes = int(d / time.Minute)
			}
		}
	default:
		return fmt.Errorf("unsupported entity kind %q", ent.Kind())
	}
	return nil
}

// newEntityFromEvent instantiates a local entity for a remote event with no
// mapping. Imported events land as schedule blocks; promoting one to an
// assignment or exam is a user action, not a sync guess.
func newEntityFromEvent(userID string, ev *gcal.Event, now time.Time) *schema.ScheduleBlock {
	b := &schema.ScheduleBlock{
		UserID:      userID,
		Title:       eventTitle(ev),
		Description: ev.Description,
		Location:    ev.Location,
		StartTime:   ev.StartTime(),
		EndTime:     ev.EndTime(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.SetDefaults()
	return b
}

func setEntityUpdatedAt(ent schema.Entity, t time.Time) {
	switch e := ent.(type) {
	case *schema.ScheduleBlock:
		e.UpdatedAt = t
	case *schema.Assignment:
		e.UpdatedAt = t
	case *schema.Exam:
		e.UpdatedAt = t
	}
}

// contentHash fingerprints the syncable fields of an entity. A matching
// hash after a timestamp bump means a content-free touch; the export pass
// re-checkpoints without a remote write.
func contentHash(ent schema.Entity) string {
	var parts []string
	switch t := ent.(type) {
	case *schema.ScheduleBlock:
		parts = []string{
			string(schema.KindScheduleBlock), t.Title, t.Description, t.Location,
			t.StartTime.UTC().Format(time.RFC3339), t.EndTime.UTC().Format(time.RFC3339),
		}
	case *schema.Assignment:
		parts = []string{
			string(schema.KindAssignment), t.Title, t.Description,
			t.DueDate.UTC().Format(time.RFC3339),
		}
	case *schema.Exam:
		parts = []string{
			string(schema.KindExam), t.Title, t.Location, t.Notes,
			t.ExamDate.UTC().Format(time.RFC3339), strconv.Itoa(t.DurationMinutes),
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// entitySnapshot captures the entity state for a conflict record.
func entitySnapshot(ent schema.Entity) json.RawMessage {
	b, err := json.Marshal(ent)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// eventSnapshot captures the remote event state for a conflict record.
func eventSnapshot(ev *gcal.Event) json.RawMessage {
	b, err := json.Marshal(ev)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// laterOf returns the later of two instants. Checkpoints are clamped with
// it so a remote clock ahead of ours cannot leave updated > last_synced_at
// on a row that was just reconciled.
func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
