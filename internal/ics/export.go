package ics

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/schema"
)

// assignmentEventMinutes is the slot an assignment deadline occupies in the
// exported feed, ending at the due date.
const assignmentEventMinutes = 30

// ExportFeed renders every entity owned by userID as a VCALENDAR payload.
// The feed is read-only: UIDs are derived from entity IDs so subscribing
// clients see stable identities across refreshes.
func ExportFeed(ctx context.Context, store *db.DB, userID string) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//aqademiq//aqsync//EN")
	cal.SetName(fmt.Sprintf("Aqademiq planner (%s)", userID))

	blocks, err := store.ListScheduleBlocks(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list schedule blocks: %w", err)
	}
	for _, b := range blocks {
		ev := cal.AddEvent(feedUID(schema.KindScheduleBlock, b.ID))
		ev.SetDtStampTime(b.UpdatedAt.UTC())
		ev.SetStartAt(b.StartTime.UTC())
		ev.SetEndAt(b.EndTime.UTC())
		ev.SetSummary(b.Title)
		if b.Description != "" {
			ev.SetDescription(b.Description)
		}
		if b.Location != "" {
			ev.SetLocation(b.Location)
		}
	}

	assignments, err := store.ListAssignments(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list assignments: %w", err)
	}
	for _, a := range assignments {
		ev := cal.AddEvent(feedUID(schema.KindAssignment, a.ID))
		ev.SetDtStampTime(a.UpdatedAt.UTC())
		due := a.DueDate.UTC()
		ev.SetStartAt(due.Add(-assignmentEventMinutes * time.Minute))
		ev.SetEndAt(due)
		title := "Due: " + a.Title
		if a.Completed {
			title = "Done: " + a.Title
		}
		ev.SetSummary(title)
		if a.Description != "" {
			ev.SetDescription(a.Description)
		}
	}

	exams, err := store.ListExams(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list exams: %w", err)
	}
	for _, e := range exams {
		ev := cal.AddEvent(feedUID(schema.KindExam, e.ID))
		ev.SetDtStampTime(e.UpdatedAt.UTC())
		start := e.ExamDate.UTC()
		minutes := e.DurationMinutes
		if minutes <= 0 {
			minutes = 120
		}
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(time.Duration(minutes) * time.Minute))
		ev.SetSummary("Exam: " + e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Notes != "" {
			ev.SetDescription(e.Notes)
		}
	}

	return cal.Serialize(), nil
}

func feedUID(kind schema.EntityKind, id string) string {
	return fmt.Sprintf("%s-%s@aqsync", kind, id)
}
