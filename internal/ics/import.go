// Package ics converts between iCalendar payloads and local entities:
// importing timetable feeds as schedule blocks and exporting the planner as
// a read-only VCALENDAR feed.
package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/aqademiq/aqsync/internal/schema"
)

const (
	// defaultWindowDays bounds recurrence expansion: occurrences beyond this
	// horizon are re-imported on the next feed refresh instead.
	defaultWindowDays = 90

	// maxOccurrencesPerEvent caps a single recurring VEVENT so a malformed
	// RRULE cannot flood the store.
	maxOccurrencesPerEvent = 500
)

// ImportOptions controls recurrence expansion during import.
type ImportOptions struct {
	// Now anchors the expansion window. Zero means time.Now().
	Now time.Time

	// WindowDays overrides the expansion horizon. Zero means the default.
	WindowDays int
}

// ImportResult reports what an import produced.
type ImportResult struct {
	Blocks []*schema.ScheduleBlock

	// Truncated lists UIDs whose recurrence hit the per-event cap.
	Truncated []string

	// Skipped counts VEVENTs dropped as unparseable.
	Skipped int
}

// parsedEvent is a normalized VEVENT before expansion.
type parsedEvent struct {
	uid          string
	summary      string
	description  string
	location     string
	courseCode   string
	start        time.Time
	end          time.Time
	rawRRule     string
	exDates      []time.Time
	recurrenceID *time.Time
}

// ImportTimetable parses an ICS payload and expands it into schedule blocks
// for userID. Recurring events expand inside [now, now+window]; overrides
// (RECURRENCE-ID) replace the matching base occurrence.
func ImportTimetable(userID string, body []byte, opts ImportOptions) (*ImportResult, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty ics payload")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ics payload: %w", err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	window := opts.WindowDays
	if window <= 0 {
		window = defaultWindowDays
	}
	rangeStart := now
	rangeEnd := now.AddDate(0, 0, window)

	var (
		result    ImportResult
		bases     []parsedEvent
		overrides = make(map[string][]parsedEvent)
	)
	for _, ve := range cal.Events() {
		pe, err := parseVEvent(ve)
		if err != nil {
			result.Skipped++
			continue
		}
		if pe.recurrenceID != nil {
			overrides[pe.uid] = append(overrides[pe.uid], pe)
			continue
		}
		bases = append(bases, pe)
	}

	for _, base := range bases {
		blocks, hitCap := expandEvent(userID, base, overrides[base.uid], rangeStart, rangeEnd)
		if hitCap {
			result.Truncated = append(result.Truncated, base.uid)
		}
		result.Blocks = append(result.Blocks, blocks...)
	}
	return &result, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, fmt.Errorf("vevent missing UID")
	}
	out.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.courseCode = strings.TrimSpace(strings.Split(p.Value, ",")[0])
	}
	if out.courseCode == "" {
		out.courseCode = courseCodeFromSummary(out.summary)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("vevent %s: bad DTSTART: %w", out.uid, err)
	}
	out.start = start

	end, err := ve.GetEndAt()
	if err != nil || !end.After(start) {
		// Timetable feeds occasionally omit DTEND; assume one hour.
		end = start.Add(time.Hour)
	}
	out.end = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.recurrenceID = &t
		}
	}
	return out, nil
}

func expandEvent(userID string, base parsedEvent, overrides []parsedEvent, rangeStart, rangeEnd time.Time) ([]*schema.ScheduleBlock, bool) {
	if base.rawRRule == "" {
		if base.end.Before(rangeStart) || base.start.After(rangeEnd) {
			return nil, false
		}
		start, end, src := base.start, base.end, base
		if o, ok := overrideFor(overrides, base.start); ok {
			start, end, src = o.start, o.end, o
		}
		return []*schema.ScheduleBlock{makeBlock(userID, src, start, end)}, false
	}

	r, err := rrule.StrToRRule(base.rawRRule)
	if err != nil {
		return nil, false
	}
	r.DTStart(base.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.exDates {
		set.ExDate(ex.In(base.start.Location()))
	}

	occStarts := set.Between(rangeStart.In(base.start.Location()), rangeEnd.In(base.start.Location()), true)
	hitCap := false
	if len(occStarts) > maxOccurrencesPerEvent {
		occStarts = occStarts[:maxOccurrencesPerEvent]
		hitCap = true
	}

	dur := base.end.Sub(base.start)
	out := make([]*schema.ScheduleBlock, 0, len(occStarts))
	for _, occStart := range occStarts {
		start, end, src := occStart, occStart.Add(dur), base
		if o, ok := overrideFor(overrides, occStart); ok {
			start, end, src = o.start, o.end, o
		}
		out = append(out, makeBlock(userID, src, start, end))
	}
	return out, hitCap
}

// overrideFor finds the override whose RECURRENCE-ID matches this
// occurrence start exactly.
func overrideFor(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, o := range overrides {
		if o.recurrenceID != nil && o.recurrenceID.In(start.Location()).Equal(start) {
			return o, true
		}
	}
	return parsedEvent{}, false
}

// courseCodeFromSummary recognizes the "CS101: Lecture" prefix convention
// common in university timetable feeds.
func courseCodeFromSummary(summary string) string {
	prefix, _, found := strings.Cut(summary, ":")
	if !found {
		return ""
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || len(prefix) > 12 || strings.ContainsRune(prefix, ' ') {
		return ""
	}
	hasDigit := false
	for _, r := range prefix {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '-':
		default:
			return ""
		}
	}
	if !hasDigit {
		return ""
	}
	return prefix
}

func makeBlock(userID string, src parsedEvent, start, end time.Time) *schema.ScheduleBlock {
	b := &schema.ScheduleBlock{
		UserID:      userID,
		Title:       src.summary,
		Description: src.description,
		Location:    src.location,
		CourseCode:  src.courseCode,
		Recurrence:  src.rawRRule,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
	}
	b.SetDefaults()
	return b
}

// parseICSTime handles the basic DATE / DATE-TIME / UTC forms used by
// EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}
