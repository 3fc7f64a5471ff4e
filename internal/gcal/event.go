package gcal

import (
	"time"
)

// Event status values used by the remote calendar API.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// EventDateTime is the remote API's date container. Timed events carry
// DateTime (RFC 3339 with offset); all-day events carry Date (YYYY-MM-DD).
// TimeZone is the IANA zone the event is anchored to.
type EventDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time parses the container into a concrete instant. All-day dates resolve
// to midnight in the event's zone (UTC when no zone is given).
func (d *EventDateTime) Time() (time.Time, error) {
	if d == nil {
		return time.Time{}, &ValidationError{Field: "start", Reason: "missing"}
	}
	if d.DateTime != "" {
		t, err := time.Parse(time.RFC3339, d.DateTime)
		if err != nil {
			return time.Time{}, &ValidationError{Field: "dateTime", Reason: err.Error()}
		}
		return t, nil
	}
	if d.Date != "" {
		loc := time.UTC
		if d.TimeZone != "" {
			if l, err := time.LoadLocation(d.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", d.Date, loc)
		if err != nil {
			return time.Time{}, &ValidationError{Field: "date", Reason: err.Error()}
		}
		return t, nil
	}
	return time.Time{}, &ValidationError{Field: "dateTime", Reason: "missing"}
}

// Event is a calendar event as returned by the remote API. Updated is
// controlled by the remote system and is the inbound half of change
// detection.
type Event struct {
	ID          string         `json:"id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Updated     time.Time      `json:"updated,omitempty"`
	Start       *EventDateTime `json:"start,omitempty"`
	End         *EventDateTime `json:"end,omitempty"`
}

// EventPatch is the write body for insert and update calls. It carries only
// caller-writable fields; the remote owns id and updated.
type EventPatch struct {
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Status      string         `json:"status,omitempty"`
	Start       *EventDateTime `json:"start,omitempty"`
	End         *EventDateTime `json:"end,omitempty"`
}

// Validate checks that the event is well-formed enough to classify:
// it must carry an id, a remote updated stamp, and a parseable start.
// Cancelled events are exempt from the start requirement since the API
// strips most fields from tombstones.
func (e *Event) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if e.Updated.IsZero() {
		return &ValidationError{EventID: e.ID, Field: "updated", Reason: "missing"}
	}
	if e.Status == StatusCancelled {
		return nil
	}
	if _, err := e.Start.Time(); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.EventID = e.ID
			return ve
		}
		return err
	}
	return nil
}

// StartTime returns the parsed start instant. Call Validate first;
// StartTime on a malformed event returns the zero time.
func (e *Event) StartTime() time.Time {
	t, err := e.Start.Time()
	if err != nil {
		return time.Time{}
	}
	return t
}

// EndTime returns the parsed end instant, falling back to the start when
// the remote omitted the end.
func (e *Event) EndTime() time.Time {
	t, err := e.End.Time()
	if err != nil {
		return e.StartTime()
	}
	return t
}

// NewDateTime wraps an instant in the remote API's container shape.
func NewDateTime(t time.Time, tz string) *EventDateTime {
	return &EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: tz,
	}
}
