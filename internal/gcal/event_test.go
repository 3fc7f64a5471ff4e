package gcal

import (
	"errors"
	"testing"
	"time"
)

func TestEvent_Validate(t *testing.T) {
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := &EventDateTime{DateTime: "2026-03-02T09:00:00Z", TimeZone: "UTC"}

	tests := []struct {
		name      string
		event     Event
		wantErr   bool
		wantField string
	}{
		{
			name:  "valid event",
			event: Event{ID: "ev-1", Summary: "Lecture", Updated: updated, Start: start},
		},
		{
			name:      "missing id",
			event:     Event{Updated: updated, Start: start},
			wantErr:   true,
			wantField: "id",
		},
		{
			name:      "missing updated",
			event:     Event{ID: "ev-1", Start: start},
			wantErr:   true,
			wantField: "updated",
		},
		{
			name:      "missing start",
			event:     Event{ID: "ev-1", Updated: updated},
			wantErr:   true,
			wantField: "start",
		},
		{
			name:      "garbled start",
			event:     Event{ID: "ev-1", Updated: updated, Start: &EventDateTime{DateTime: "not-a-time"}},
			wantErr:   true,
			wantField: "dateTime",
		},
		{
			name:  "cancelled tombstone without start",
			event: Event{ID: "ev-1", Status: StatusCancelled, Updated: updated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestEventDateTime_Time(t *testing.T) {
	t.Run("timed", func(t *testing.T) {
		d := &EventDateTime{DateTime: "2026-03-02T09:00:00+02:00"}
		got, err := d.Time()
		if err != nil {
			t.Fatalf("Time() error = %v", err)
		}
		want := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Time() = %v, want %v", got, want)
		}
	})

	t.Run("all-day", func(t *testing.T) {
		d := &EventDateTime{Date: "2026-03-02"}
		got, err := d.Time()
		if err != nil {
			t.Fatalf("Time() error = %v", err)
		}
		want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("Time() = %v, want %v", got, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		d := &EventDateTime{}
		if _, err := d.Time(); err == nil {
			t.Error("Time() on empty container should fail")
		}
	})
}

func TestEvent_EndTimeFallsBackToStart(t *testing.T) {
	ev := Event{
		ID:      "ev-1",
		Updated: time.Now(),
		Start:   &EventDateTime{DateTime: "2026-03-02T09:00:00Z"},
	}
	if !ev.EndTime().Equal(ev.StartTime()) {
		t.Errorf("EndTime() = %v, want start %v", ev.EndTime(), ev.StartTime())
	}
}
