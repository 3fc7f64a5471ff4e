package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultCalendarID is the remote calendar used when an account does not
// name one explicitly.
const DefaultCalendarID = "primary"

// Mapping links exactly one local entity to exactly one remote calendar
// event. last_synced_at is the reconciliation checkpoint: the change
// detector compares both sides' update timestamps against it.
//
// The store enforces at most one live mapping per (entity_type, entity_id)
// and at most one per (user_id, google_event_id).
type Mapping struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Link =====
	EntityType    EntityKind `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	GoogleEventID string     `json:"google_event_id"`
	CalendarID    string     `json:"calendar_id"`

	// ===== Sync State =====
	LocalEventUpdated  time.Time `json:"local_event_updated"`
	GoogleEventUpdated time.Time `json:"google_event_updated"`
	LastSyncedAt       time.Time `json:"last_synced_at"`
	ContentHash        string    `json:"content_hash,omitempty"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the Mapping field values.
func (m *Mapping) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !m.EntityType.Valid() {
		return fmt.Errorf("entity_type %q is not a syncable kind", m.EntityType)
	}
	if m.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if m.GoogleEventID == "" {
		return fmt.Errorf("google_event_id is required")
	}
	if m.LastSyncedAt.IsZero() {
		return fmt.Errorf("last_synced_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (m *Mapping) SetDefaults() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CalendarID == "" {
		m.CalendarID = DefaultCalendarID
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}
