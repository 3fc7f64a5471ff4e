package sync

import (
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

// EventType labels a sync lifecycle notification.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventRunFinished      EventType = "run_finished"
	EventEntityCreated    EventType = "entity_created"
	EventEntityUpdated    EventType = "entity_updated"
	EventEntityDeleted    EventType = "entity_deleted"
	EventPushDeferred     EventType = "push_deferred"
	EventRemotePushed     EventType = "remote_pushed"
	EventConflictDetected EventType = "conflict_detected"
	EventConflictResolved EventType = "conflict_resolved"
	EventMappingRemoved   EventType = "mapping_removed"
)

// Event is a notification emitted by the engine as it works through a run.
// Fields beyond Type and UserID are filled when they apply.
type Event struct {
	Type          EventType         `json:"type"`
	UserID        string            `json:"user_id"`
	EntityType    schema.EntityKind `json:"entity_type,omitempty"`
	EntityID      string            `json:"entity_id,omitempty"`
	GoogleEventID string            `json:"google_event_id,omitempty"`
	ConflictID    string            `json:"conflict_id,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	At            time.Time         `json:"at"`
}

// EventSink receives engine notifications. Implementations must not block:
// the engine calls the sink inline between store writes. The sink is
// injected at construction and lives as long as the engine; there is no
// global listener registry.
type EventSink interface {
	SyncEvent(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

// SyncEvent implements EventSink.
func (NopSink) SyncEvent(Event) {}
