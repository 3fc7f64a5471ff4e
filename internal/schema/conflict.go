package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolutionStrategy selects how a conflict is closed. It is a typed
// constant set, not a free string: anything crossing an API or CLI
// boundary goes through ParseResolutionStrategy first.
type ResolutionStrategy string

const (
	// PreferLocal pushes the local entity snapshot to the remote calendar.
	PreferLocal ResolutionStrategy = "prefer_local"

	// PreferRemote applies the remote snapshot's fields onto the local entity.
	PreferRemote ResolutionStrategy = "prefer_remote"

	// Merge applies a caller-supplied merged payload to both sides.
	Merge ResolutionStrategy = "merge"
)

// Valid reports whether the strategy is one of the known constants.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case PreferLocal, PreferRemote, Merge:
		return true
	}
	return false
}

// ParseResolutionStrategy converts free-form input into a strategy,
// accepting both underscore and hyphen spellings.
func ParseResolutionStrategy(s string) (ResolutionStrategy, error) {
	switch s {
	case "prefer_local", "prefer-local", "local":
		return PreferLocal, nil
	case "prefer_remote", "prefer-remote", "remote", "prefer_google", "prefer-google":
		return PreferRemote, nil
	case "merge":
		return Merge, nil
	}
	return "", fmt.Errorf("unknown resolution strategy %q (want prefer_local, prefer_remote, or merge)", s)
}

// Conflict records one detected divergence: both sides of a mapping changed
// independently since the last checkpoint. Snapshots are full JSON captures
// of each side at detection time. Rows are never deleted; resolution only
// flips Resolved and stamps the strategy.
type Conflict struct {
	// ===== Core Identification =====
	ID        string `json:"id"`
	MappingID string `json:"mapping_id"`
	UserID    string `json:"user_id"`

	// ===== Subject =====
	EntityType EntityKind `json:"entity_type"`
	EntityID   string     `json:"entity_id"`

	// ===== Snapshots =====
	LocalSnapshot  json.RawMessage `json:"local_snapshot"`
	RemoteSnapshot json.RawMessage `json:"remote_snapshot"`

	// ===== Resolution =====
	Resolved   bool               `json:"resolved"`
	Resolution ResolutionStrategy `json:"resolution,omitempty"`
	DetectedAt time.Time          `json:"detected_at"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
}

// Validate checks the Conflict field values.
func (c *Conflict) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.MappingID == "" {
		return fmt.Errorf("mapping_id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !c.EntityType.Valid() {
		return fmt.Errorf("entity_type %q is not a syncable kind", c.EntityType)
	}
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if len(c.LocalSnapshot) == 0 {
		return fmt.Errorf("local_snapshot is required")
	}
	if len(c.RemoteSnapshot) == 0 {
		return fmt.Errorf("remote_snapshot is required")
	}
	if c.DetectedAt.IsZero() {
		return fmt.Errorf("detected_at is required")
	}
	if c.Resolved && !c.Resolution.Valid() {
		return fmt.Errorf("resolved conflict must carry a valid resolution (got %q)", c.Resolution)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Conflict) SetDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
}

// MergePayload carries the caller-supplied merged values for a Merge
// resolution. Nil fields are left untouched on both sides. Start maps to
// the kind's primary date (start_time, due_date, or exam_date); End is
// only meaningful for schedule blocks and exam durations.
type MergePayload struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// Empty reports whether the payload carries no values at all.
func (p *MergePayload) Empty() bool {
	if p == nil {
		return true
	}
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Start == nil && p.End == nil
}
