// Package schema defines the domain types shared across the aqsync core.
//
// # Overview
//
// This package provides the local entity kinds eligible for calendar sync
// (schedule blocks, assignments, exams), the Mapping row that links one
// local entity to one remote calendar event, and the Conflict record
// produced when both sides of a mapping change independently.
//
// # Entities
//
// All entities carry a UUID identifier, an owning user id, a title, and an
// updated_at timestamp that is bumped whenever any field changes. The
// per-kind payload differs:
//
//   - schedule_block - start/end times, optional location and recurrence
//   - assignment    - due date and completion flag
//   - exam          - exam date, duration in minutes, optional notes
//
// # Mappings
//
// A Mapping links exactly one entity to exactly one remote event and keeps
// the last-seen update timestamps for both sides plus last_synced_at, the
// checkpoint of the last successful reconciliation. The store enforces the
// uniqueness invariants (one live mapping per entity, one per remote event
// id); this package only defines the row shape.
//
// # Conflicts
//
// A Conflict captures full JSON snapshots of both sides at detection time.
// Conflicts are resolved with one of the ResolutionStrategy constants and
// are never deleted, only marked resolved, so the audit trail survives.
//
// # Design Principles
//
//   - Flat structs with snake_case JSON tags (snapshots round-trip cleanly)
//   - Validation by hand, no struct-tag validators at this layer
//   - Timestamps are always UTC
package schema
