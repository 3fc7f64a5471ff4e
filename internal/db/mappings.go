package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

// UpsertMapping inserts a mapping or, when the id already exists, refreshes
// its sync state. The UNIQUE constraints on (entity_type, entity_id) and
// (user_id, google_event_id) reject a second live mapping for either side;
// that violation surfaces as a StoreError, which is the store enforcing the
// one-live-mapping invariant.
func (db *DB) UpsertMapping(ctx context.Context, m *schema.Mapping) error {
	if err := m.Validate(); err != nil {
		return storeErr("upsert mapping", fmt.Errorf("invalid mapping: %w", err))
	}

	query := `
	INSERT INTO calendar_mappings (
		id, user_id, entity_type, entity_id, google_event_id, calendar_id,
		local_event_updated, google_event_updated, last_synced_at,
		content_hash, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		local_event_updated = excluded.local_event_updated,
		google_event_updated = excluded.google_event_updated,
		last_synced_at = excluded.last_synced_at,
		content_hash = excluded.content_hash
	`

	_, err := db.conn.ExecContext(ctx, query,
		m.ID, m.UserID, string(m.EntityType), m.EntityID, m.GoogleEventID, m.CalendarID,
		formatTime(m.LocalEventUpdated), formatTime(m.GoogleEventUpdated),
		formatTime(m.LastSyncedAt), m.ContentHash, formatTime(m.CreatedAt),
	)
	if err != nil {
		return storeErr("upsert mapping", err)
	}
	return nil
}

// GetMappingByEvent finds the mapping for a remote event under a user.
func (db *DB) GetMappingByEvent(ctx context.Context, userID, googleEventID string) (*schema.Mapping, error) {
	query := mappingSelect + ` WHERE user_id = ? AND google_event_id = ?`
	m, err := scanMapping(db.conn.QueryRowContext(ctx, query, userID, googleEventID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping for event %s: %w", googleEventID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get mapping by event", err)
	}
	return m, nil
}

// GetMappingByEntity finds the mapping for a local entity.
func (db *DB) GetMappingByEntity(ctx context.Context, entityType schema.EntityKind, entityID string) (*schema.Mapping, error) {
	query := mappingSelect + ` WHERE entity_type = ? AND entity_id = ?`
	m, err := scanMapping(db.conn.QueryRowContext(ctx, query, string(entityType), entityID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping for %s %s: %w", entityType, entityID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get mapping by entity", err)
	}
	return m, nil
}

// GetMappingByID retrieves one mapping, or ErrNotFound.
func (db *DB) GetMappingByID(ctx context.Context, id string) (*schema.Mapping, error) {
	query := mappingSelect + ` WHERE id = ?`
	m, err := scanMapping(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get mapping", err)
	}
	return m, nil
}

// DeleteMapping removes a mapping row. Idempotent.
func (db *DB) DeleteMapping(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM calendar_mappings WHERE id = ?`, id); err != nil {
		return storeErr("delete mapping", err)
	}
	return nil
}

// ListMappings returns every mapping owned by a user, oldest first.
func (db *DB) ListMappings(ctx context.Context, userID string) ([]*schema.Mapping, error) {
	query := mappingSelect + ` WHERE user_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list mappings", err)
	}
	defer rows.Close()

	var mappings []*schema.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, storeErr("list mappings", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list mappings", err)
	}
	return mappings, nil
}

// UpdateMappingSyncState advances a mapping's checkpoint bookkeeping in one
// write: last-seen stamps for both sides, the checkpoint itself, and the
// content hash of the last applied remote fields.
func (db *DB) UpdateMappingSyncState(ctx context.Context, id string, localUpdated, googleUpdated, lastSynced time.Time, contentHash string) error {
	query := `
	UPDATE calendar_mappings SET
		local_event_updated = ?,
		google_event_updated = ?,
		last_synced_at = ?,
		content_hash = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		formatTime(localUpdated), formatTime(googleUpdated), formatTime(lastSynced), contentHash, id,
	)
	if err != nil {
		return storeErr("update mapping sync state", err)
	}
	return rowsAffectedOrNotFound(res, "update mapping sync state", id)
}

const mappingSelect = `
	SELECT id, user_id, entity_type, entity_id, google_event_id, calendar_id,
	       local_event_updated, google_event_updated, last_synced_at,
	       content_hash, created_at
	FROM calendar_mappings`

func scanMapping(row scanner) (*schema.Mapping, error) {
	var m schema.Mapping
	var entityType string
	var localUpdated, googleUpdated, lastSynced, contentHash, createdAt sql.NullString

	err := row.Scan(
		&m.ID, &m.UserID, &entityType, &m.EntityID, &m.GoogleEventID, &m.CalendarID,
		&localUpdated, &googleUpdated, &lastSynced, &contentHash, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	m.EntityType = schema.EntityKind(entityType)
	m.LocalEventUpdated = parseTime(localUpdated)
	m.GoogleEventUpdated = parseTime(googleUpdated)
	m.LastSyncedAt = parseTime(lastSynced)
	m.ContentHash = contentHash.String
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}
