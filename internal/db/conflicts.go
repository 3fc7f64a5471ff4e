package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aqademiq/aqsync/internal/schema"
)

// UpsertOpenConflict records a detected divergence. If the mapping already
// has an open conflict, its snapshots and detection time are refreshed
// instead of inserting a duplicate (re-polling the same divergence must not
// grow the table). Resolved rows are untouched. Returns the stored row.
func (db *DB) UpsertOpenConflict(ctx context.Context, c *schema.Conflict) (*schema.Conflict, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, storeErr("upsert conflict", fmt.Errorf("invalid conflict: %w", err))
	}

	query := `
	INSERT INTO sync_conflicts (
		id, mapping_id, user_id, entity_type, entity_id,
		local_snapshot, remote_snapshot, resolved, resolution,
		detected_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, NULL)
	ON CONFLICT(mapping_id) WHERE resolved = 0 DO UPDATE SET
		local_snapshot = excluded.local_snapshot,
		remote_snapshot = excluded.remote_snapshot,
		detected_at = excluded.detected_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		c.ID, c.MappingID, c.UserID, string(c.EntityType), c.EntityID,
		string(c.LocalSnapshot), string(c.RemoteSnapshot), formatTime(c.DetectedAt),
	)
	if err != nil {
		return nil, storeErr("upsert conflict", err)
	}

	return db.GetOpenConflictByMapping(ctx, c.MappingID)
}

// GetOpenConflictByMapping returns the single open conflict for a mapping,
// or ErrNotFound when the mapping has none pending.
func (db *DB) GetOpenConflictByMapping(ctx context.Context, mappingID string) (*schema.Conflict, error) {
	query := conflictSelect + ` WHERE mapping_id = ? AND resolved = 0`
	c, err := scanConflict(db.conn.QueryRowContext(ctx, query, mappingID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("open conflict for mapping %s: %w", mappingID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get open conflict", err)
	}
	return c, nil
}

// GetConflictByID retrieves one conflict, or ErrNotFound.
func (db *DB) GetConflictByID(ctx context.Context, id string) (*schema.Conflict, error) {
	query := conflictSelect + ` WHERE id = ?`
	c, err := scanConflict(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conflict %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get conflict", err)
	}
	return c, nil
}

// MarkConflictResolved closes a conflict with the strategy that was applied.
// The row is kept for audit; only the resolution fields change.
func (db *DB) MarkConflictResolved(ctx context.Context, id string, strategy schema.ResolutionStrategy) error {
	if !strategy.Valid() {
		return storeErr("mark conflict resolved", fmt.Errorf("invalid strategy %q", strategy))
	}

	query := `
	UPDATE sync_conflicts SET
		resolved = 1,
		resolution = ?,
		resolved_at = ?
	WHERE id = ? AND resolved = 0
	`

	res, err := db.conn.ExecContext(ctx, query, string(strategy), formatTime(time.Now().UTC()), id)
	if err != nil {
		return storeErr("mark conflict resolved", err)
	}
	return rowsAffectedOrNotFound(res, "mark conflict resolved", id)
}

// ConflictFilter configures ListConflicts.
type ConflictFilter struct {
	// UserID filters to one user (empty = all users)
	UserID string
	// IncludeResolved includes closed conflicts in the result
	IncludeResolved bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListConflicts retrieves conflicts matching the filter, newest first.
func (db *DB) ListConflicts(ctx context.Context, filter ConflictFilter) ([]*schema.Conflict, error) {
	query := conflictSelect
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.IncludeResolved {
		conditions = append(conditions, "resolved = 0")
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY detected_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list conflicts", err)
	}
	defer rows.Close()

	var conflicts []*schema.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, storeErr("list conflicts", err)
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conflicts", err)
	}
	return conflicts, nil
}

// CountOpenConflicts returns the number of pending conflicts, optionally
// scoped to one user.
func (db *DB) CountOpenConflicts(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM sync_conflicts WHERE resolved = 0`
	var args []interface{}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, storeErr("count open conflicts", err)
	}
	return count, nil
}

const conflictSelect = `
	SELECT id, mapping_id, user_id, entity_type, entity_id,
	       local_snapshot, remote_snapshot, resolved, resolution,
	       detected_at, resolved_at
	FROM sync_conflicts`

func scanConflict(row scanner) (*schema.Conflict, error) {
	var c schema.Conflict
	var entityType, localSnap, remoteSnap string
	var resolved int
	var resolution sql.NullString
	var detectedAt, resolvedAt sql.NullString

	err := row.Scan(
		&c.ID, &c.MappingID, &c.UserID, &entityType, &c.EntityID,
		&localSnap, &remoteSnap, &resolved, &resolution,
		&detectedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	c.EntityType = schema.EntityKind(entityType)
	c.LocalSnapshot = []byte(localSnap)
	c.RemoteSnapshot = []byte(remoteSnap)
	c.Resolved = resolved != 0
	c.Resolution = schema.ResolutionStrategy(resolution.String)
	c.DetectedAt = parseTime(detectedAt)
	c.ResolvedAt = nullStringToTime(resolvedAt)
	return &c, nil
}
