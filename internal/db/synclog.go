package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Sync run statuses.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial" // some items skipped or failed
	RunStatusAborted = "aborted" // store failure stopped the batch
)

// SyncCursor is the per-user, per-calendar incremental poll position.
// UpdatedMin is the lower bound passed to the next remote list call.
type SyncCursor struct {
	UserID       string
	CalendarID   string
	UpdatedMin   time.Time
	LastFullSync time.Time
}

// SyncRun is one row of the sync audit log.
type SyncRun struct {
	ID           int64
	UserID       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Created      int
	UpdatedLocal int
	Deferred     int
	Conflicts    int
	NoOps        int
	Skipped      int
	Failed       int
	Pushed       int
	Status       string
	Error        string
}

// GetSyncCursor returns the saved poll position, or ErrNotFound before the
// first successful sync.
func (db *DB) GetSyncCursor(ctx context.Context, userID, calendarID string) (*SyncCursor, error) {
	query := `
	SELECT user_id, calendar_id, updated_min, last_full_sync
	FROM sync_cursors
	WHERE user_id = ? AND calendar_id = ?
	`

	var c SyncCursor
	var updatedMin, lastFullSync sql.NullString
	err := db.conn.QueryRowContext(ctx, query, userID, calendarID).Scan(
		&c.UserID, &c.CalendarID, &updatedMin, &lastFullSync,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync cursor for %s/%s: %w", userID, calendarID, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get sync cursor", err)
	}

	c.UpdatedMin = parseTime(updatedMin)
	c.LastFullSync = parseTime(lastFullSync)
	return &c, nil
}

// SaveSyncCursor upserts the poll position.
func (db *DB) SaveSyncCursor(ctx context.Context, c *SyncCursor) error {
	query := `
	INSERT INTO sync_cursors (user_id, calendar_id, updated_min, last_full_sync)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id, calendar_id) DO UPDATE SET
		updated_min = excluded.updated_min,
		last_full_sync = excluded.last_full_sync
	`

	_, err := db.conn.ExecContext(ctx, query,
		c.UserID, c.CalendarID, formatTime(c.UpdatedMin), formatTime(c.LastFullSync),
	)
	if err != nil {
		return storeErr("save sync cursor", err)
	}
	return nil
}

// StartSyncRun opens a sync-log row and returns its id for FinishSyncRun.
func (db *DB) StartSyncRun(ctx context.Context, userID string, startedAt time.Time) (int64, error) {
	query := `
	INSERT INTO sync_runs (user_id, started_at, status)
	VALUES (?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query, userID, formatTime(startedAt), RunStatusPartial)
	if err != nil {
		return 0, storeErr("start sync run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("start sync run", err)
	}
	return id, nil
}

// FinishSyncRun closes a sync-log row with final counters and status.
func (db *DB) FinishSyncRun(ctx context.Context, run *SyncRun) error {
	query := `
	UPDATE sync_runs SET
		finished_at = ?, created = ?, updated_local = ?, deferred = ?,
		conflicts = ?, noops = ?, skipped = ?, failed = ?, pushed = ?,
		status = ?, error = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		formatTime(run.FinishedAt), run.Created, run.UpdatedLocal, run.Deferred,
		run.Conflicts, run.NoOps, run.Skipped, run.Failed, run.Pushed,
		run.Status, run.Error, run.ID,
	)
	if err != nil {
		return storeErr("finish sync run", err)
	}
	return rowsAffectedOrNotFound(res, "finish sync run", fmt.Sprintf("%d", run.ID))
}

// ListSyncRuns returns the most recent runs, newest first. Empty userID
// lists runs for every user.
func (db *DB) ListSyncRuns(ctx context.Context, userID string, limit int) ([]*SyncRun, error) {
	query := `
	SELECT id, user_id, started_at, finished_at, created, updated_local,
	       deferred, conflicts, noops, skipped, failed, pushed, status, error
	FROM sync_runs
	`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list sync runs", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		var startedAt, finishedAt sql.NullString
		var errText sql.NullString

		err := rows.Scan(
			&r.ID, &r.UserID, &startedAt, &finishedAt, &r.Created, &r.UpdatedLocal,
			&r.Deferred, &r.Conflicts, &r.NoOps, &r.Skipped, &r.Failed, &r.Pushed,
			&r.Status, &errText,
		)
		if err != nil {
			return nil, storeErr("list sync runs", err)
		}

		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		r.Error = errText.String
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list sync runs", err)
	}
	return runs, nil
}
