package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aqademiq/aqsync/internal/schema"
)

// InsertScheduleBlock writes a new schedule block row.
func (db *DB) InsertScheduleBlock(ctx context.Context, b *schema.ScheduleBlock) error {
	if err := b.Validate(); err != nil {
		return storeErr("insert schedule block", fmt.Errorf("invalid schedule block: %w", err))
	}

	query := `
	INSERT INTO schedule_blocks (
		id, user_id, title, description, location, course_code,
		start_time, end_time, recurrence, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		b.ID, b.UserID, b.Title, b.Description, b.Location, b.CourseCode,
		formatTime(b.StartTime), formatTime(b.EndTime), b.Recurrence,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return storeErr("insert schedule block", err)
	}
	return nil
}

// UpdateScheduleBlock replaces every mutable field of an existing block.
func (db *DB) UpdateScheduleBlock(ctx context.Context, b *schema.ScheduleBlock) error {
	if err := b.Validate(); err != nil {
		return storeErr("update schedule block", fmt.Errorf("invalid schedule block: %w", err))
	}

	query := `
	UPDATE schedule_blocks SET
		title = ?, description = ?, location = ?, course_code = ?,
		start_time = ?, end_time = ?, recurrence = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		b.Title, b.Description, b.Location, b.CourseCode,
		formatTime(b.StartTime), formatTime(b.EndTime), b.Recurrence,
		formatTime(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return storeErr("update schedule block", err)
	}
	return rowsAffectedOrNotFound(res, "update schedule block", b.ID)
}

// GetScheduleBlockByID retrieves one block, or ErrNotFound.
func (db *DB) GetScheduleBlockByID(ctx context.Context, id string) (*schema.ScheduleBlock, error) {
	query := `
	SELECT id, user_id, title, description, location, course_code,
	       start_time, end_time, recurrence, created_at, updated_at
	FROM schedule_blocks
	WHERE id = ?
	`
	b, err := scanScheduleBlock(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get schedule block", err)
	}
	return b, nil
}

// ListScheduleBlocks returns a user's blocks ordered by start time.
func (db *DB) ListScheduleBlocks(ctx context.Context, userID string) ([]*schema.ScheduleBlock, error) {
	query := `
	SELECT id, user_id, title, description, location, course_code,
	       start_time, end_time, recurrence, created_at, updated_at
	FROM schedule_blocks
	WHERE user_id = ?
	ORDER BY start_time ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list schedule blocks", err)
	}
	defer rows.Close()

	var blocks []*schema.ScheduleBlock
	for rows.Next() {
		b, err := scanScheduleBlock(rows)
		if err != nil {
			return nil, storeErr("list schedule blocks", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list schedule blocks", err)
	}
	return blocks, nil
}

// InsertAssignment writes a new assignment row.
func (db *DB) InsertAssignment(ctx context.Context, a *schema.Assignment) error {
	if err := a.Validate(); err != nil {
		return storeErr("insert assignment", fmt.Errorf("invalid assignment: %w", err))
	}

	query := `
	INSERT INTO assignments (
		id, user_id, title, description, course_code,
		due_date, completed, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		a.ID, a.UserID, a.Title, a.Description, a.CourseCode,
		formatTime(a.DueDate), boolToInt(a.Completed),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return storeErr("insert assignment", err)
	}
	return nil
}

// UpdateAssignment replaces every mutable field of an existing assignment.
func (db *DB) UpdateAssignment(ctx context.Context, a *schema.Assignment) error {
	if err := a.Validate(); err != nil {
		return storeErr("update assignment", fmt.Errorf("invalid assignment: %w", err))
	}

	query := `
	UPDATE assignments SET
		title = ?, description = ?, course_code = ?,
		due_date = ?, completed = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		a.Title, a.Description, a.CourseCode,
		formatTime(a.DueDate), boolToInt(a.Completed), formatTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return storeErr("update assignment", err)
	}
	return rowsAffectedOrNotFound(res, "update assignment", a.ID)
}

// GetAssignmentByID retrieves one assignment, or ErrNotFound.
func (db *DB) GetAssignmentByID(ctx context.Context, id string) (*schema.Assignment, error) {
	query := `
	SELECT id, user_id, title, description, course_code,
	       due_date, completed, created_at, updated_at
	FROM assignments
	WHERE id = ?
	`
	a, err := scanAssignment(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get assignment", err)
	}
	return a, nil
}

// ListAssignments returns a user's assignments ordered by due date.
func (db *DB) ListAssignments(ctx context.Context, userID string) ([]*schema.Assignment, error) {
	query := `
	SELECT id, user_id, title, description, course_code,
	       due_date, completed, created_at, updated_at
	FROM assignments
	WHERE user_id = ?
	ORDER BY due_date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list assignments", err)
	}
	defer rows.Close()

	var assignments []*schema.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storeErr("list assignments", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list assignments", err)
	}
	return assignments, nil
}

// InsertExam writes a new exam row.
func (db *DB) InsertExam(ctx context.Context, e *schema.Exam) error {
	if err := e.Validate(); err != nil {
		return storeErr("insert exam", fmt.Errorf("invalid exam: %w", err))
	}

	query := `
	INSERT INTO exams (
		id, user_id, title, location, notes, course_code,
		exam_date, duration_minutes, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		e.ID, e.UserID, e.Title, e.Location, e.Notes, e.CourseCode,
		formatTime(e.ExamDate), e.DurationMinutes,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return storeErr("insert exam", err)
	}
	return nil
}

// UpdateExam replaces every mutable field of an existing exam.
func (db *DB) UpdateExam(ctx context.Context, e *schema.Exam) error {
	if err := e.Validate(); err != nil {
		return storeErr("update exam", fmt.Errorf("invalid exam: %w", err))
	}

	query := `
	UPDATE exams SET
		title = ?, location = ?, notes = ?, course_code = ?,
		exam_date = ?, duration_minutes = ?, updated_at = ?
	WHERE id = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		e.Title, e.Location, e.Notes, e.CourseCode,
		formatTime(e.ExamDate), e.DurationMinutes, formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return storeErr("update exam", err)
	}
	return rowsAffectedOrNotFound(res, "update exam", e.ID)
}

// GetExamByID retrieves one exam, or ErrNotFound.
func (db *DB) GetExamByID(ctx context.Context, id string) (*schema.Exam, error) {
	query := `
	SELECT id, user_id, title, location, notes, course_code,
	       exam_date, duration_minutes, created_at, updated_at
	FROM exams
	WHERE id = ?
	`
	e, err := scanExam(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exam %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get exam", err)
	}
	return e, nil
}

// ListExams returns a user's exams ordered by exam date.
func (db *DB) ListExams(ctx context.Context, userID string) ([]*schema.Exam, error) {
	query := `
	SELECT id, user_id, title, location, notes, course_code,
	       exam_date, duration_minutes, created_at, updated_at
	FROM exams
	WHERE user_id = ?
	ORDER BY exam_date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list exams", err)
	}
	defer rows.Close()

	var exams []*schema.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, storeErr("list exams", err)
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list exams", err)
	}
	return exams, nil
}

// GetEntity loads any syncable entity by kind and id. Missing rows return
// ErrNotFound regardless of kind.
func (db *DB) GetEntity(ctx context.Context, kind schema.EntityKind, id string) (schema.Entity, error) {
	switch kind {
	case schema.KindScheduleBlock:
		return db.GetScheduleBlockByID(ctx, id)
	case schema.KindAssignment:
		return db.GetAssignmentByID(ctx, id)
	case schema.KindExam:
		return db.GetExamByID(ctx, id)
	}
	return nil, storeErr("get entity", fmt.Errorf("unknown entity kind %q", kind))
}

// InsertEntity writes any syncable entity.
func (db *DB) InsertEntity(ctx context.Context, e schema.Entity) error {
	switch v := e.(type) {
	case *schema.ScheduleBlock:
		return db.InsertScheduleBlock(ctx, v)
	case *schema.Assignment:
		return db.InsertAssignment(ctx, v)
	case *schema.Exam:
		return db.InsertExam(ctx, v)
	}
	return storeErr("insert entity", fmt.Errorf("unknown entity type %T", e))
}

// UpdateEntity updates any syncable entity.
func (db *DB) UpdateEntity(ctx context.Context, e schema.Entity) error {
	switch v := e.(type) {
	case *schema.ScheduleBlock:
		return db.UpdateScheduleBlock(ctx, v)
	case *schema.Assignment:
		return db.UpdateAssignment(ctx, v)
	case *schema.Exam:
		return db.UpdateExam(ctx, v)
	}
	return storeErr("update entity", fmt.Errorf("unknown entity type %T", e))
}

// DeleteEntity removes any syncable entity row. Idempotent: deleting a
// missing row is not an error.
func (db *DB) DeleteEntity(ctx context.Context, kind schema.EntityKind, id string) error {
	var table string
	switch kind {
	case schema.KindScheduleBlock:
		table = "schedule_blocks"
	case schema.KindAssignment:
		table = "assignments"
	case schema.KindExam:
		table = "exams"
	default:
		return storeErr("delete entity", fmt.Errorf("unknown entity kind %q", kind))
	}

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return storeErr("delete entity", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduleBlock(row scanner) (*schema.ScheduleBlock, error) {
	var b schema.ScheduleBlock
	var description, location, courseCode, recurrence sql.NullString
	var startTime, endTime, createdAt, updatedAt sql.NullString

	err := row.Scan(
		&b.ID, &b.UserID, &b.Title, &description, &location, &courseCode,
		&startTime, &endTime, &recurrence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Description = description.String
	b.Location = location.String
	b.CourseCode = courseCode.String
	b.Recurrence = recurrence.String
	b.StartTime = parseTime(startTime)
	b.EndTime = parseTime(endTime)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func scanAssignment(row scanner) (*schema.Assignment, error) {
	var a schema.Assignment
	var description, courseCode sql.NullString
	var dueDate, createdAt, updatedAt sql.NullString
	var completed int

	err := row.Scan(
		&a.ID, &a.UserID, &a.Title, &description, &courseCode,
		&dueDate, &completed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	a.CourseCode = courseCode.String
	a.DueDate = parseTime(dueDate)
	a.Completed = completed != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func scanExam(row scanner) (*schema.Exam, error) {
	var e schema.Exam
	var location, notes, courseCode sql.NullString
	var examDate, createdAt, updatedAt sql.NullString

	err := row.Scan(
		&e.ID, &e.UserID, &e.Title, &location, &notes, &courseCode,
		&examDate, &e.DurationMinutes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Location = location.String
	e.Notes = notes.String
	e.CourseCode = courseCode.String
	e.ExamDate = parseTime(examDate)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rowsAffectedOrNotFound(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}
