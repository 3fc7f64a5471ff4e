// Package migrate imports planner data from JSONL exports into the entity
// store. Each line is one entity with a "kind" discriminator, so mixed
// dumps (blocks, assignments, exams) load from a single file.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aqademiq/aqsync/internal/db"
	"github.com/aqademiq/aqsync/internal/schema"
)

// Line is the JSONL record shape. Kind selects which payload fields apply.
type Line struct {
	Kind   schema.EntityKind `json:"kind"`
	UserID string            `json:"user_id"`

	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	CourseCode  string `json:"course_code,omitempty"`

	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Completed       bool       `json:"completed,omitempty"`
	ExamDate        *time.Time `json:"exam_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// MigrateOptions contains configuration for the migration.
type MigrateOptions struct {
	FromJSONL string // input JSONL file path
	DryRun    bool   // parse and validate without writing
	Backup    bool   // copy the input aside before importing
}

// MigrateResult contains statistics about the migration.
type MigrateResult struct {
	Blocks        int
	Assignments   int
	Exams         int
	BackupCreated string
	Errors        []string
}

// Total is the number of entities written (or validated, in dry-run mode).
func (r *MigrateResult) Total() int {
	return r.Blocks + r.Assignments + r.Exams
}

// Migrate reads the JSONL file and inserts each record into the store.
// Malformed lines are collected in Errors; the import continues past them.
func Migrate(ctx context.Context, store *db.DB, opts MigrateOptions) (*MigrateResult, error) {
	result := &MigrateResult{}

	if _, err := os.Stat(opts.FromJSONL); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := opts.FromJSONL + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(opts.FromJSONL)
		if err != nil {
			return nil, fmt.Errorf("failed to read input for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	file, err := os.Open(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	lineNum := 0
	for {
		var line Line
		if err := decoder.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		ent, err := line.toEntity()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		if !opts.DryRun {
			if err := store.InsertEntity(ctx, ent); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: insert failed: %v", lineNum, err))
				continue
			}
		}
		switch line.Kind {
		case schema.KindScheduleBlock:
			result.Blocks++
		case schema.KindAssignment:
			result.Assignments++
		case schema.KindExam:
			result.Exams++
		}
	}
	return result, nil
}

func (l *Line) toEntity() (schema.Entity, error) {
	if l.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	switch l.Kind {
	case schema.KindScheduleBlock:
		if l.StartTime == nil || l.EndTime == nil {
			return nil, fmt.Errorf("schedule_block requires start_time and end_time")
		}
		b := &schema.ScheduleBlock{
			ID:          l.ID,
			UserID:      l.UserID,
			Title:       l.Title,
			Description: l.Description,
			Location:    l.Location,
			CourseCode:  l.CourseCode,
			StartTime:   *l.StartTime,
			EndTime:     *l.EndTime,
		}
		b.SetDefaults()
		return b, b.Validate()
	case schema.KindAssignment:
		if l.DueDate == nil {
			return nil, fmt.Errorf("assignment requires due_date")
		}
		a := &schema.Assignment{
			ID:          l.ID,
			UserID:      l.UserID,
			Title:       l.Title,
			Description: l.Description,
			CourseCode:  l.CourseCode,
			DueDate:     *l.DueDate,
			Completed:   l.Completed,
		}
		a.SetDefaults()
		return a, a.Validate()
	case schema.KindExam:
		if l.ExamDate == nil {
			return nil, fmt.Errorf("exam requires exam_date")
		}
		e := &schema.Exam{
			ID:              l.ID,
			UserID:          l.UserID,
			Title:           l.Title,
			Location:        l.Location,
			Notes:           l.Notes,
			CourseCode:      l.CourseCode,
			ExamDate:        *l.ExamDate,
			DurationMinutes: l.DurationMinutes,
		}
		e.SetDefaults()
		return e, e.Validate()
	default:
		return nil, fmt.Errorf("unknown kind %q", l.Kind)
	}
}
