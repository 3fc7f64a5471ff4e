package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies which local table an entity (and its mapping)
// belongs to. Stored as text in mapping and conflict rows.
type EntityKind string

const (
	KindScheduleBlock EntityKind = "schedule_block"
	KindAssignment    EntityKind = "assignment"
	KindExam          EntityKind = "exam"
)

// Valid reports whether the kind is one of the three syncable kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindScheduleBlock, KindAssignment, KindExam:
		return true
	}
	return false
}

// ParseEntityKind converts free-form input (CLI flags, API params) into an
// EntityKind, rejecting anything that is not a known kind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q (want schedule_block, assignment, or exam)", s)
	}
	return k, nil
}

// Entity is the read surface the change detector needs from any local
// entity, independent of kind. All three concrete types implement it.
type Entity interface {
	Kind() EntityKind
	EntityID() string
	Owner() string
	LastUpdated() time.Time
}

// ScheduleBlock is a recurring or one-off block on the student's timetable
// (a lecture, lab, or study session).
type ScheduleBlock struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	CourseCode  string `json:"course_code,omitempty"`

	// ===== Scheduling =====
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Recurrence string    `json:"recurrence,omitempty"` // RRULE string for imported series

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment is a piece of coursework with a due date.
type Assignment struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CourseCode  string `json:"course_code,omitempty"`

	// ===== Scheduling =====
	DueDate   time.Time `json:"due_date"`
	Completed bool      `json:"completed"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exam is a scheduled examination with a fixed duration.
type Exam struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Title      string `json:"title"`
	Location   string `json:"location,omitempty"`
	Notes      string `json:"notes,omitempty"`
	CourseCode string `json:"course_code,omitempty"`

	// ===== Scheduling =====
	ExamDate        time.Time `json:"exam_date"`
	DurationMinutes int       `json:"duration_minutes"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *ScheduleBlock) Kind() EntityKind       { return KindScheduleBlock }
func (b *ScheduleBlock) EntityID() string       { return b.ID }
func (b *ScheduleBlock) Owner() string          { return b.UserID }
func (b *ScheduleBlock) LastUpdated() time.Time { return b.UpdatedAt }

func (a *Assignment) Kind() EntityKind       { return KindAssignment }
func (a *Assignment) EntityID() string       { return a.ID }
func (a *Assignment) Owner() string          { return a.UserID }
func (a *Assignment) LastUpdated() time.Time { return a.UpdatedAt }

func (e *Exam) Kind() EntityKind       { return KindExam }
func (e *Exam) EntityID() string       { return e.ID }
func (e *Exam) Owner() string          { return e.UserID }
func (e *Exam) LastUpdated() time.Time { return e.UpdatedAt }

// Validate checks the ScheduleBlock field values.
func (b *ScheduleBlock) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if b.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(b.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(b.Title))
	}
	if b.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if b.EndTime.IsZero() {
		return fmt.Errorf("end_time is required")
	}
	if b.EndTime.Before(b.StartTime) {
		return fmt.Errorf("end_time must not precede start_time")
	}
	if b.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Validate checks the Assignment field values.
func (a *Assignment) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if a.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(a.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(a.Title))
	}
	if a.DueDate.IsZero() {
		return fmt.Errorf("due_date is required")
	}
	if a.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Validate checks the Exam field values.
func (e *Exam) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(e.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(e.Title))
	}
	if e.ExamDate.IsZero() {
		return fmt.Errorf("exam_date is required")
	}
	if e.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive (got %d)", e.DurationMinutes)
	}
	if e.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (b *ScheduleBlock) SetDefaults() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
}

// SetDefaults applies default values for optional fields.
func (a *Assignment) SetDefaults() {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
}

// SetDefaults applies default values for optional fields.
func (e *Exam) SetDefaults() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.DurationMinutes == 0 {
		e.DurationMinutes = 60
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
}
