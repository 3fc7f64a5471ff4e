package schema

import (
	"testing"
	"time"
)

func TestScheduleBlock_Validate(t *testing.T) {
	now := time.Now().UTC()
	valid := ScheduleBlock{
		ID:        "blk-1",
		UserID:    "user-1",
		Title:     "Linear Algebra",
		StartTime: now,
		EndTime:   now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tests := []struct {
		name    string
		mutate  func(b *ScheduleBlock)
		wantErr bool
	}{
		{name: "valid block", mutate: func(b *ScheduleBlock) {}, wantErr: false},
		{name: "missing id", mutate: func(b *ScheduleBlock) { b.ID = "" }, wantErr: true},
		{name: "missing user_id", mutate: func(b *ScheduleBlock) { b.UserID = "" }, wantErr: true},
		{name: "missing title", mutate: func(b *ScheduleBlock) { b.Title = "" }, wantErr: true},
		{name: "missing start", mutate: func(b *ScheduleBlock) { b.StartTime = time.Time{} }, wantErr: true},
		{name: "missing end", mutate: func(b *ScheduleBlock) { b.EndTime = time.Time{} }, wantErr: true},
		{name: "end before start", mutate: func(b *ScheduleBlock) { b.EndTime = b.StartTime.Add(-time.Minute) }, wantErr: true},
		{name: "missing updated_at", mutate: func(b *ScheduleBlock) { b.UpdatedAt = time.Time{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate() error = nil, wantErr %v", tt.wantErr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestAssignment_Validate(t *testing.T) {
	now := time.Now().UTC()
	valid := Assignment{
		ID:        "asg-1",
		UserID:    "user-1",
		Title:     "Problem set 3",
		DueDate:   now.Add(48 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tests := []struct {
		name    string
		mutate  func(a *Assignment)
		wantErr bool
	}{
		{name: "valid assignment", mutate: func(a *Assignment) {}, wantErr: false},
		{name: "missing id", mutate: func(a *Assignment) { a.ID = "" }, wantErr: true},
		{name: "missing title", mutate: func(a *Assignment) { a.Title = "" }, wantErr: true},
		{name: "missing due_date", mutate: func(a *Assignment) { a.DueDate = time.Time{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate() error = nil, wantErr %v", tt.wantErr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestExam_Validate(t *testing.T) {
	now := time.Now().UTC()
	valid := Exam{
		ID:              "exm-1",
		UserID:          "user-1",
		Title:           "Midterm",
		ExamDate:        now.Add(7 * 24 * time.Hour),
		DurationMinutes: 90,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tests := []struct {
		name    string
		mutate  func(e *Exam)
		wantErr bool
	}{
		{name: "valid exam", mutate: func(e *Exam) {}, wantErr: false},
		{name: "missing exam_date", mutate: func(e *Exam) { e.ExamDate = time.Time{} }, wantErr: true},
		{name: "zero duration", mutate: func(e *Exam) { e.DurationMinutes = 0 }, wantErr: true},
		{name: "negative duration", mutate: func(e *Exam) { e.DurationMinutes = -30 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("Validate() error = nil, wantErr %v", tt.wantErr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestExam_SetDefaults(t *testing.T) {
	e := Exam{UserID: "user-1", Title: "Final"}
	e.SetDefaults()

	if e.ID == "" {
		t.Error("SetDefaults() did not assign an id")
	}
	if e.DurationMinutes != 60 {
		t.Errorf("SetDefaults() duration = %d, want 60", e.DurationMinutes)
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Error("SetDefaults() did not stamp timestamps")
	}
}

func TestParseEntityKind(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityKind
		wantErr bool
	}{
		{in: "schedule_block", want: KindScheduleBlock},
		{in: "assignment", want: KindAssignment},
		{in: "exam", want: KindExam},
		{in: "course", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityKind(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseEntityKind(%q) error = nil, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntityKind(%q) unexpected error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEntityKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
