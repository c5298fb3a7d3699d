// Package task holds the task model, ranked suggestions, and overdue task
// wrappers used by the daily planning queries.
package task

import (
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// Priority is the student-assigned importance of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task is a user-owned work item. DueDate is a civil date (see timeutil).
type Task struct {
	ID          string
	UserID      string
	SubjectID   string
	TopicID     string
	Title       string
	DueDate     *time.Time
	Priority    Priority
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// IsPending reports whether the task still needs doing.
func (t Task) IsPending() bool {
	return !t.Completed
}

// IsOverdue reports whether the task is pending and due strictly before today.
func (t Task) IsOverdue(today time.Time) bool {
	return t.IsPending() && t.DueDate != nil && t.DueDate.Before(today)
}

// Validate checks the fields a new task needs.
func (t Task) Validate() error {
	var fields []shared.FieldError
	if t.UserID == "" {
		fields = append(fields, shared.FieldError{Field: "user_id", Message: "user is required"})
	}
	if t.Title == "" {
		fields = append(fields, shared.FieldError{Field: "title", Message: "title is required"})
	}
	if t.Priority != "" && !t.Priority.IsValid() {
		fields = append(fields, shared.FieldError{Field: "priority", Message: "priority must be low, medium or high"})
	}
	if len(fields) > 0 {
		return shared.ValidationError("task.Validate", fields...)
	}
	return nil
}

// ToRow builds an insert row for the tasks table.
func (t Task) ToRow() backend.Row {
	row := backend.Row{
		"id":         t.ID,
		"user_id":    t.UserID,
		"title":      t.Title,
		"priority":   string(t.Priority),
		"completed":  t.Completed,
		"created_at": t.CreatedAt,
	}
	if t.SubjectID != "" {
		row["subject_id"] = t.SubjectID
	}
	if t.TopicID != "" {
		row["topic_id"] = t.TopicID
	}
	if t.DueDate != nil {
		row["due_date"] = timeutil.FormatDateStr(*t.DueDate)
	}
	if t.CompletedAt != nil {
		row["completed_at"] = *t.CompletedAt
	}
	return row
}

// FromRow decodes a tasks row.
func FromRow(r backend.Row) Task {
	created, _ := r.Time("created_at")
	t := Task{
		ID:          r.String("id"),
		UserID:      r.String("user_id"),
		SubjectID:   r.String("subject_id"),
		TopicID:     r.String("topic_id"),
		Title:       r.String("title"),
		Priority:    Priority(r.String("priority")),
		Completed:   r.Bool("completed"),
		CompletedAt: r.TimePtr("completed_at"),
		CreatedAt:   created,
	}
	if d := r.TimePtr("due_date"); d != nil {
		civil := timeutil.Date(d.Year(), d.Month(), d.Day())
		t.DueDate = &civil
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return t
}

// FromRows decodes many rows.
func FromRows(rows []backend.Row) []Task {
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRow(r))
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SUGGESTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Reason says which source produced a suggestion.
type Reason string

const (
	ReasonExamPrep     Reason = "exam_prep"
	ReasonOverdue      Reason = "overdue"
	ReasonHighPriority Reason = "high_priority"
	ReasonUpcoming     Reason = "upcoming"
)

// Score constants for the ranking sources.
const (
	ExamBaseScore      = 100
	OverdueScore       = 85
	HighPriorityScore  = 80
	UpcomingBaseScore  = 70
	UpcomingMaxPenalty = 30
	ExamWindowDays     = 7
)

// Suggestion is a ranked, ephemeral wrapper around a pending task.
type Suggestion struct {
	Task     Task
	Reason   Reason
	Priority int
}

// ExamScore is the score of a task linked to an exam daysAway days out.
func ExamScore(daysAway int) int {
	return ExamBaseScore - daysAway
}

// UpcomingScore is the score of a task due daysUntilDue days from today.
func UpcomingScore(daysUntilDue int) int {
	if daysUntilDue < 0 {
		daysUntilDue = 0
	}
	return UpcomingBaseScore - min(daysUntilDue, UpcomingMaxPenalty)
}

// InExamWindow reports whether an exam daysAway days out gets the boost.
func InExamWindow(daysAway int) bool {
	return daysAway >= 0 && daysAway <= ExamWindowDays
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSED TASKS
// ══════════════════════════════════════════════════════════════════════════════

// MissedTask is an overdue task with its lateness in whole days.
type MissedTask struct {
	Task       Task
	DaysMissed int
}

// NewMissedTask computes DaysMissed = floor((now - due) / 24h), where due is
// local midnight of the due date in cal.
func NewMissedTask(t Task, now time.Time, cal timeutil.Calendar) MissedTask {
	days := 0
	if t.DueDate != nil {
		days = timeutil.WholeDaysSince(cal.StartOfDate(*t.DueDate), now)
	}
	return MissedTask{Task: t, DaysMissed: days}
}

// SkipReason explains why a missed task was dropped.
type SkipReason string

const (
	SkipTooDifficult SkipReason = "too_difficult"
	SkipNoTime       SkipReason = "no_time"
	SkipLowPriority  SkipReason = "low_priority"
	SkipRescheduled  SkipReason = "rescheduled"
)

// IsValid reports whether r is a known skip reason.
func (r SkipReason) IsValid() bool {
	switch r {
	case SkipTooDifficult, SkipNoTime, SkipLowPriority, SkipRescheduled:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM MODE
// ══════════════════════════════════════════════════════════════════════════════

// ExamMode is an active exam with linked tasks.
type ExamMode struct {
	ID       string
	UserID   string
	Name     string
	ExamDate time.Time
	Active   bool
}

// ExamModeFromRow decodes an exam_modes row.
func ExamModeFromRow(r backend.Row) ExamMode {
	d, _ := r.Time("exam_date")
	return ExamMode{
		ID:       r.String("id"),
		UserID:   r.String("user_id"),
		Name:     r.String("name"),
		ExamDate: timeutil.Date(d.Year(), d.Month(), d.Day()),
		Active:   r.Bool("is_active"),
	}
}

// DaysAway returns whole calendar days from today to the exam.
func (e ExamMode) DaysAway(today time.Time) int {
	return timeutil.DaysBetween(today, e.ExamDate)
}
