package capacity

import (
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
)

// OverrideKind - какой лимит превышен.
type OverrideKind string

const (
	OverrideTaskLimit    OverrideKind = "task_limit"
	OverrideFocusLimit   OverrideKind = "focus_limit"
	OverrideSessionLimit OverrideKind = "session_limit"
)

// IsValid проверяет тип превышения.
func (k OverrideKind) IsValid() bool {
	switch k {
	case OverrideTaskLimit, OverrideFocusLimit, OverrideSessionLimit:
		return true
	default:
		return false
	}
}

// LimitFor возвращает текущий лимит, который превышается.
func (k OverrideKind) LimitFor(c Capacity) int {
	switch k {
	case OverrideFocusLimit:
		return c.MaxDailyFocusMinutes
	case OverrideSessionLimit:
		return c.RecommendedSessionsPerDay
	default:
		return c.MaxTasksPerDay
	}
}

// Override - запись аудита о сознательном превышении лимита.
// Только добавляется, никогда не меняется.
type Override struct {
	ID             string
	UserID         string
	Kind           OverrideKind
	OriginalLimit  int
	AttemptedValue int
	Reason         *string
	CreatedAt      time.Time
}

// ToRow готовит строку для capacity_overrides.
func (o Override) ToRow() backend.Row {
	row := backend.Row{
		"id":              o.ID,
		"user_id":         o.UserID,
		"override_type":   string(o.Kind),
		"original_limit":  o.OriginalLimit,
		"attempted_value": o.AttemptedValue,
		"created_at":      o.CreatedAt,
	}
	if o.Reason != nil {
		row["reason"] = *o.Reason
	}
	return row
}

// OverrideFromRow разбирает строку capacity_overrides.
func OverrideFromRow(r backend.Row) Override {
	created, _ := r.Time("created_at")
	return Override{
		ID:             r.String("id"),
		UserID:         r.String("user_id"),
		Kind:           OverrideKind(r.String("override_type")),
		OriginalLimit:  r.Int("original_limit"),
		AttemptedValue: r.Int("attempted_value"),
		Reason:         r.StringPtr("reason"),
		CreatedAt:      created,
	}
}

// LimitOption - что можно предложить студенту, когда лимит исчерпан.
type LimitOption string

const (
	OptionReschedule LimitOption = "reschedule"
	OptionReplace    LimitOption = "replace"
	OptionOverride   LimitOption = "override"
)

// LimitOptions - варианты в порядке показа.
func LimitOptions() []LimitOption {
	return []LimitOption{OptionReschedule, OptionReplace, OptionOverride}
}
