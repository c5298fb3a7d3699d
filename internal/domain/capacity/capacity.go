// Package capacity содержит дневные лимиты студента: вывод из персоны и
// ответов, ручное редактирование в допустимых границах, снимок использования
// и аудит превышений.
package capacity

import (
	"fmt"
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANGES
// ══════════════════════════════════════════════════════════════════════════════

// Range - допустимый отрезок [Min, Max] для поля.
type Range struct {
	Min int
	Max int
}

// Clamp прижимает v к отрезку.
func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains проверяет, что v внутри отрезка.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Глобальные границы полей.
var (
	TasksRange        = Range{Min: 1, Max: 10}
	DefaultFocusRange = Range{Min: 10, Max: 90}
	MinFocusRange     = Range{Min: 5, Max: 45}
	MaxFocusRange     = Range{Min: 15, Max: 120}
	BreakRange        = Range{Min: 3, Max: 30}
	DailyFocusRange   = Range{Min: 30, Max: 480}
	SessionsRange     = Range{Min: 1, Max: 12}
)

// ══════════════════════════════════════════════════════════════════════════════
// CAPACITY
// ══════════════════════════════════════════════════════════════════════════════

// Capacity - дневные лимиты студента.
type Capacity struct {
	UserID                    string
	MaxTasksPerDay            int
	DefaultFocusMinutes       int
	MinFocusMinutes           int
	MaxFocusMinutes           int
	DefaultBreakMinutes       int
	MaxDailyFocusMinutes      int
	RecommendedSessionsPerDay int
	Persona                   persona.Persona
	UpdatedAt                 time.Time
}

// Clamped возвращает копию, где каждое поле внутри своих границ.
func (c Capacity) Clamped() Capacity {
	c.MaxTasksPerDay = TasksRange.Clamp(c.MaxTasksPerDay)
	c.DefaultFocusMinutes = DefaultFocusRange.Clamp(c.DefaultFocusMinutes)
	c.MinFocusMinutes = MinFocusRange.Clamp(c.MinFocusMinutes)
	c.MaxFocusMinutes = MaxFocusRange.Clamp(c.MaxFocusMinutes)
	c.DefaultBreakMinutes = BreakRange.Clamp(c.DefaultBreakMinutes)
	c.MaxDailyFocusMinutes = DailyFocusRange.Clamp(c.MaxDailyFocusMinutes)
	c.RecommendedSessionsPerDay = SessionsRange.Clamp(c.RecommendedSessionsPerDay)
	return c
}

// WithinBounds проверяет все границы.
func (c Capacity) WithinBounds() bool {
	return TasksRange.Contains(c.MaxTasksPerDay) &&
		DefaultFocusRange.Contains(c.DefaultFocusMinutes) &&
		MinFocusRange.Contains(c.MinFocusMinutes) &&
		MaxFocusRange.Contains(c.MaxFocusMinutes) &&
		BreakRange.Contains(c.DefaultBreakMinutes) &&
		DailyFocusRange.Contains(c.MaxDailyFocusMinutes) &&
		SessionsRange.Contains(c.RecommendedSessionsPerDay)
}

// CanAddTask сравнивает снимок использования с лимитом задач.
// Результат рекомендательный: запись он не блокирует.
func (c Capacity) CanAddTask(u Usage) bool {
	return u.TaskCount < c.MaxTasksPerDay
}

// RemainingFocusMinutes - сколько минут фокуса осталось на сегодня.
func (c Capacity) RemainingFocusMinutes(u Usage) int {
	left := c.MaxDailyFocusMinutes - u.FocusMinutes
	if left < 0 {
		return 0
	}
	return left
}

// ToRow готовит строку для таблицы capacity.
func (c Capacity) ToRow() backend.Row {
	return backend.Row{
		"user_id":                      c.UserID,
		"max_tasks_per_day":            c.MaxTasksPerDay,
		"default_focus_minutes":        c.DefaultFocusMinutes,
		"min_focus_minutes":            c.MinFocusMinutes,
		"max_focus_minutes":            c.MaxFocusMinutes,
		"default_break_minutes":        c.DefaultBreakMinutes,
		"max_daily_focus_minutes":      c.MaxDailyFocusMinutes,
		"recommended_sessions_per_day": c.RecommendedSessionsPerDay,
		"persona":                      string(c.Persona),
		"updated_at":                   c.UpdatedAt,
	}
}

// FromRow разбирает строку таблицы capacity.
func FromRow(r backend.Row) Capacity {
	p, _ := persona.Parse(r.String("persona"))
	updated, _ := r.Time("updated_at")
	return Capacity{
		UserID:                    r.String("user_id"),
		MaxTasksPerDay:            r.Int("max_tasks_per_day"),
		DefaultFocusMinutes:       r.Int("default_focus_minutes"),
		MinFocusMinutes:           r.Int("min_focus_minutes"),
		MaxFocusMinutes:           r.Int("max_focus_minutes"),
		DefaultBreakMinutes:       r.Int("default_break_minutes"),
		MaxDailyFocusMinutes:      r.Int("max_daily_focus_minutes"),
		RecommendedSessionsPerDay: r.Int("recommended_sessions_per_day"),
		Persona:                   p,
		UpdatedAt:                 updated,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PATCH
// ══════════════════════════════════════════════════════════════════════════════

// Patch - частичное ручное изменение лимитов. nil означает "не менять".
type Patch struct {
	MaxTasksPerDay            *int
	DefaultFocusMinutes       *int
	MinFocusMinutes           *int
	MaxFocusMinutes           *int
	DefaultBreakMinutes       *int
	MaxDailyFocusMinutes      *int
	RecommendedSessionsPerDay *int
}

// IsEmpty возвращает true, если ничего не меняется.
func (p Patch) IsEmpty() bool {
	return p.MaxTasksPerDay == nil && p.DefaultFocusMinutes == nil &&
		p.MinFocusMinutes == nil && p.MaxFocusMinutes == nil &&
		p.DefaultBreakMinutes == nil && p.MaxDailyFocusMinutes == nil &&
		p.RecommendedSessionsPerDay == nil
}

// Apply применяет патч к c. Поле вне границ или нарушение
// min <= default <= max для фокуса дают ошибку валидации; c не меняется.
func (p Patch) Apply(c Capacity) (Capacity, error) {
	var fields []shared.FieldError
	set := func(dst *int, v *int, name string, r Range) {
		if v == nil {
			return
		}
		if !r.Contains(*v) {
			fields = append(fields, shared.FieldError{
				Field:   name,
				Message: fmt.Sprintf("%s must be between %d and %d", name, r.Min, r.Max),
			})
			return
		}
		*dst = *v
	}

	next := c
	set(&next.MaxTasksPerDay, p.MaxTasksPerDay, "max_tasks_per_day", TasksRange)
	set(&next.DefaultFocusMinutes, p.DefaultFocusMinutes, "default_focus_minutes", DefaultFocusRange)
	set(&next.MinFocusMinutes, p.MinFocusMinutes, "min_focus_minutes", MinFocusRange)
	set(&next.MaxFocusMinutes, p.MaxFocusMinutes, "max_focus_minutes", MaxFocusRange)
	set(&next.DefaultBreakMinutes, p.DefaultBreakMinutes, "default_break_minutes", BreakRange)
	set(&next.MaxDailyFocusMinutes, p.MaxDailyFocusMinutes, "max_daily_focus_minutes", DailyFocusRange)
	set(&next.RecommendedSessionsPerDay, p.RecommendedSessionsPerDay, "recommended_sessions_per_day", SessionsRange)

	if len(fields) == 0 && !(next.MinFocusMinutes <= next.DefaultFocusMinutes && next.DefaultFocusMinutes <= next.MaxFocusMinutes) {
		fields = append(fields, shared.FieldError{
			Field:   "default_focus_minutes",
			Message: "focus minutes must satisfy min <= default <= max",
		})
	}

	if len(fields) > 0 {
		return c, shared.ValidationError("capacity.Update", fields...)
	}
	return next, nil
}

// Row возвращает только изменяемые колонки.
func (p Patch) Row() backend.Row {
	row := backend.Row{}
	put := func(col string, v *int) {
		if v != nil {
			row[col] = *v
		}
	}
	put("max_tasks_per_day", p.MaxTasksPerDay)
	put("default_focus_minutes", p.DefaultFocusMinutes)
	put("min_focus_minutes", p.MinFocusMinutes)
	put("max_focus_minutes", p.MaxFocusMinutes)
	put("default_break_minutes", p.DefaultBreakMinutes)
	put("max_daily_focus_minutes", p.MaxDailyFocusMinutes)
	put("recommended_sessions_per_day", p.RecommendedSessionsPerDay)
	return row
}

// ══════════════════════════════════════════════════════════════════════════════
// USAGE
// ══════════════════════════════════════════════════════════════════════════════

// Usage - снимок сегодняшнего потребления. Пересчитывается, не хранится.
type Usage struct {
	TaskCount    int
	FocusMinutes int
}
