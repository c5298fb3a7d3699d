// Package streak ведёт серию дней подряд с учебной активностью.
package streak

import (
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// Streak - серия дней подряд с активностью.
type Streak struct {
	// UserID - владелец серии.
	UserID string

	// Current - текущая серия дней.
	Current int

	// Longest - лучшая серия дней.
	Longest int

	// LastActivityDate - гражданская дата последней активности.
	LastActivityDate time.Time
}

// New создаёт пустую серию.
func New(userID string) *Streak {
	return &Streak{UserID: userID}
}

// RecordActivity записывает активность в день date и обновляет серию.
// Возвращает true, если серия изменилась.
func (s *Streak) RecordActivity(date time.Time) bool {
	day := timeutil.Date(date.Year(), date.Month(), date.Day())

	// Первая активность
	if s.LastActivityDate.IsZero() {
		s.Current = 1
		s.Longest = max(s.Longest, 1)
		s.LastActivityDate = day
		return true
	}

	switch timeutil.DaysBetween(s.LastActivityDate, day) {
	case 0:
		// Тот же день - ничего не меняем
		return false
	case 1:
		// Следующий день - продолжаем серию
		s.Current++
	default:
		// Пропущены дни (или дата из прошлого) - начинаем заново
		if day.Before(s.LastActivityDate) {
			return false
		}
		s.Current = 1
	}

	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastActivityDate = day
	return true
}

// IsBroken проверяет, пропущен ли хотя бы один день до today.
func (s *Streak) IsBroken(today time.Time) bool {
	if s.LastActivityDate.IsZero() {
		return false
	}
	return timeutil.DaysBetween(s.LastActivityDate, today) > 1
}

// AtRisk - вчера активность была, сегодня ещё нет.
func (s *Streak) AtRisk(today time.Time) bool {
	if s.LastActivityDate.IsZero() || s.Current == 0 {
		return false
	}
	return timeutil.DaysBetween(s.LastActivityDate, today) == 1
}

// EffectiveCurrent - текущая серия с учётом пропуска: сломанная серия равна 0.
func (s *Streak) EffectiveCurrent(today time.Time) int {
	if s.IsBroken(today) {
		return 0
	}
	return s.Current
}

// ToRow готовит строку user_streaks.
func (s *Streak) ToRow() backend.Row {
	return backend.Row{
		"user_id":            s.UserID,
		"current_streak":     s.Current,
		"longest_streak":     s.Longest,
		"last_activity_date": timeutil.FormatDateStr(s.LastActivityDate),
	}
}

// FromRow разбирает строку user_streaks.
func FromRow(r backend.Row) *Streak {
	s := &Streak{
		UserID:  r.String("user_id"),
		Current: r.Int("current_streak"),
		Longest: r.Int("longest_streak"),
	}
	if d, ok := r.Time("last_activity_date"); ok {
		s.LastActivityDate = timeutil.Date(d.Year(), d.Month(), d.Day())
	}
	return s
}
