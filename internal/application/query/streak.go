package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/streak"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakQuery содержит параметры запроса.
type GetStreakQuery struct {
	UserID string
}

// StreakResult - серия студента на сегодня.
type StreakResult struct {
	// Current - серия с учётом пропусков: сломанная серия показывается как 0.
	Current int `json:"current"`

	Longest int `json:"longest"`

	// LastActivityDate - пустая строка, если активности не было.
	LastActivityDate string `json:"last_activity_date,omitempty"`

	// AtRisk - вчера активность была, сегодня ещё нет.
	AtRisk bool `json:"at_risk"`
}

// GetStreakHandler обрабатывает запрос серии.
type GetStreakHandler struct {
	store backend.Store
	clock clock.Clock
	cal   timeutil.Calendar
}

// NewGetStreakHandler создаёт обработчик.
func NewGetStreakHandler(store backend.Store, clk clock.Clock, cal timeutil.Calendar) *GetStreakHandler {
	return &GetStreakHandler{store: store, clock: clk, cal: cal}
}

// Handle выполняет запрос.
func (h *GetStreakHandler) Handle(ctx context.Context, query GetStreakQuery) (*StreakResult, error) {
	if query.UserID == "" {
		return nil, shared.InvalidField("GetStreak", "user_id", "user is required")
	}

	s, err := LoadStreak(ctx, h.store, query.UserID)
	if err != nil {
		return nil, err
	}

	today := h.cal.Today(h.clock.Now())
	res := &StreakResult{
		Current: s.EffectiveCurrent(today),
		Longest: s.Longest,
		AtRisk:  s.AtRisk(today),
	}
	if !s.LastActivityDate.IsZero() {
		res.LastActivityDate = timeutil.FormatDateStr(s.LastActivityDate)
	}
	return res, nil
}

// LoadStreak читает серию; если строки нет, возвращает пустую серию.
func LoadStreak(ctx context.Context, store backend.Store, userID string) (*streak.Streak, error) {
	rows, err := store.Select(ctx, backend.Query{
		Table: backend.TableUserStreaks,
		Where: []backend.Cond{backend.Eq("user_id", userID)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	if len(rows) == 0 {
		return streak.New(userID), nil
	}
	return streak.FromRow(rows[0]), nil
}
