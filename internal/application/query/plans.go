package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/plan"
	"github.com/alem-hub/study-pace/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PLANS QUERY
// Возвращает персону студента, выбранный план и альтернативы,
// на которые указывают ответы анкеты.
// ══════════════════════════════════════════════════════════════════════════════

// GetPlansQuery содержит параметры запроса.
type GetPlansQuery struct {
	UserID string
}

// PlanDTO - план из каталога для отображения.
type PlanDTO struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	SessionMinutes       int      `json:"session_minutes"`
	BreakMinutes         int      `json:"break_minutes"`
	MaxTasksPerDay       int      `json:"max_tasks_per_day"`
	MaxDailyFocusMinutes int      `json:"max_daily_focus_minutes"`
	Warnings             []string `json:"warnings,omitempty"`
	Tone                 string   `json:"tone"`
}

// PlansResult - результат запроса.
type PlansResult struct {
	Persona      persona.Persona `json:"persona"`
	SelectedPlan PlanDTO         `json:"selected_plan"`
	Alternatives []PlanDTO       `json:"alternatives"`
}

// GetPlansHandler обрабатывает запрос планов.
type GetPlansHandler struct {
	store backend.Store
}

// NewGetPlansHandler создаёт обработчик.
func NewGetPlansHandler(store backend.Store) *GetPlansHandler {
	return &GetPlansHandler{store: store}
}

// Handle выполняет запрос. Для студента без профиля возвращает
// ErrProfileNotFound.
func (h *GetPlansHandler) Handle(ctx context.Context, query GetPlansQuery) (*PlansResult, error) {
	if query.UserID == "" {
		return nil, shared.InvalidField("GetPlans", "user_id", "user is required")
	}

	profile, err := LoadProfile(ctx, h.store, query.UserID)
	if err != nil {
		return nil, err
	}

	selected := plan.SelectBest(profile.Persona)
	if profile.SelectedPlanID != "" {
		if p, ok := plan.Lookup(plan.ID(profile.SelectedPlanID)); ok {
			selected = p
		}
	}

	alts := plan.RecommendAlternatives(profile.Persona, plan.SignalsFrom(profile.Answers))
	res := &PlansResult{
		Persona:      profile.Persona,
		SelectedPlan: ToPlanDTO(selected),
		Alternatives: make([]PlanDTO, 0, len(alts)),
	}
	for _, p := range alts {
		res.Alternatives = append(res.Alternatives, ToPlanDTO(p))
	}
	return res, nil
}

// LoadProfile читает строку профиля.
func LoadProfile(ctx context.Context, store backend.Store, userID string) (*persona.Profile, error) {
	rows, err := store.Select(ctx, backend.Query{
		Table: backend.TableProfiles,
		Where: []backend.Cond{backend.Eq("user_id", userID)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrProfileNotFound
	}
	return persona.ProfileFromRow(rows[0])
}

// ToPlanDTO конвертирует план из каталога.
func ToPlanDTO(p plan.Plan) PlanDTO {
	return PlanDTO{
		ID:                   string(p.ID),
		Name:                 p.Name,
		Description:          p.Description,
		SessionMinutes:       p.SessionMinutes,
		BreakMinutes:         p.BreakMinutes,
		MaxTasksPerDay:       p.MaxTasksPerDay,
		MaxDailyFocusMinutes: p.MaxDailyFocusMinutes,
		Warnings:             p.Warnings,
		Tone:                 string(p.Tone),
	}
}
