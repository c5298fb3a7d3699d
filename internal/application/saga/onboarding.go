// Package saga contains business processes that orchestrate several
// domain operations in a coordinated manner and compensate on failure.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/command"
	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/capacity"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/plan"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING SAGA
// Flow: Validate → Classify → Select Plan → Save Profile → Save Capacity
//
// Running it again for the same user re-onboards: the profile and the
// capacity row are overwritten.
// ══════════════════════════════════════════════════════════════════════════════

// OnboardingInput contains the questionnaire answers of a student.
type OnboardingInput struct {
	// UserID - owner of the profile (required).
	UserID string

	// Answers - onboarding questionnaire. Empty fields mean "not answered".
	Answers persona.Answers

	// PlanID - plan the student picked explicitly (optional).
	// Empty means the best plan for the persona.
	PlanID plan.ID
}

// Validate checks if the input is valid for onboarding.
func (i OnboardingInput) Validate() error {
	if i.UserID == "" {
		return shared.InvalidField("Onboarding", "user_id", "user is required")
	}
	if i.PlanID != "" {
		if _, ok := plan.Lookup(i.PlanID); !ok {
			return shared.InvalidField("Onboarding", "plan_id", "unknown plan")
		}
	}
	return i.Answers.Validate()
}

// OnboardingResult contains the result of a successful onboarding.
type OnboardingResult struct {
	Profile      *persona.Profile
	Plan         plan.Plan
	Alternatives []plan.Plan
	Capacity     capacity.Capacity
	OnboardedAt  time.Time
}

// OnboardingStep represents a step in the onboarding process.
type OnboardingStep string

const (
	StepValidateInput OnboardingStep = "validate_input"
	StepClassify      OnboardingStep = "classify"
	StepSelectPlan    OnboardingStep = "select_plan"
	StepSaveProfile   OnboardingStep = "save_profile"
	StepSaveCapacity  OnboardingStep = "save_capacity"
	StepComplete      OnboardingStep = "complete"
)

// OnboardingState tracks the current state of the onboarding saga.
type OnboardingState struct {
	CurrentStep OnboardingStep
	Input       OnboardingInput
	Profile     *persona.Profile
	Previous    backend.Row
	Plan        plan.Plan
	Capacity    capacity.Capacity
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       error
	FailedStep  OnboardingStep
}

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OnboardingSaga orchestrates classification and the initial limits.
type OnboardingSaga struct {
	store  backend.Store
	reader *query.CapacityReader
	clock  clock.Clock
	log    *zap.Logger
}

// NewOnboardingSaga creates a new onboarding saga.
func NewOnboardingSaga(store backend.Store, reader *query.CapacityReader, clk clock.Clock, log *zap.Logger) *OnboardingSaga {
	if log == nil {
		log = zap.NewNop()
	}
	return &OnboardingSaga{
		store:  store,
		reader: reader,
		clock:  clk,
		log:    log.With(logger.Component("onboarding")),
	}
}

// Execute runs the complete onboarding process.
func (s *OnboardingSaga) Execute(ctx context.Context, input OnboardingInput) (*OnboardingResult, error) {
	state := &OnboardingState{
		CurrentStep: StepValidateInput,
		Input:       input,
		StartedAt:   s.clock.Now().UTC(),
	}

	// Step 1: Validate input
	if err := s.stepValidateInput(state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 2: Classify
	state.CurrentStep = StepClassify
	s.stepClassify(state)

	// Step 3: Plan and limits
	state.CurrentStep = StepSelectPlan
	s.stepSelectPlan(state)

	// Step 4: Profile
	state.CurrentStep = StepSaveProfile
	if err := s.stepSaveProfile(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	// Step 5: Capacity
	state.CurrentStep = StepSaveCapacity
	if err := s.stepSaveCapacity(ctx, state); err != nil {
		s.rollbackProfile(ctx, state)
		return nil, s.wrapError(state, err)
	}

	state.CurrentStep = StepComplete
	now := s.clock.Now().UTC()
	state.CompletedAt = &now

	s.log.Info("student onboarded",
		logger.UserID(input.UserID),
		logger.Persona(string(state.Profile.Persona)),
		zap.String("plan", string(state.Plan.ID)),
		zap.Duration("took", now.Sub(state.StartedAt)),
	)

	return &OnboardingResult{
		Profile:      state.Profile,
		Plan:         state.Plan,
		Alternatives: plan.RecommendAlternatives(state.Profile.Persona, plan.SignalsFrom(input.Answers)),
		Capacity:     state.Capacity,
		OnboardedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *OnboardingSaga) stepValidateInput(state *OnboardingState) error {
	if err := state.Input.Validate(); err != nil {
		state.FailedStep = StepValidateInput
		state.Error = err
		return err
	}
	return nil
}

func (s *OnboardingSaga) stepClassify(state *OnboardingState) {
	state.Profile = &persona.Profile{
		UserID:    state.Input.UserID,
		Answers:   state.Input.Answers,
		Persona:   persona.Classify(state.Input.Answers),
		UpdatedAt: state.StartedAt,
	}
}

func (s *OnboardingSaga) stepSelectPlan(state *OnboardingState) {
	state.Plan = plan.SelectBest(state.Profile.Persona)
	if state.Input.PlanID != "" {
		state.Plan, _ = plan.Lookup(state.Input.PlanID)
	}
	state.Profile.SelectedPlanID = string(state.Plan.ID)

	state.Capacity = capacity.Derive(state.Profile.Persona, state.Input.Answers)
	state.Capacity.UserID = state.Input.UserID
	state.Capacity.UpdatedAt = state.StartedAt
}

func (s *OnboardingSaga) stepSaveProfile(ctx context.Context, state *OnboardingState) error {
	fail := func(err error) error {
		state.FailedStep = StepSaveProfile
		state.Error = err
		return err
	}

	row, err := state.Profile.ToRow()
	if err != nil {
		return fail(fmt.Errorf("failed to encode profile: %w", err))
	}

	where := []backend.Cond{backend.Eq("user_id", state.Input.UserID)}
	existing, err := s.store.Select(ctx, backend.Query{Table: backend.TableProfiles, Where: where, Limit: 1})
	if err != nil {
		return fail(fmt.Errorf("failed to read profile: %w", err))
	}

	if len(existing) == 0 {
		_, err = s.store.Insert(ctx, backend.TableProfiles, row)
	} else {
		state.Previous = existing[0]
		delete(row, "user_id")
		if _, ok := row["selected_plan_id"]; !ok {
			row["selected_plan_id"] = nil
		}
		_, err = s.store.Update(ctx, backend.TableProfiles, where, row)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to save profile: %w", err))
	}
	return nil
}

func (s *OnboardingSaga) stepSaveCapacity(ctx context.Context, state *OnboardingState) error {
	if err := command.SaveCapacity(ctx, s.store, state.Capacity); err != nil {
		s.reader.Invalidate(state.Input.UserID)
		state.FailedStep = StepSaveCapacity
		state.Error = fmt.Errorf("failed to save capacity: %w", err)
		return state.Error
	}
	s.reader.Put(state.Capacity)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// rollbackProfile restores the profile that was replaced in this run.
// A first-time profile stays with its answers but loses the selected plan,
// so it reads as not onboarded until the next run overwrites it.
func (s *OnboardingSaga) rollbackProfile(ctx context.Context, state *OnboardingState) {
	restore := backend.Row{"selected_plan_id": nil}
	if state.Previous != nil {
		restore = state.Previous.Clone()
		delete(restore, "user_id")
	}
	where := []backend.Cond{backend.Eq("user_id", state.Input.UserID)}
	if _, err := s.store.Update(ctx, backend.TableProfiles, where, restore); err != nil {
		s.log.Warn("failed to restore previous profile", logger.UserID(state.Input.UserID), zap.Error(err))
	}
}

// wrapError wraps an error with saga context.
func (s *OnboardingSaga) wrapError(state *OnboardingState, err error) error {
	return &OnboardingError{
		Step:    state.FailedStep,
		UserID:  state.Input.UserID,
		Cause:   err,
		Message: fmt.Sprintf("onboarding failed at step '%s': %v", state.FailedStep, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// OnboardingError represents an error during the onboarding process.
type OnboardingError struct {
	Step    OnboardingStep
	UserID  string
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *OnboardingError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *OnboardingError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried.
func (e *OnboardingError) IsRetryable() bool {
	if e.Step == StepValidateInput || shared.IsValidation(e.Cause) {
		return false
	}
	var ce *shared.CategorizedError
	if errors.As(e.Cause, &ce) {
		return ce.Category == shared.CategoryNetwork || ce.Category == shared.CategoryDatabase
	}
	return true
}
