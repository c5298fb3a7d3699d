// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/capacity"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE CAPACITY COMMAND
// Derives limits from the stored profile and saves them. When the save
// fails the previous row is left untouched.
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateCapacityCommand contains the data to recalculate limits.
type RecalculateCapacityCommand struct {
	UserID string
}

// CapacityResult is returned by the capacity commands.
type CapacityResult struct {
	// Capacity is the limits now in effect. After a failed recalculation
	// it is the previous value.
	Capacity capacity.Capacity

	// Queued is true when the change waits in the sync queue.
	Queued bool

	Notices []resilience.Notice
}

// RecalculateCapacityHandler handles RecalculateCapacityCommand.
type RecalculateCapacityHandler struct {
	store  backend.Store
	reader *query.CapacityReader
	policy *resilience.Policy
	clock  clock.Clock
	log    *zap.Logger
}

// NewRecalculateCapacityHandler creates a new handler.
func NewRecalculateCapacityHandler(
	store backend.Store,
	reader *query.CapacityReader,
	policy *resilience.Policy,
	clk clock.Clock,
	log *zap.Logger,
) *RecalculateCapacityHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecalculateCapacityHandler{
		store:  store,
		reader: reader,
		policy: policy,
		clock:  clk,
		log:    log.With(logger.Component("capacity")),
	}
}

// Handle executes the command.
func (h *RecalculateCapacityHandler) Handle(ctx context.Context, cmd RecalculateCapacityCommand) (*CapacityResult, error) {
	if cmd.UserID == "" {
		return nil, shared.InvalidField("RecalculateCapacity", "user_id", "user is required")
	}

	profile, err := query.LoadProfile(ctx, h.store, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("recalculate_capacity: %w", err)
	}

	next := capacity.Derive(profile.Persona, profile.Answers)
	next.UserID = cmd.UserID
	next.UpdatedAt = h.clock.Now().UTC()

	if err := SaveCapacity(ctx, h.store, next); err != nil {
		h.reader.Invalidate(cmd.UserID)
		prev, _, _ := h.reader.GetOrDefault(ctx, cmd.UserID)
		out := h.policy.Handle(ctx, err, resilience.Options{
			Op:       "RecalculateCapacity",
			Hint:     shared.CategoryUnknown,
			Notify:   true,
			Severity: shared.SeverityMedium,
		})
		return &CapacityResult{Capacity: prev, Notices: out.Notices},
			fmt.Errorf("recalculate_capacity: %w", err)
	}

	h.reader.Put(next)
	h.log.Info("capacity recalculated",
		logger.UserID(cmd.UserID),
		logger.Persona(string(next.Persona)),
		zap.Int("max_tasks_per_day", next.MaxTasksPerDay),
		zap.Int("max_daily_focus_minutes", next.MaxDailyFocusMinutes),
	)
	return &CapacityResult{Capacity: next}, nil
}

// SaveCapacity upserts the capacity row for c.UserID.
func SaveCapacity(ctx context.Context, store backend.Store, c capacity.Capacity) error {
	where := []backend.Cond{backend.Eq("user_id", c.UserID)}
	n, err := store.Count(ctx, backend.TableCapacity, where)
	if err != nil {
		return err
	}

	row := c.ToRow()
	if n == 0 {
		_, err = store.Insert(ctx, backend.TableCapacity, row)
		return err
	}
	delete(row, "user_id")
	_, err = store.Update(ctx, backend.TableCapacity, where, row)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE CAPACITY COMMAND
// Manual edit of individual limits.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateCapacityCommand contains the fields to change. nil means "keep".
type UpdateCapacityCommand struct {
	UserID string
	Patch  capacity.Patch
}

// Validate validates the command shape. Range checks happen in Patch.Apply.
func (c UpdateCapacityCommand) Validate() error {
	if c.UserID == "" {
		return shared.InvalidField("UpdateCapacity", "user_id", "user is required")
	}
	if c.Patch.IsEmpty() {
		return shared.InvalidField("UpdateCapacity", "patch", "nothing to update")
	}
	return nil
}

// UpdateCapacityHandler handles UpdateCapacityCommand.
type UpdateCapacityHandler struct {
	reader *query.CapacityReader
	writer *resilience.Writer
	clock  clock.Clock
}

// NewUpdateCapacityHandler creates a new handler.
func NewUpdateCapacityHandler(reader *query.CapacityReader, writer *resilience.Writer, clk clock.Clock) *UpdateCapacityHandler {
	return &UpdateCapacityHandler{reader: reader, writer: writer, clock: clk}
}

// Handle executes the command.
func (h *UpdateCapacityHandler) Handle(ctx context.Context, cmd UpdateCapacityCommand) (*CapacityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	current, configured, err := h.reader.GetOrDefault(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("update_capacity: %w", err)
	}

	next, err := cmd.Patch.Apply(current)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = h.clock.Now().UTC()

	var w backend.Write
	if configured {
		set := cmd.Patch.Row()
		set["updated_at"] = next.UpdatedAt
		w = backend.UpdateWrite(backend.TableCapacity, []backend.Cond{backend.Eq("user_id", cmd.UserID)}, set)
	} else {
		w = backend.InsertWrite(backend.TableCapacity, next.ToRow())
	}

	res, err := h.writer.Write(ctx, "UpdateCapacity", w)
	if err != nil {
		return &CapacityResult{Capacity: current, Notices: res.Notices}, err
	}

	h.reader.Put(next)
	return &CapacityResult{Capacity: next, Queued: res.Queued, Notices: res.Notices}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD OVERRIDE COMMAND
// Appends an audit row when the student knowingly exceeds a limit.
// ══════════════════════════════════════════════════════════════════════════════

// RecordOverrideCommand contains the override data.
type RecordOverrideCommand struct {
	UserID string
	Kind   capacity.OverrideKind

	// AttemptedValue is the value the student is going to. Zero means
	// "current usage plus one".
	AttemptedValue int

	Reason *string
}

// OverrideResult is returned by RecordOverrideHandler.
type OverrideResult struct {
	Override capacity.Override
	Queued   bool
	Notices  []resilience.Notice
}

// RecordOverrideHandler handles RecordOverrideCommand.
type RecordOverrideHandler struct {
	store  backend.Store
	reader *query.CapacityReader
	writer *resilience.Writer
	clock  clock.Clock
	cal    timeutil.Calendar
}

// NewRecordOverrideHandler creates a new handler.
func NewRecordOverrideHandler(
	store backend.Store,
	reader *query.CapacityReader,
	writer *resilience.Writer,
	clk clock.Clock,
	cal timeutil.Calendar,
) *RecordOverrideHandler {
	return &RecordOverrideHandler{store: store, reader: reader, writer: writer, clock: clk, cal: cal}
}

// Handle executes the command.
func (h *RecordOverrideHandler) Handle(ctx context.Context, cmd RecordOverrideCommand) (*OverrideResult, error) {
	if cmd.UserID == "" {
		return nil, shared.InvalidField("RecordOverride", "user_id", "user is required")
	}
	if !cmd.Kind.IsValid() {
		return nil, shared.ErrInvalidOverride
	}

	c, _, err := h.reader.GetOrDefault(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("record_override: %w", err)
	}

	attempted := cmd.AttemptedValue
	if attempted <= 0 {
		usage, err := query.LoadUsage(ctx, h.store, cmd.UserID, h.cal.Today(h.clock.Now()))
		if err != nil {
			return nil, fmt.Errorf("record_override: %w", err)
		}
		switch cmd.Kind {
		case capacity.OverrideFocusLimit:
			attempted = usage.FocusMinutes
		default:
			attempted = usage.TaskCount + 1
		}
	}

	o := capacity.Override{
		UserID:         cmd.UserID,
		Kind:           cmd.Kind,
		OriginalLimit:  cmd.Kind.LimitFor(c),
		AttemptedValue: attempted,
		Reason:         cmd.Reason,
		CreatedAt:      h.clock.Now().UTC(),
	}

	res, err := h.writer.Write(ctx, "RecordOverride", backend.InsertWrite(backend.TableCapacityOverrides, o.ToRow()))
	if err != nil {
		return &OverrideResult{Override: o, Notices: res.Notices}, err
	}
	if res.Row != nil {
		o.ID = res.Row.String("id")
	}
	return &OverrideResult{Override: o, Queued: res.Queued, Notices: res.Notices}, nil
}
