package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// TaskCommand identifies a task of a user.
type TaskCommand struct {
	UserID string
	TaskID string
}

// Validate validates the command.
func (c TaskCommand) Validate(op string) error {
	var fields []shared.FieldError
	if c.UserID == "" {
		fields = append(fields, shared.FieldError{Field: "user_id", Message: "user is required"})
	}
	if c.TaskID == "" {
		fields = append(fields, shared.FieldError{Field: "task_id", Message: "task is required"})
	}
	if len(fields) > 0 {
		return shared.ValidationError(op, fields...)
	}
	return nil
}

func (c TaskCommand) where() []backend.Cond {
	return []backend.Cond{backend.Eq("id", c.TaskID), backend.Eq("user_id", c.UserID)}
}

// TaskResult is returned by the task mutation commands.
type TaskResult struct {
	TaskID string

	// DueDate is the new due date (YYYY-MM-DD) after a reschedule or dismiss.
	DueDate string

	Completed bool

	// CurrentStreak is set when the command recorded activity.
	CurrentStreak int

	Queued  bool
	Notices []resilience.Notice
}

// taskDeps are shared by the task commands.
type taskDeps struct {
	writer *resilience.Writer
	clock  clock.Clock
	cal    timeutil.Calendar
	log    *zap.Logger
}

func newTaskDeps(writer *resilience.Writer, clk clock.Clock, cal timeutil.Calendar, log *zap.Logger, component string) taskDeps {
	if log == nil {
		log = zap.NewNop()
	}
	return taskDeps{writer: writer, clock: clk, cal: cal, log: log.With(logger.Component(component))}
}

// write applies w and folds its outcome into res.
func (d taskDeps) write(ctx context.Context, op string, w backend.Write, res *TaskResult) error {
	wr, err := d.writer.Write(ctx, op, w)
	res.Notices = mergeNotices(res.Notices, wr.Notices...)
	res.Queued = res.Queued || wr.Queued
	return err
}

func (d taskDeps) audit(ctx context.Context, cmd TaskCommand, reason task.SkipReason, res *TaskResult) error {
	row := backend.Row{
		"user_id":    cmd.UserID,
		"task_id":    cmd.TaskID,
		"reason":     string(reason),
		"created_at": d.clock.Now().UTC(),
	}
	return d.write(ctx, "LogMissedReason", backend.InsertWrite(backend.TableMissedTaskReasons, row), res)
}

// mergeNotices appends notices whose message is not already present.
func mergeNotices(dst []resilience.Notice, src ...resilience.Notice) []resilience.Notice {
	for _, n := range src {
		dup := false
		for _, d := range dst {
			if d.Message == n.Message {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, n)
		}
	}
	return dst
}

// ══════════════════════════════════════════════════════════════════════════════
// RESCHEDULE TASK COMMAND
// Moves a missed task to today and logs the reason "rescheduled".
// ══════════════════════════════════════════════════════════════════════════════

// RescheduleTaskHandler handles reschedule commands.
type RescheduleTaskHandler struct {
	taskDeps
}

// NewRescheduleTaskHandler creates a new handler.
func NewRescheduleTaskHandler(writer *resilience.Writer, clk clock.Clock, cal timeutil.Calendar, log *zap.Logger) *RescheduleTaskHandler {
	return &RescheduleTaskHandler{newTaskDeps(writer, clk, cal, log, "reschedule_task")}
}

// Handle executes the command.
func (h *RescheduleTaskHandler) Handle(ctx context.Context, cmd TaskCommand) (*TaskResult, error) {
	if err := cmd.Validate("RescheduleTask"); err != nil {
		return nil, err
	}

	today := timeutil.FormatDateStr(h.cal.Today(h.clock.Now()))
	res := &TaskResult{TaskID: cmd.TaskID, DueDate: today}

	w := backend.UpdateWrite(backend.TableTasks, cmd.where(), backend.Row{"due_date": today})
	if err := h.write(ctx, "RescheduleTask", w, res); err != nil {
		return res, taskError("reschedule_task", err)
	}
	if err := h.audit(ctx, cmd, task.SkipRescheduled, res); err != nil {
		h.log.Warn("failed to log reschedule", logger.TaskID(cmd.TaskID), zap.Error(err))
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SKIP TASK COMMAND
// Drops a missed task: marks it complete and logs why.
// ══════════════════════════════════════════════════════════════════════════════

// SkipTaskCommand contains the task and the reason.
type SkipTaskCommand struct {
	TaskCommand
	Reason task.SkipReason
}

// SkipTaskHandler handles skip commands.
type SkipTaskHandler struct {
	taskDeps
}

// NewSkipTaskHandler creates a new handler.
func NewSkipTaskHandler(writer *resilience.Writer, clk clock.Clock, cal timeutil.Calendar, log *zap.Logger) *SkipTaskHandler {
	return &SkipTaskHandler{newTaskDeps(writer, clk, cal, log, "skip_task")}
}

// Handle executes the command.
func (h *SkipTaskHandler) Handle(ctx context.Context, cmd SkipTaskCommand) (*TaskResult, error) {
	if err := cmd.Validate("SkipTask"); err != nil {
		return nil, err
	}
	if !cmd.Reason.IsValid() {
		return nil, shared.ErrInvalidSkip
	}

	res := &TaskResult{TaskID: cmd.TaskID, Completed: true}
	w := backend.UpdateWrite(backend.TableTasks, cmd.where(), backend.Row{
		"completed":    true,
		"completed_at": h.clock.Now().UTC(),
	})
	if err := h.write(ctx, "SkipTask", w, res); err != nil {
		return res, taskError("skip_task", err)
	}
	if err := h.audit(ctx, cmd.TaskCommand, cmd.Reason, res); err != nil {
		h.log.Warn("failed to log skip reason", logger.TaskID(cmd.TaskID), zap.Error(err))
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE TASK COMMAND
// Flips completion. Completing a task counts as activity for the streak.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleTaskHandler handles toggle commands.
type ToggleTaskHandler struct {
	taskDeps
	store   backend.Store
	streaks *StreakRecorder
}

// NewToggleTaskHandler creates a new handler.
func NewToggleTaskHandler(
	store backend.Store,
	writer *resilience.Writer,
	streaks *StreakRecorder,
	clk clock.Clock,
	cal timeutil.Calendar,
	log *zap.Logger,
) *ToggleTaskHandler {
	return &ToggleTaskHandler{
		taskDeps: newTaskDeps(writer, clk, cal, log, "toggle_task"),
		store:    store,
		streaks:  streaks,
	}
}

// Handle executes the command.
func (h *ToggleTaskHandler) Handle(ctx context.Context, cmd TaskCommand) (*TaskResult, error) {
	if err := cmd.Validate("ToggleTask"); err != nil {
		return nil, err
	}

	rows, err := h.store.Select(ctx, backend.Query{Table: backend.TableTasks, Where: cmd.where(), Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("toggle_task: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrTaskNotFound
	}
	current := task.FromRow(rows[0])

	now := h.clock.Now()
	res := &TaskResult{TaskID: cmd.TaskID, Completed: !current.Completed}
	set := backend.Row{"completed": res.Completed, "completed_at": nil}
	if res.Completed {
		set["completed_at"] = now.UTC()
	}

	if err := h.write(ctx, "ToggleTask", backend.UpdateWrite(backend.TableTasks, cmd.where(), set), res); err != nil {
		return res, taskError("toggle_task", err)
	}

	if res.Completed && h.streaks != nil {
		s, notices := h.streaks.Record(ctx, cmd.UserID, h.cal.Today(now))
		res.Notices = mergeNotices(res.Notices, notices...)
		if s != nil {
			res.CurrentStreak = s.Current
		}
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISMISS SUGGESTION COMMAND
// Snoozes a suggested task to tomorrow.
// ══════════════════════════════════════════════════════════════════════════════

// DismissSuggestionHandler handles dismiss commands.
type DismissSuggestionHandler struct {
	taskDeps
}

// NewDismissSuggestionHandler creates a new handler.
func NewDismissSuggestionHandler(writer *resilience.Writer, clk clock.Clock, cal timeutil.Calendar, log *zap.Logger) *DismissSuggestionHandler {
	return &DismissSuggestionHandler{newTaskDeps(writer, clk, cal, log, "dismiss_suggestion")}
}

// Handle executes the command.
func (h *DismissSuggestionHandler) Handle(ctx context.Context, cmd TaskCommand) (*TaskResult, error) {
	if err := cmd.Validate("DismissSuggestion"); err != nil {
		return nil, err
	}

	tomorrow := timeutil.FormatDateStr(h.cal.Tomorrow(h.clock.Now()))
	res := &TaskResult{TaskID: cmd.TaskID, DueDate: tomorrow}

	w := backend.UpdateWrite(backend.TableTasks, cmd.where(), backend.Row{"due_date": tomorrow})
	if err := h.write(ctx, "DismissSuggestion", w, res); err != nil {
		return res, taskError("dismiss_suggestion", err)
	}
	return res, nil
}

// taskError maps a missing row to ErrTaskNotFound.
func taskError(op string, err error) error {
	if shared.IsNotFound(err) {
		return shared.ErrTaskNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
