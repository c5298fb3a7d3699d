package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/capacity"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD TASK COMMAND
// Inserts a task. A task due today is checked against the daily limit;
// at the limit it is only inserted when the student chose to override.
// ══════════════════════════════════════════════════════════════════════════════

// AddTaskCommand contains the new task.
type AddTaskCommand struct {
	UserID    string
	Title     string
	DueDate   *time.Time
	Priority  task.Priority
	SubjectID string
	TopicID   string

	// Override is set when the student accepted going over the limit.
	Override *OverrideChoice
}

// OverrideChoice carries the optional reason for exceeding the limit.
type OverrideChoice struct {
	Reason *string
}

// AddTaskResult is returned by AddTaskHandler.
type AddTaskResult struct {
	// Task is the stored task. Nil when the limit was reached.
	Task *task.Task

	// LimitReached is true when the task was not inserted.
	LimitReached bool

	// Options are offered to the student when LimitReached is set.
	Options []capacity.LimitOption

	Usage    capacity.Usage
	Capacity capacity.Capacity

	// Override is the audit row written before the insert, if any.
	Override *capacity.Override

	Queued  bool
	Notices []resilience.Notice
}

// AddTaskHandler handles AddTaskCommand.
type AddTaskHandler struct {
	store     backend.Store
	reader    *query.CapacityReader
	writer    *resilience.Writer
	overrides *RecordOverrideHandler
	clock     clock.Clock
	cal       timeutil.Calendar
	log       *zap.Logger
}

// NewAddTaskHandler creates a new handler.
func NewAddTaskHandler(
	store backend.Store,
	reader *query.CapacityReader,
	writer *resilience.Writer,
	overrides *RecordOverrideHandler,
	clk clock.Clock,
	cal timeutil.Calendar,
	log *zap.Logger,
) *AddTaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AddTaskHandler{
		store:     store,
		reader:    reader,
		writer:    writer,
		overrides: overrides,
		clock:     clk,
		cal:       cal,
		log:       log.With(logger.Component("add_task")),
	}
}

// Handle executes the command. At the limit without an override it returns
// the result with LimitReached set together with shared.ErrTaskLimitReached.
func (h *AddTaskHandler) Handle(ctx context.Context, cmd AddTaskCommand) (*AddTaskResult, error) {
	now := h.clock.Now()
	today := h.cal.Today(now)

	t := task.Task{
		UserID:    cmd.UserID,
		SubjectID: cmd.SubjectID,
		TopicID:   cmd.TopicID,
		Title:     cmd.Title,
		Priority:  cmd.Priority,
		CreatedAt: now.UTC(),
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if cmd.DueDate != nil {
		due := timeutil.Date(cmd.DueDate.Year(), cmd.DueDate.Month(), cmd.DueDate.Day())
		t.DueDate = &due
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	res := &AddTaskResult{}

	if t.DueDate != nil && t.DueDate.Equal(today) {
		c, _, err := h.reader.GetOrDefault(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("add_task: %w", err)
		}
		usage, err := query.LoadUsage(ctx, h.store, cmd.UserID, today)
		if err != nil {
			return nil, fmt.Errorf("add_task: %w", err)
		}
		res.Capacity = c
		res.Usage = usage

		if !c.CanAddTask(usage) {
			if cmd.Override == nil {
				res.LimitReached = true
				res.Options = capacity.LimitOptions()
				return res, shared.ErrTaskLimitReached
			}

			ov, err := h.overrides.Handle(ctx, RecordOverrideCommand{
				UserID:         cmd.UserID,
				Kind:           capacity.OverrideTaskLimit,
				AttemptedValue: usage.TaskCount + 1,
				Reason:         cmd.Override.Reason,
			})
			if err != nil {
				return nil, fmt.Errorf("add_task: %w", err)
			}
			res.Override = &ov.Override
			res.Notices = append(res.Notices, ov.Notices...)
		}
	}

	wr, err := h.writer.Write(ctx, "AddTask", backend.InsertWrite(backend.TableTasks, t.ToRow()))
	res.Notices = append(res.Notices, wr.Notices...)
	if err != nil {
		return res, err
	}

	if wr.Row != nil {
		t = task.FromRow(wr.Row)
	}
	res.Task = &t
	res.Queued = wr.Queued

	h.log.Info("task added",
		logger.UserID(cmd.UserID),
		logger.TaskID(t.ID),
		zap.Bool("override", res.Override != nil),
		zap.Bool("queued", res.Queued),
	)
	return res, nil
}
