package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD FOCUS SESSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Focus session duration bounds, in minutes.
const (
	MinSessionMinutes = 1
	MaxSessionMinutes = 180
)

// MsgInvalidDuration is the message shown for an out-of-range duration.
const MsgInvalidDuration = "Duration must be between 1 and 180 minutes"

// RecordFocusSessionCommand contains a finished focus session.
type RecordFocusSessionCommand struct {
	UserID          string
	TaskID          string
	DurationMinutes int
}

// Validate validates the command.
func (c RecordFocusSessionCommand) Validate() error {
	var fields []shared.FieldError
	if c.DurationMinutes < MinSessionMinutes || c.DurationMinutes > MaxSessionMinutes {
		fields = append(fields, shared.FieldError{Field: "duration_minutes", Message: MsgInvalidDuration})
	}
	if c.UserID == "" {
		fields = append(fields, shared.FieldError{Field: "user_id", Message: "user is required"})
	}
	if len(fields) > 0 {
		return shared.ValidationError("RecordFocusSession", fields...)
	}
	return nil
}

// FocusSessionResult is returned by RecordFocusSessionHandler.
type FocusSessionResult struct {
	SessionID     string
	SessionDate   string
	CurrentStreak int
	Queued        bool
	Notices       []resilience.Notice
}

// RecordFocusSessionHandler handles RecordFocusSessionCommand.
type RecordFocusSessionHandler struct {
	writer  *resilience.Writer
	streaks *StreakRecorder
	clock   clock.Clock
	cal     timeutil.Calendar
	log     *zap.Logger
}

// NewRecordFocusSessionHandler creates a new handler.
func NewRecordFocusSessionHandler(
	writer *resilience.Writer,
	streaks *StreakRecorder,
	clk clock.Clock,
	cal timeutil.Calendar,
	log *zap.Logger,
) *RecordFocusSessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordFocusSessionHandler{
		writer:  writer,
		streaks: streaks,
		clock:   clk,
		cal:     cal,
		log:     log.With(logger.Component("focus")),
	}
}

// Handle executes the command. An invalid duration is rejected before any
// write and is never queued.
func (h *RecordFocusSessionHandler) Handle(ctx context.Context, cmd RecordFocusSessionCommand) (*FocusSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		out := h.writer.Policy().Handle(ctx, err, resilience.Options{Op: "RecordFocusSession"})
		return &FocusSessionResult{Notices: out.Notices}, err
	}

	now := h.clock.Now()
	today := h.cal.Today(now)
	res := &FocusSessionResult{SessionDate: timeutil.FormatDateStr(today)}

	row := backend.Row{
		"user_id":          cmd.UserID,
		"duration_minutes": cmd.DurationMinutes,
		"session_date":     res.SessionDate,
		"created_at":       now.UTC(),
	}
	if cmd.TaskID != "" {
		row["task_id"] = cmd.TaskID
	}

	wr, err := h.writer.Write(ctx, "RecordFocusSession", backend.InsertWrite(backend.TableFocusSessions, row))
	res.Notices = wr.Notices
	if err != nil {
		return res, err
	}
	res.Queued = wr.Queued
	if wr.Row != nil {
		res.SessionID = wr.Row.String("id")
	}

	if h.streaks != nil {
		s, notices := h.streaks.Record(ctx, cmd.UserID, today)
		res.Notices = mergeNotices(res.Notices, notices...)
		if s != nil {
			res.CurrentStreak = s.Current
		}
	}

	h.log.Info("focus session recorded",
		logger.UserID(cmd.UserID),
		zap.Int("duration_minutes", cmd.DurationMinutes),
		zap.Bool("queued", res.Queued),
	)
	return res, nil
}
