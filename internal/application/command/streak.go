package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/streak"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// StreakRecorder records a day of activity on the user's streak.
type StreakRecorder struct {
	store  backend.Store
	writer *resilience.Writer
	clock  clock.Clock
	log    *zap.Logger
}

// NewStreakRecorder creates a recorder.
func NewStreakRecorder(store backend.Store, writer *resilience.Writer, clk clock.Clock, log *zap.Logger) *StreakRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreakRecorder{store: store, writer: writer, clock: clk, log: log.With(logger.Component("streak"))}
}

// Record marks day as active. Failures are logged and never fail the
// caller's operation; the returned streak is nil when it could not be read.
func (r *StreakRecorder) Record(ctx context.Context, userID string, day time.Time) (*streak.Streak, []resilience.Notice) {
	s, err := query.LoadStreak(ctx, r.store, userID)
	if err != nil {
		r.log.Warn("failed to load streak", logger.UserID(userID), zap.Error(err))
		return nil, nil
	}

	isNew := s.LastActivityDate.IsZero()
	if !s.RecordActivity(day) {
		return s, nil
	}

	row := s.ToRow()
	row["updated_at"] = r.clock.Now().UTC()

	var w backend.Write
	if isNew {
		w = backend.InsertWrite(backend.TableUserStreaks, row)
	} else {
		delete(row, "user_id")
		w = backend.UpdateWrite(backend.TableUserStreaks, []backend.Cond{backend.Eq("user_id", userID)}, row)
	}

	res, err := r.writer.Write(ctx, "RecordStreak", w)
	if err != nil {
		r.log.Warn("failed to save streak", logger.UserID(userID), zap.Error(err))
	}
	return s, res.Notices
}
