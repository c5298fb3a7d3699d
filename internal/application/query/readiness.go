package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/readiness"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/retry"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET READINESS QUERY
// Сравнивает сегодняшние показатели здоровья со скользящей базой и
// масштабирует по оценке лимит задач. Сегодняшние показатели сохраняются
// и входят в базу следующих дней.
// ══════════════════════════════════════════════════════════════════════════════

// GetReadinessQuery содержит параметры запроса.
type GetReadinessQuery struct {
	UserID string
}

// ReadinessResult - оценка готовности и пересчитанный лимит задач.
type ReadinessResult struct {
	Score             int                  `json:"score"`
	MentalLoad        readiness.MentalLoad `json:"mental_load"`
	Calibrating       bool                 `json:"calibrating"`
	BaselineDays      int                  `json:"baseline_days"`
	SuggestedMaxTasks int                  `json:"suggested_max_tasks"`
}

// GetReadinessHandler обрабатывает запрос готовности.
type GetReadinessHandler struct {
	store    backend.Store
	provider readiness.MetricsProvider
	reader   *CapacityReader
	clock    clock.Clock
	cal      timeutil.Calendar
	log      *zap.Logger
}

// NewGetReadinessHandler создаёт обработчик.
func NewGetReadinessHandler(
	store backend.Store,
	provider readiness.MetricsProvider,
	reader *CapacityReader,
	clk clock.Clock,
	cal timeutil.Calendar,
	log *zap.Logger,
) *GetReadinessHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GetReadinessHandler{
		store:    store,
		provider: provider,
		reader:   reader,
		clock:    clk,
		cal:      cal,
		log:      log.With(logger.Component("readiness")),
	}
}

// Handle выполняет запрос.
func (h *GetReadinessHandler) Handle(ctx context.Context, query GetReadinessQuery) (*ReadinessResult, error) {
	if query.UserID == "" {
		return nil, shared.InvalidField("GetReadiness", "user_id", "user is required")
	}

	today := h.cal.Today(h.clock.Now())
	todayStr := timeutil.FormatDateStr(today)

	metrics, err := h.fetchMetrics(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch day metrics: %w", err)
	}

	rows, err := h.store.Select(ctx, backend.Query{
		Table: backend.TableHealthReadings,
		Where: []backend.Cond{
			backend.Eq("user_id", query.UserID),
			backend.Lt("reading_date", todayStr),
		},
		OrderBy: []backend.Order{{Column: "reading_date", Desc: true}},
		Limit:   readiness.BaselineWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("load health readings: %w", err)
	}

	history := make([]readiness.DayMetrics, 0, len(rows))
	for _, r := range rows {
		history = append(history, readiness.FromRow(r))
	}
	baseline := readiness.BaselineFrom(history)
	est := readiness.Estimate(metrics, baseline)

	if err := h.storeReading(ctx, query.UserID, today, metrics); err != nil {
		// Оценка остаётся верной и без сегодняшней строки.
		h.log.Warn("failed to store health reading", logger.UserID(query.UserID), zap.Error(err))
	}

	c, _, err := h.reader.GetOrDefault(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	return &ReadinessResult{
		Score:             est.Score,
		MentalLoad:        est.MentalLoad,
		Calibrating:       est.Calibrating,
		BaselineDays:      baseline.Days,
		SuggestedMaxTasks: readiness.SuggestedMaxTasks(c.MaxTasksPerDay, est.Score),
	}, nil
}

// fetchMetrics читает сегодняшние показатели и повторяет запрос
// с backoff, если провайдер временно недоступен.
func (h *GetReadinessHandler) fetchMetrics(ctx context.Context, userID string) (readiness.DayMetrics, error) {
	var metrics readiness.DayMetrics
	r := retry.RefreshRetrier(
		retry.WithClock(h.clock),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			h.log.Info("metrics provider failed, retrying",
				logger.UserID(userID),
				logger.RetryCount(attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		metrics, err = h.provider.FetchDayMetrics(ctx)
		return err
	})
	return metrics, err
}

// storeReading сохраняет показатели за (user, day): обновляет или вставляет.
func (h *GetReadinessHandler) storeReading(ctx context.Context, userID string, day time.Time, m readiness.DayMetrics) error {
	row := readiness.ToRow(userID, day, m)
	where := []backend.Cond{
		backend.Eq("user_id", userID),
		backend.Eq("reading_date", row["reading_date"]),
	}

	n, err := h.store.Count(ctx, backend.TableHealthReadings, where)
	if err != nil {
		return err
	}
	if n > 0 {
		_, err = h.store.Update(ctx, backend.TableHealthReadings, where, backend.Row{
			"sleep_hours": m.SleepHours,
			"hrv":         m.HRV,
			"steps":       m.Steps,
			"stand_hours": m.StandHours,
		})
		return err
	}
	_, err = h.store.Insert(ctx, backend.TableHealthReadings, row)
	return err
}
