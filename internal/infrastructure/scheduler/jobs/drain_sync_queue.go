// Package jobs contains the scheduled jobs of the worker.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/infrastructure/notify"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN SYNC QUEUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Drainer replays queued writes.
type Drainer interface {
	Drain(ctx context.Context) (syncqueue.DrainReport, error)
}

// Locker keeps drains of several worker processes apart when they share
// one queue.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DrainSyncQueueJob replays queued writes on a timer. Owners of dropped
// writes get an error notice.
type DrainSyncQueueJob struct {
	queue    Drainer
	lock     Locker
	notifier notify.Notifier
	log      *zap.Logger
	config   DrainSyncQueueConfig

	lastReport atomic.Value // *DrainStats
}

// DrainSyncQueueConfig contains configuration for the drain job.
type DrainSyncQueueConfig struct {
	// Timeout bounds a single pass.
	Timeout time.Duration
}

// DefaultDrainSyncQueueConfig returns sensible defaults.
func DefaultDrainSyncQueueConfig() DrainSyncQueueConfig {
	return DrainSyncQueueConfig{Timeout: 2 * time.Minute}
}

// DrainStats contains statistics from a drain run.
type DrainStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Report    syncqueue.DrainReport
	Skipped   bool
}

// NewDrainSyncQueueJob creates a new drain job. lock and notifier may be nil.
func NewDrainSyncQueueJob(
	queue Drainer,
	lock Locker,
	notifier notify.Notifier,
	log *zap.Logger,
	config DrainSyncQueueConfig,
) *DrainSyncQueueJob {
	if log == nil {
		log = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDrainSyncQueueConfig().Timeout
	}
	return &DrainSyncQueueJob{
		queue:    queue,
		lock:     lock,
		notifier: notifier,
		log:      log.With(logger.Component("drain_job")),
		config:   config,
	}
}

// Name returns the job name.
func (j *DrainSyncQueueJob) Name() string {
	return "drain_sync_queue"
}

// Description returns a human-readable description.
func (j *DrainSyncQueueJob) Description() string {
	return "Replays writes queued while the backend was unreachable"
}

// Run executes one drain pass.
func (j *DrainSyncQueueJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &DrainStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastReport.Store(stats)
	}()

	if j.lock != nil {
		ok, err := j.lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("drain_sync_queue: %w", err)
		}
		if !ok {
			stats.Skipped = true
			j.log.Debug("drain skipped, another worker holds the lock")
			return nil
		}
		defer func() {
			if err := j.lock.Release(context.WithoutCancel(ctx)); err != nil {
				j.log.Warn("failed to release drain lock", zap.Error(err))
			}
		}()
	}

	report, err := j.queue.Drain(ctx)
	stats.Report = report
	if err != nil {
		return fmt.Errorf("drain_sync_queue: %w", err)
	}

	for _, item := range report.Dropped {
		if userID := ownerOf(item.Payload); userID != "" {
			notify.Dispatch(ctx, j.notifier, userID, []resilience.Notice{resilience.ErrorNotice(resilience.MsgSaveFailed)})
		}
	}

	if report.Attempted > 0 {
		j.log.Info("sync queue drained",
			zap.Int("attempted", report.Attempted),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("retried", report.Retried),
			zap.Int("dropped", len(report.Dropped)),
			zap.Int("remaining", report.Remaining),
		)
	}
	return nil
}

// ownerOf returns the user a write belongs to.
func ownerOf(w backend.Write) string {
	if id := w.Row.String("user_id"); id != "" {
		return id
	}
	for _, c := range w.Where {
		if c.Column == "user_id" && c.Op == backend.OpEq {
			if id, ok := c.Value.(string); ok {
				return id
			}
		}
	}
	return ""
}

// LastStats returns the statistics of the last run, or nil.
func (j *DrainSyncQueueJob) LastStats() *DrainStats {
	if v := j.lastReport.Load(); v != nil {
		return v.(*DrainStats)
	}
	return nil
}
