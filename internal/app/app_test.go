package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/config"
	"github.com/alem-hub/study-pace/internal/application/command"
	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/saga"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/readiness"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-pace/pkg/clock"
)

const student = "33333333-3333-3333-3333-333333333333"

func testConfig(storage string) *config.Config {
	return &config.Config{
		App:       config.AppConfig{Environment: config.EnvDevelopment, Location: time.UTC},
		Database:  config.DatabaseConfig{MaxConns: 1, BreakerThreshold: 5, BreakerCooldown: time.Minute},
		Redis:     config.RedisConfig{Disabled: true},
		SyncQueue: config.SyncQueueConfig{Storage: storage, Codec: config.CodecJSON, Key: "test", MaxRetries: 5},
		Ranking:   config.RankingConfig{MaxSuggestions: 8},
		Capacity:  config.CapacityConfig{CacheTTL: time.Minute},
		Scheduler: config.SchedulerConfig{DrainTimeout: time.Minute},
	}
}

type fixedMetrics readiness.DayMetrics

func (m fixedMetrics) FetchDayMetrics(context.Context) (readiness.DayMetrics, error) {
	return readiness.DayMetrics(m), nil
}

func build(t *testing.T, cfg *config.Config, store *memory.Store) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg, zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
		Clock:      clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		Store:      store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBuild_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := build(t, testConfig(config.StorageMemory), store)

	assert.Nil(t, a.Prober)
	assert.Nil(t, a.DrainLock)

	onboarded, err := a.Onboarding.Execute(ctx, saga.OnboardingInput{
		UserID:  student,
		Answers: persona.Answers{FocusDifficulty: persona.FocusModerate},
	})
	require.NoError(t, err)
	assert.Positive(t, onboarded.Capacity.MaxTasksPerDay)

	today := a.Calendar.Today(a.Clock.Now())
	added, err := a.AddTask.Handle(ctx, command.AddTaskCommand{
		UserID:   student,
		Title:    "Read chapter 3",
		DueDate:  &today,
		Priority: task.PriorityHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, added.Task)

	ranked, err := a.SmartToday.Handle(ctx, query.GetSmartTodayQuery{UserID: student})
	require.NoError(t, err)
	require.Len(t, ranked.Items, 1)
	assert.Equal(t, added.Task.ID, ranked.Items[0].TaskID)

	status, err := a.CapacityStatus.Handle(ctx, query.GetCapacityStatusQuery{UserID: student})
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, 1, status.Usage.TaskCount)

	plans, err := a.Plans.Handle(ctx, query.GetPlansQuery{UserID: student})
	require.NoError(t, err)
	assert.Equal(t, onboarded.Profile.Persona, plans.Persona)

	est, err := a.Readiness(fixedMetrics{SleepHours: 8, HRV: 60}).Handle(ctx, query.GetReadinessQuery{UserID: student})
	require.NoError(t, err)
	assert.True(t, est.Calibrating)
}

func TestBuild_OfflineWritesReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := build(t, testConfig(config.StorageMemory), store)

	today := a.Calendar.Today(a.Clock.Now())
	added, err := a.AddTask.Handle(ctx, command.AddTaskCommand{UserID: student, Title: "Essay", DueDate: &today})
	require.NoError(t, err)

	store.Offline()
	res, err := a.SkipTask.Handle(ctx, command.SkipTaskCommand{
		TaskCommand: command.TaskCommand{UserID: student, TaskID: added.Task.ID},
		Reason:      task.SkipNoTime,
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)

	depth, err := a.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Positive(t, depth)
	assert.Equal(t, float64(depth), testutil.ToFloat64(a.Metrics.QueueDepth))

	store.Online()
	report, err := a.Queue.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, depth, report.Succeeded)
	assert.Zero(t, report.Remaining)
}

func TestBuild_SQLiteQueue(t *testing.T) {
	cfg := testConfig(config.StorageSQLite)
	cfg.SyncQueue.Path = t.TempDir() + "/queue.db"
	cfg.SyncQueue.Codec = config.CodecCBOR

	a := build(t, cfg, memory.NewStore())
	n, err := a.Queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuild_RejectsUnknownStorage(t *testing.T) {
	_, err := Build(context.Background(), testConfig("s3"), zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
		Store:      memory.NewStore(),
	})
	assert.ErrorContains(t, err, "unknown queue storage")
}
