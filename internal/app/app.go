// Package app wires the engine from configuration: backend store, sync
// queue, resilience policy and the command/query handlers shared by the
// worker and the planner CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/config"
	"github.com/alem-hub/study-pace/internal/application/command"
	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/application/saga"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/readiness"
	"github.com/alem-hub/study-pace/internal/infrastructure/metrics"
	"github.com/alem-hub/study-pace/internal/infrastructure/notify"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
	"github.com/alem-hub/study-pace/pkg/circuitbreaker"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/retry"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// DrainLockName is the redis lock shared by drains of all workers.
const DrainLockName = "drain_sync_queue"

// Prober checks that the backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// App holds the wired engine.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Calendar timeutil.Calendar
	Metrics  *metrics.Metrics

	// Store is the backend behind the circuit breaker.
	Store    backend.Store
	Breaker  *circuitbreaker.CircuitBreaker
	Queue    *syncqueue.Queue
	Policy   *resilience.Policy
	Writer   *resilience.Writer
	Capacity *query.CapacityReader
	Notifier notify.Notifier

	// Prober is nil when running on the in-memory store.
	Prober Prober

	// Migrator is nil without a database.
	Migrator *postgres.Migrator

	// DrainLock is nil when redis is disabled.
	DrainLock *redis.Lock

	// Queries
	SmartToday     *query.GetSmartTodayHandler
	MissedTasks    *query.GetMissedTasksHandler
	CapacityStatus *query.GetCapacityStatusHandler
	Plans          *query.GetPlansHandler
	Streak         *query.GetStreakHandler

	// Commands
	AddTask             *command.AddTaskHandler
	RecalculateCapacity *command.RecalculateCapacityHandler
	UpdateCapacity      *command.UpdateCapacityHandler
	RecordOverride      *command.RecordOverrideHandler
	RescheduleTask      *command.RescheduleTaskHandler
	SkipTask            *command.SkipTaskHandler
	ToggleTask          *command.ToggleTaskHandler
	DismissSuggestion   *command.DismissSuggestionHandler
	RecordFocusSession  *command.RecordFocusSessionHandler

	// Sagas
	Onboarding *saga.OnboardingSaga

	closers []func() error
}

// Options tune Build.
type Options struct {
	// Registerer receives the collectors. Nil uses the default registry.
	Registerer prometheus.Registerer

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Store replaces the configured backend. Used by tests and dry runs.
	Store backend.Store
}

// Build connects the infrastructure described by cfg and wires the handlers.
// The returned App must be closed.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Clock:    opts.Clock,
		Calendar: timeutil.NewCalendar(cfg.App.Location),
		Metrics:  metrics.New(opts.Registerer),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. BACKEND
	// ─────────────────────────────────────────────────────────────────────────
	store, err := a.openStore(ctx, opts.Store)
	if err != nil {
		return nil, err
	}

	a.Breaker = circuitbreaker.BackendBreaker(cfg.Database.BreakerCooldown,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		circuitbreaker.WithFailureThreshold(cfg.Database.BreakerThreshold),
		circuitbreaker.WithIsFailure(resilience.BreakerFailure),
	)
	a.Store = resilience.NewGuardedStore(store, a.Breaker)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var rdb *redis.Client
	if !cfg.Redis.Disabled {
		rdb, err = connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.DrainLock = redis.NewLock(rdb, DrainLockName, cfg.Scheduler.DrainTimeout)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SYNC QUEUE
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := a.openQueueStorage(ctx, rdb)
	if err != nil {
		return nil, err
	}
	codec, err := syncqueue.CodecByName(cfg.SyncQueue.Codec)
	if err != nil {
		return nil, err
	}
	a.Queue = syncqueue.New(storage, a.Store, log, syncqueue.Config{
		Key:        cfg.SyncQueue.Key,
		MaxRetries: cfg.SyncQueue.MaxRetries,
		Codec:      codec,
		Clock:      a.Clock,
		Observer:   a.Metrics,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. NOTICES
	// ─────────────────────────────────────────────────────────────────────────
	channels := []notify.Notifier{notify.NewLogNotifier(log)}
	if cfg.Observability.PublishNotices && rdb != nil {
		channels = append(channels, notify.NewPubSubNotifier(redis.NewPublisher(rdb), log))
	}
	a.Notifier = notify.NewMulti(log, channels...)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	a.Policy = resilience.NewPolicy(a.Queue, log, resilience.WithRecorder(a.Metrics))
	a.Writer = resilience.NewWriter(a.Store, a.Policy, log)
	a.Capacity = query.NewCapacityReader(a.Store, cfg.Capacity.CacheTTL)

	clk, cal := a.Clock, a.Calendar
	streaks := command.NewStreakRecorder(a.Store, a.Writer, clk, log)

	a.SmartToday = query.NewGetSmartTodayHandler(a.Store, a.Policy, clk, cal, log, a.Metrics)
	a.MissedTasks = query.NewGetMissedTasksHandler(a.Store, clk, cal)
	a.CapacityStatus = query.NewGetCapacityStatusHandler(a.Store, a.Capacity, clk, cal)
	a.Plans = query.NewGetPlansHandler(a.Store)
	a.Streak = query.NewGetStreakHandler(a.Store, clk, cal)

	a.RecordOverride = command.NewRecordOverrideHandler(a.Store, a.Capacity, a.Writer, clk, cal)
	a.AddTask = command.NewAddTaskHandler(a.Store, a.Capacity, a.Writer, a.RecordOverride, clk, cal, log)
	a.RecalculateCapacity = command.NewRecalculateCapacityHandler(a.Store, a.Capacity, a.Policy, clk, log)
	a.UpdateCapacity = command.NewUpdateCapacityHandler(a.Capacity, a.Writer, clk)
	a.RescheduleTask = command.NewRescheduleTaskHandler(a.Writer, clk, cal, log)
	a.SkipTask = command.NewSkipTaskHandler(a.Writer, clk, cal, log)
	a.ToggleTask = command.NewToggleTaskHandler(a.Store, a.Writer, streaks, clk, cal, log)
	a.DismissSuggestion = command.NewDismissSuggestionHandler(a.Writer, clk, cal, log)
	a.RecordFocusSession = command.NewRecordFocusSessionHandler(a.Writer, streaks, clk, cal, log)

	a.Onboarding = saga.NewOnboardingSaga(a.Store, a.Capacity, clk, log)

	log.Info("engine wired",
		zap.Bool("postgres", a.Prober != nil),
		zap.Bool("redis", rdb != nil),
		zap.String("queue_storage", cfg.SyncQueue.Storage),
		zap.String("queue_codec", codec.Name()),
	)
	return a, nil
}

// Readiness returns a readiness handler reading metrics from provider.
func (a *App) Readiness(provider readiness.MetricsProvider) *query.GetReadinessHandler {
	return query.NewGetReadinessHandler(a.Store, provider, a.Capacity, a.Clock, a.Calendar, a.Log)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// INFRASTRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

func (a *App) openStore(ctx context.Context, override backend.Store) (backend.Store, error) {
	cfg, log := a.Config, a.Log
	if override != nil {
		return override, nil
	}
	if !cfg.UsesDatabase() {
		log.Warn("DATABASE_URL is empty, using the in-memory store")
		return memory.NewStore(), nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	}, connectRetryOptions(log, "postgres")...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		conn.Close()
		return nil
	})
	a.Prober = conn
	a.Migrator = postgres.NewMigrator(conn)

	if cfg.Database.AutoMigrate {
		applied, err := a.Migrator.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", zap.Int("applied", applied))
	}

	return postgres.NewStore(conn, log), nil
}

func (a *App) openQueueStorage(ctx context.Context, rdb *redis.Client) (syncqueue.Storage, error) {
	cfg := a.Config.SyncQueue
	switch cfg.Storage {
	case config.StorageMemory:
		return syncqueue.NewMemoryStorage(), nil
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open queue storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StorageRedis:
		if rdb == nil {
			return nil, errors.New("redis queue storage requires redis")
		}
		return redis.NewQueueStorage(rdb), nil
	default:
		return nil, fmt.Errorf("unknown queue storage %q", cfg.Storage)
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	rCfg := redis.DefaultConfig()
	rCfg.URL = cfg.URL
	rCfg.Host = cfg.Host
	rCfg.Port = cfg.Port
	rCfg.Password = cfg.Password
	rCfg.DB = cfg.DB
	rCfg.PoolSize = cfg.PoolSize
	rCfg.MaxRetries = cfg.MaxRetries
	rCfg.DialTimeout = cfg.DialTimeout
	rCfg.ReadTimeout = cfg.ReadTimeout
	rCfg.WriteTimeout = cfg.WriteTimeout

	client, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Client, error) {
		return redis.NewClient(ctx, rCfg)
	}, connectRetryOptions(log, "redis")...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// connectRetryOptions retries start-up connections with 1s, 2s waits.
func connectRetryOptions(log *zap.Logger, target string) []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(time.Second),
		retry.WithRetryIf(func(err error) bool { return resilience.IsNetwork(err) }),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("connection failed, retrying",
				zap.String("target", target),
				logger.RetryCount(attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	}
}
