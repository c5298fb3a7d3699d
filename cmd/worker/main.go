// Package main - точка входа для фонового процесса (Worker) study-pace.
//
// Worker отвечает за периодические задачи:
// - Применение миграций схемы
// - Периодическая выгрузка очереди офлайн-записей в бэкенд
// - Выгрузка очереди сразу после восстановления связи с бэкендом
// - Экспорт метрик Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/config"
	"github.com/alem-hub/study-pace/internal/app"
	"github.com/alem-hub/study-pace/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-pace/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/study-pace/internal/interface/http"
	"github.com/alem-hub/study-pace/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст, отменяемый сигналом завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, err := logger.New(logger.Options{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Development: cfg.IsDevelopment(),
		Name:        "worker",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting study-pace worker",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("version", cfg.App.Version),
		zap.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ ДВИЖКА (бэкенд, миграции, очередь, обработчики)
	// ─────────────────────────────────────────────────────────────────────────
	engine, err := app.Build(ctx, cfg, log, app.Options{Registerer: registry})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer func() {
		log.Info("closing connections...")
		if err := engine.Close(); err != nil {
			log.Warn("failed to close connections", zap.Error(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := newScheduler(cfg, engine, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP (метрики, health, очередь и задачи)
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpserver.Server
	if cfg.Observability.MetricsEnabled {
		server = newHTTPServer(cfg, registry, engine, sched, log)
		errCh := server.StartAsync()
		go func() {
			if err := <-errCh; err != nil {
				log.Error("http server failed", zap.Error(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if sched != nil {
		// Записи, оставшиеся с прошлого запуска, выгружаем сразу.
		if _, err := sched.RunNow(ctx, "drain_sync_queue"); err != nil {
			log.Warn("initial drain failed", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	log.Info("study-pace worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, starting graceful shutdown...",
		zap.Duration("timeout", cfg.App.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// 1. Останавливаем планировщик (ждём текущие задачи)
	if sched != nil && sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", zap.Error(err))
		}
	}

	// 2. Останавливаем HTTP сервер
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to stop metrics server", zap.Error(err))
		}
	}

	// 3. Соединения закроются через defer
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newScheduler registers the drain and connectivity jobs. Returns nil when
// the scheduler is disabled.
func newScheduler(cfg *config.Config, engine *app.App, log *zap.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled")
		return nil, nil
	}

	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})
	if err != nil {
		return nil, err
	}
	sched.OnJobError(func(jobName string, err error) {
		engine.Metrics.JobFailed(jobName)
	})

	var lock jobs.Locker
	if engine.DrainLock != nil {
		lock = engine.DrainLock
	}
	drain := jobs.NewDrainSyncQueueJob(engine.Queue, lock, engine.Notifier, log, jobs.DrainSyncQueueConfig{
		Timeout: cfg.Scheduler.DrainTimeout,
	})
	if err := sched.Register(drain, scheduler.NewIntervalSchedule(cfg.Scheduler.DrainInterval)); err != nil {
		return nil, err
	}

	if engine.Prober != nil {
		watch := jobs.NewConnectivityWatchJob(engine.Prober, engine.Queue, log, cfg.Scheduler.ProbeTimeout)
		if err := sched.Register(watch, scheduler.NewIntervalSchedule(cfg.Scheduler.ConnectivityInterval)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// newHTTPServer serves health checks, metrics, the sync queue and job status.
func newHTTPServer(cfg *config.Config, registry *prometheus.Registry, engine *app.App, sched *scheduler.Scheduler, log *zap.Logger) *httpserver.Server {
	health := httpserver.NewHealthChecker(cfg.App.Version, cfg.Scheduler.ProbeTimeout)
	health.AddCheck("circuit_breaker", func(context.Context) error {
		if engine.Breaker.IsOpen() {
			return errors.New("backend circuit is open")
		}
		return nil
	})
	if engine.Prober != nil {
		health.AddCheck("postgres", httpserver.PingCheck(engine.Prober))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Addr = cfg.Observability.MetricsAddr
	deps := httpserver.Dependencies{
		Logger:   log,
		Health:   health,
		Gatherer: registry,
		Queue:    engine.Queue,
	}
	if sched != nil {
		deps.Jobs = sched
	}
	return httpserver.NewServer(httpCfg, deps)
}
