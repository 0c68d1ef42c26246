// Package main - точка входа для фонового процесса (Worker) Progress Hub.
//
// Worker по расписанию пересчитывает прогресс всех учеников и дописывает
// снапшоты в журнал. Между запусками он держит кеш конфигурации фаз
// актуальным, слушая уведомления об инвалидации из Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auri-hub/progress-hub/config"
	"github.com/auri-hub/progress-hub/internal/bootstrap"
	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/auri-hub/progress-hub/internal/infrastructure/scheduler"
	"github.com/auri-hub/progress-hub/internal/infrastructure/scheduler/jobs"
	probe "github.com/auri-hub/progress-hub/internal/interface/http"
	"github.com/auri-hub/progress-hub/pkg/logger"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	if !cfg.Worker.Enabled {
		fmt.Fprintln(os.Stderr, "worker disabled (WORKER_ENABLED=false)")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, slogger := bootstrap.NewLoggers(cfg.Observability, os.Stdout)
	log.Info("starting Progress Hub Worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("schedule", cfg.Worker.Schedule),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К ХРАНИЛИЩАМ
	// ─────────────────────────────────────────────────────────────────────────
	c, err := bootstrap.New(ctx, cfg, log, slogger, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		log.Info("closing connections...")
		c.Close()
	}()

	// Без каталога учеников воркеру нечего обходить
	if c.DB == nil {
		return errors.New("worker requires DATABASE_URL: the learner catalog lives in PostgreSQL")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	applied, err := postgres.NewMigrator(c.DB).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date", logger.Int("applied", applied))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНВАЛИДАЦИЯ КЕША ФАЗ
	// ─────────────────────────────────────────────────────────────────────────
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := c.WatchPhaseInvalidations(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("phase invalidation watcher stopped", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	schedule, err := scheduler.ParseSchedule(cfg.Worker.Schedule)
	if err != nil {
		return fmt.Errorf("invalid WORKER_SCHEDULE: %w", err)
	}

	jobCfg := jobs.DefaultSnapshotProgressConfig()
	jobCfg.Concurrency = cfg.Worker.Concurrency
	jobCfg.PageSize = cfg.Worker.PageSize
	jobCfg.Timeout = cfg.Worker.JobTimeout
	jobCfg.LockTTL = cfg.Worker.LockTTL
	jobCfg.Owner = workerID()

	// Блокировка нужна только при нескольких воркерах, а они видят друг друга через Redis
	var locker jobs.Locker
	if c.Redis != nil {
		locker = c.Redis
	}

	snapshotJob := jobs.NewSnapshotProgressJob(c.Learners, c.Recompute, locker, c.Clock, slogger, jobCfg)

	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = slogger
	schedCfg.Clock = timeutil.ClockFunc(func() time.Time {
		return time.Now().In(cfg.App.Location)
	})
	sched := scheduler.NewScheduler(schedCfg)

	if err := sched.Register(snapshotJob, schedule); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	sched.OnJobComplete(func(result scheduler.JobResult) {
		if stats := snapshotJob.LastStats(); stats != nil && result.JobName == snapshotJob.Name() {
			log.Info("snapshot run summary",
				logger.Int("total", stats.Total),
				logger.Int("written", stats.Written),
				logger.Int("failed", stats.Failed),
				logger.Bool("success", result.Success),
			)
		}
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. PROBE SERVER (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var probeServer *probe.Server
	var probeErr <-chan error
	if cfg.Worker.HealthAddr != "" {
		health := probe.NewHealthChecker(cfg.App.Version)
		health.AddCheck("database", probe.NewPingCheck(c.DB), true)
		if c.Redis != nil {
			health.AddCheck("redis", probe.NewPingCheck(c.Redis), false)
		}
		health.AddCheck("phase_config", probe.NewPhaseConfigCheck(c.Phases), false)

		probeCfg := probe.DefaultConfig()
		probeCfg.Addr = cfg.Worker.HealthAddr
		probeServer = probe.NewServer(probeCfg, probe.Dependencies{
			Logger: log,
			Health: health,
			Status: func() any { return newWorkerStatus(sched, snapshotJob) },
		})
		probeErr = probeServer.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Progress Hub Worker is running")

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-probeErr:
		// Канал закрывается только после остановки сервера, nil здесь не ожидается
		if err != nil {
			log.Error("probe server failed", logger.Err(err))
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	stopWatch()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancelShutdown()
	if probeServer != nil {
		if err := probeServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("probe server shutdown failed", logger.Err(err))
		}
	}

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out, in-flight run abandoned")
	}

	log.Info("shutdown completed successfully")
	return nil
}

// workerID identifies this process in the job lock.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// workerStatus is served at /status.
type workerStatus struct {
	Jobs         []jobStatus         `json:"jobs"`
	Executions   int64               `json:"executions"`
	Failures     int64               `json:"failures"`
	SuccessRate  float64             `json:"success_rate"`
	LastSnapshot *jobs.SnapshotStats `json:"last_snapshot,omitempty"`
}

type jobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int64     `json:"run_count"`
	FailCount int64     `json:"fail_count"`
	SkipCount int64     `json:"skip_count"`
	LastError string    `json:"last_error,omitempty"`
}

func newWorkerStatus(sched *scheduler.Scheduler, job *jobs.SnapshotProgressJob) workerStatus {
	metrics := sched.GetMetrics().Snapshot()
	status := workerStatus{
		Executions:   metrics.TotalExecutions,
		Failures:     metrics.TotalFailures,
		SuccessRate:  metrics.SuccessRate,
		LastSnapshot: job.LastStats(),
	}
	for _, info := range sched.ListJobs() {
		js := jobStatus{
			Name:      info.Name,
			Schedule:  info.Schedule,
			Running:   info.Running,
			LastRun:   info.LastRun,
			NextRun:   info.NextRun,
			RunCount:  info.RunCount,
			FailCount: info.FailCount,
			SkipCount: info.SkipCount,
		}
		if info.LastResult != nil && info.LastResult.Error != nil {
			js.LastError = info.LastResult.Error.Error()
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status
}
