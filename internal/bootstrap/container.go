// Package bootstrap wires configuration into the engine, its ledgers and the
// snapshot writer. It is shared by the worker and the progressctl CLI.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/auri-hub/progress-hub/config"
	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/application/query"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/level"
	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/auri-hub/progress-hub/internal/infrastructure/persistence/sqlite"
	"github.com/auri-hub/progress-hub/internal/infrastructure/phasefile"
	"github.com/auri-hub/progress-hub/pkg/circuitbreaker"
	"github.com/auri-hub/progress-hub/pkg/logger"
	"github.com/auri-hub/progress-hub/pkg/retry"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// NewLoggers builds the engine logger and the slog logger used by the
// scheduler, both writing to w with the configured level and format.
func NewLoggers(cfg config.ObservabilityConfig, w io.Writer) (*logger.Logger, *slog.Logger) {
	if w == nil {
		w = os.Stderr
	}

	log := logger.New(logger.Options{
		Output:    w,
		Level:     logger.ParseLevel(cfg.LogLevel),
		Format:    logger.ParseFormat(cfg.LogFormat),
		AddCaller: true,
	})

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if logger.ParseFormat(cfg.LogFormat) == logger.FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return log, slog.New(handler)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTAINER
// ══════════════════════════════════════════════════════════════════════════════

// Options adjust what New connects to.
type Options struct {
	// SkipRedis leaves Redis unconnected regardless of config.
	SkipRedis bool

	// SnapshotDBPath overrides the SQLite path used without Postgres.
	SnapshotDBPath string

	// Clock overrides the system clock.
	Clock timeutil.Clock
}

// Container holds the wired collaborators. Optional pieces are nil when
// their backing service is not configured.
type Container struct {
	Config *config.Config
	Log    *logger.Logger
	Slog   *slog.Logger
	Clock  timeutil.Clock

	DB      *postgres.Connection
	Redis   *redis.Cache
	SQLite  *sqlite.SnapshotStore
	Breaker *circuitbreaker.CircuitBreaker

	Learners   *postgres.LearnerRepository
	Overrides  level.OverrideLedger
	PhaseStore *postgres.PhaseConfigRepository
	Phases     phase.Source
	Snapshots  progress.SnapshotRepository

	// PhaseCache is the in-process cache, nil when disabled.
	PhaseCache *phase.CachedSource

	// SharedPhaseCache is the Redis layer, nil unless the redis backend is used.
	SharedPhaseCache *redis.PhaseConfigCache

	Engine        *query.ComputeProgressHandler
	WriteSnapshot *command.WriteSnapshotHandler
	Recompute     *command.RecomputeProgressHandler

	closers []func()
}

// New connects the configured backends and wires the handlers.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, slogger *slog.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.Discard()
	}
	if slogger == nil {
		slogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	c := &Container{Config: cfg, Log: log, Slog: slogger, Clock: clock}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	c.Breaker = circuitbreaker.LedgerBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}, postgres.IsOutage)

	if err := c.openDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.openSnapshots(opts); err != nil {
		return nil, err
	}
	if !opts.SkipRedis {
		c.openRedis(ctx)
	}
	if err := c.buildPhaseSource(); err != nil {
		return nil, err
	}

	var pauses learner.PauseLedger
	if c.Learners != nil {
		pauses = c.Learners
	}

	engineCfg := query.DefaultComputeProgressConfig()
	engineCfg.DefaultPhaseName = cfg.Progress.DefaultPhaseName
	engineCfg.TraceInfo = cfg.Progress.TraceInfo

	c.Engine = query.NewComputeProgressHandler(
		learner.NewActiveDaysCalculator(pauses),
		c.Overrides,
		c.Phases,
		clock,
		engineCfg,
		log,
	)
	c.WriteSnapshot = command.NewWriteSnapshotHandler(c.Snapshots, clock)
	c.Recompute = command.NewRecomputeProgressHandler(
		c.Engine,
		c.WriteSnapshot,
		retry.DatabaseRetrier(cfg.Worker.SnapshotRetries),
		log,
	)

	ok = true
	return c, nil
}

func (c *Container) openDatabase(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		c.Log.Info("no database configured, ledgers disabled")
		return nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = c.Config.Database.URL
	pgCfg.MaxConns = int32(c.Config.Database.MaxConns)
	pgCfg.MinConns = int32(c.Config.Database.MinConns)
	pgCfg.MaxConnLifetime = c.Config.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = c.Config.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	c.DB = conn
	c.closers = append(c.closers, conn.Close)

	c.Learners = postgres.NewLearnerRepository(conn, c.Breaker)
	c.Overrides = postgres.NewOverrideRepository(conn, c.Breaker)
	c.PhaseStore = postgres.NewPhaseConfigRepository(conn, c.Breaker)
	c.Snapshots = postgres.NewSnapshotRepository(conn)
	return nil
}

func (c *Container) openSnapshots(opts Options) error {
	if c.Snapshots != nil {
		return nil
	}
	path := opts.SnapshotDBPath
	if path == "" {
		path = c.Config.Database.SnapshotDBPath
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	c.SQLite = store
	c.Snapshots = store
	c.closers = append(c.closers, func() { _ = store.Close() })
	c.Log.Info("using local snapshot store", logger.String("path", path))
	return nil
}

// openRedis connects to Redis when configured. Redis is optional: a failed
// connection is logged and the process continues without it.
func (c *Container) openRedis(ctx context.Context) {
	rc := c.Config.Redis
	if rc.Disabled {
		return
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = rc.Host
	redisCfg.Port = rc.Port
	redisCfg.Password = rc.Password
	redisCfg.DB = rc.DB
	redisCfg.PoolSize = rc.PoolSize
	redisCfg.MinIdleConns = rc.MinIdleConns
	redisCfg.DialTimeout = rc.DialTimeout
	redisCfg.ReadTimeout = rc.ReadTimeout
	redisCfg.WriteTimeout = rc.WriteTimeout

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		c.Log.Warn("redis unavailable, continuing without it", logger.Err(err))
		return
	}
	c.Redis = cache
	c.closers = append(c.closers, func() { _ = cache.Close() })
}

func (c *Container) buildPhaseSource() error {
	pc := c.Config.Progress

	var source phase.Source
	switch pc.PhaseSource {
	case config.PhaseSourceFile:
		source = phasefile.NewSource(pc.PhaseFile)
	case config.PhaseSourcePostgres:
		if c.PhaseStore == nil {
			return fmt.Errorf("phase source %q requires a database", pc.PhaseSource)
		}
		source = c.PhaseStore
	default:
		return fmt.Errorf("unknown phase source %q", pc.PhaseSource)
	}

	switch pc.PhaseCacheBackend {
	case config.CacheBackendRedis:
		if c.Redis != nil {
			c.SharedPhaseCache = redis.NewPhaseConfigCache(c.Redis, source, pc.PhaseCacheTTL, c.Slog)
			source = c.SharedPhaseCache
		}
		c.PhaseCache = phase.NewCachedSource(source, pc.PhaseCacheTTL)
		source = c.PhaseCache
	case config.CacheBackendMemory:
		c.PhaseCache = phase.NewCachedSource(source, pc.PhaseCacheTTL)
		source = c.PhaseCache
	}

	c.Phases = source
	return nil
}

// WatchPhaseInvalidations drops the in-process phase cache whenever another
// process publishes a new config. It blocks until ctx is done and returns
// immediately when Redis or the in-process cache is not in use.
func (c *Container) WatchPhaseInvalidations(ctx context.Context) error {
	if c.Redis == nil || c.PhaseCache == nil {
		return nil
	}
	return c.Redis.WatchInvalidations(ctx, func() {
		c.PhaseCache.Invalidate()
		c.Log.Info("phase config cache invalidated")
	})
}

// PhaseInvalidator returns the cache layer to notify after publishing, or nil.
func (c *Container) PhaseInvalidator() command.CacheInvalidator {
	if c.SharedPhaseCache != nil {
		return c.SharedPhaseCache
	}
	return nil
}

// Close releases every opened backend in reverse order. Safe to call twice.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
