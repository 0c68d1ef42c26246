// Package jobs contains the scheduled jobs run by the progress worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PROGRESS JOB
// ══════════════════════════════════════════════════════════════════════════════

// LearnerLister pages through the learner catalog.
type LearnerLister interface {
	List(ctx context.Context, opts learner.ListOptions) ([]*learner.Learner, error)
}

// Recomputer computes progress for one learner and records a snapshot.
type Recomputer interface {
	Handle(ctx context.Context, cmd command.RecomputeProgressCommand) (*command.RecomputeProgressResult, error)
}

// Locker is a cluster-wide lock. Implemented by the Redis cache.
type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, name, owner string) error
}

// ErrLockNotAcquired is reported when another worker holds the job lock.
var ErrLockNotAcquired = errors.New("snapshot_progress: lock held by another worker")

// SnapshotProgressJob recomputes progress for every learner and appends a
// snapshot per learner. All learners in one run share the same reference
// instant, so a run is a consistent cut.
type SnapshotProgressJob struct {
	learners   LearnerLister
	recomputer Recomputer
	locker     Locker
	clock      timeutil.Clock
	logger     *slog.Logger
	config     SnapshotProgressConfig

	lastStats atomic.Pointer[SnapshotStats]
}

// SnapshotProgressConfig contains configuration for the job.
type SnapshotProgressConfig struct {
	// Concurrency is the number of learners processed in parallel.
	Concurrency int

	// PageSize is the number of learners fetched per catalog page.
	PageSize int

	// Timeout bounds a whole run.
	Timeout time.Duration

	// IncludeCancelled also snapshots learners with a cancelled subscription.
	IncludeCancelled bool

	// LockTTL is how long the cluster lock is held. Zero disables locking.
	LockTTL time.Duration

	// Owner identifies this worker in the lock.
	Owner string

	// MaxFailureRate fails the run when exceeded (0..1).
	MaxFailureRate float64

	// DryRun computes every learner without writing snapshots.
	DryRun bool
}

// DefaultSnapshotProgressConfig returns sensible defaults.
func DefaultSnapshotProgressConfig() SnapshotProgressConfig {
	return SnapshotProgressConfig{
		Concurrency:    8,
		PageSize:       200,
		Timeout:        30 * time.Minute,
		LockTTL:        10 * time.Minute,
		Owner:          "worker",
		MaxFailureRate: 0.5,
	}
}

// SnapshotStats contains statistics from one run.
type SnapshotStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	ReferenceAt time.Time
	Total       int
	Written     int
	Skipped     int
	Failed      int

	// Levels counts learners per effective level.
	Levels    map[int]int
	FailedIDs []string
}

// NewSnapshotProgressJob creates the job. locker and logger may be nil.
func NewSnapshotProgressJob(
	learners LearnerLister,
	recomputer Recomputer,
	locker Locker,
	clock timeutil.Clock,
	logger *slog.Logger,
	config SnapshotProgressConfig,
) *SnapshotProgressJob {
	defaults := DefaultSnapshotProgressConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}
	if config.Owner == "" {
		config.Owner = defaults.Owner
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SnapshotProgressJob{
		learners:   learners,
		recomputer: recomputer,
		locker:     locker,
		clock:      clock,
		logger:     logger.With("job", "snapshot_progress"),
		config:     config,
	}
}

// Name returns the job name.
func (j *SnapshotProgressJob) Name() string {
	return "snapshot_progress"
}

// Description returns a human-readable description.
func (j *SnapshotProgressJob) Description() string {
	return "Recomputes progress for all learners and appends snapshots"
}

// Run executes the job.
func (j *SnapshotProgressJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil && j.config.LockTTL > 0 {
		if err := j.locker.AcquireLock(ctx, j.Name(), j.config.Owner, j.config.LockTTL); err != nil {
			j.logger.Info("snapshot run skipped, lock not acquired", "error", err)
			return fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
		}
		defer func() {
			if err := j.locker.ReleaseLock(context.WithoutCancel(ctx), j.Name(), j.config.Owner); err != nil {
				j.logger.Warn("failed to release job lock", "error", err)
			}
		}()
	}

	stats := &SnapshotStats{
		StartedAt: j.clock.Now(),
		Levels:    make(map[int]int),
	}
	stats.ReferenceAt = stats.StartedAt

	j.logger.Info("starting snapshot run", "reference_at", stats.ReferenceAt.Format(time.RFC3339))

	err := j.processAll(ctx, stats)

	stats.CompletedAt = j.clock.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("snapshot run completed",
		"duration", stats.Duration.String(),
		"total", stats.Total,
		"written", stats.Written,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	if err != nil {
		return err
	}
	if stats.Total > 0 {
		rate := float64(stats.Failed) / float64(stats.Total)
		if rate > j.config.MaxFailureRate {
			return fmt.Errorf("snapshot failed for %d of %d learners", stats.Failed, stats.Total)
		}
	}
	return nil
}

// processAll pages through the catalog, fanning each page out to workers.
func (j *SnapshotProgressJob) processAll(ctx context.Context, stats *SnapshotStats) error {
	var mu sync.Mutex
	opts := learner.ListOptions{Limit: j.config.PageSize, IncludeCancelled: j.config.IncludeCancelled}

	for {
		page, err := j.learners.List(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to list learners: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.config.Concurrency)

		for _, l := range page {
			g.Go(func() error {
				j.processOne(gctx, l, stats, &mu)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}
		if len(page) < opts.Limit {
			return nil
		}
		opts.AfterID = page[len(page)-1].ID
	}
}

func (j *SnapshotProgressJob) processOne(ctx context.Context, l *learner.Learner, stats *SnapshotStats, mu *sync.Mutex) {
	res, err := j.recomputer.Handle(ctx, command.RecomputeProgressCommand{
		Learner: l,
		At:      stats.ReferenceAt,
		DryRun:  j.config.DryRun,
	})

	mu.Lock()
	defer mu.Unlock()

	stats.Total++
	if res != nil {
		stats.Levels[res.Result.EffectiveLevel]++
	}
	switch {
	case err != nil:
		stats.Failed++
		stats.FailedIDs = append(stats.FailedIDs, l.ID)
		j.logger.Error("failed to snapshot learner", "learner_id", l.ID, "error", err)
	case res == nil || res.Snapshot == nil:
		stats.Skipped++
	default:
		stats.Written++
	}
}

// LastStats returns statistics from the last run, or nil.
func (j *SnapshotProgressJob) LastStats() *SnapshotStats {
	return j.lastStats.Load()
}
