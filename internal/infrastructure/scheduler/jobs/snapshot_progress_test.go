package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/internal/application/command"
	"github.com/auri-hub/progress-hub/internal/domain/learner"
	"github.com/auri-hub/progress-hub/internal/domain/progress"
	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

var runAt = time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC)

type catalog struct {
	learners []*learner.Learner
	pages    int
	err      error
}

func newCatalog(n int) *catalog {
	c := &catalog{}
	for i := 0; i < n; i++ {
		c.learners = append(c.learners, &learner.Learner{
			ID:         fmt.Sprintf("l%03d", i),
			EnrolledAt: runAt.AddDate(0, 0, -i),
		})
	}
	return c
}

func (c *catalog) List(_ context.Context, opts learner.ListOptions) ([]*learner.Learner, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.pages++
	var out []*learner.Learner
	for _, l := range c.learners {
		if l.ID > opts.AfterID && len(out) < opts.Limit {
			out = append(out, l)
		}
	}
	return out, nil
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	at   []time.Time
	dry  []bool
	fail map[string]bool
	skip map[string]bool
}

func (r *recorder) Handle(_ context.Context, cmd command.RecomputeProgressCommand) (*command.RecomputeProgressResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, cmd.Learner.ID)
	r.at = append(r.at, cmd.At)
	r.dry = append(r.dry, cmd.DryRun)

	res := &command.RecomputeProgressResult{Result: progress.Result{EffectiveLevel: 1}}
	if r.fail[cmd.Learner.ID] {
		return res, errors.New("snapshot store down")
	}
	if !r.skip[cmd.Learner.ID] {
		res.Snapshot = &progress.Snapshot{LearnerID: cmd.Learner.ID}
	}
	return res, nil
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) AcquireLock(context.Context, string, string, time.Duration) error {
	if l.held {
		return errors.New("lock held")
	}
	l.held = true
	return nil
}

func (l *fakeLocker) ReleaseLock(context.Context, string, string) error {
	l.released = true
	l.held = false
	return nil
}

func newJob(c *catalog, r *recorder, locker Locker) *SnapshotProgressJob {
	cfg := DefaultSnapshotProgressConfig()
	cfg.PageSize = 4
	cfg.Concurrency = 3
	return NewSnapshotProgressJob(c, r, locker, timeutil.FixedClock{At: runAt},
		slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestSnapshotProgressJob_ProcessesEveryLearner(t *testing.T) {
	c := newCatalog(10)
	r := &recorder{skip: map[string]bool{"l003": true}}
	job := newJob(c, r, nil)

	require.NoError(t, job.Run(context.Background()))

	sort.Strings(r.seen)
	require.Len(t, r.seen, 10)
	assert.Equal(t, "l000", r.seen[0])
	assert.Equal(t, "l009", r.seen[9])
	assert.Equal(t, 3, c.pages)
	for _, at := range r.at {
		assert.Equal(t, runAt, at)
	}

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 9, stats.Written)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 10, stats.Levels[1])
}

func TestSnapshotProgressJob_ExactPageBoundary(t *testing.T) {
	c := newCatalog(8)
	job := newJob(c, &recorder{}, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, c.pages)
	assert.Equal(t, 8, job.LastStats().Total)
}

func TestSnapshotProgressJob_FailureRate(t *testing.T) {
	c := newCatalog(4)
	r := &recorder{fail: map[string]bool{"l000": true}}
	job := newJob(c, r, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"l000"}, job.LastStats().FailedIDs)

	r.fail = map[string]bool{"l000": true, "l001": true, "l002": true}
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 4")
}

func TestSnapshotProgressJob_CatalogError(t *testing.T) {
	c := &catalog{err: errors.New("db down")}
	job := newJob(c, &recorder{}, nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, c.err)
}

func TestSnapshotProgressJob_Lock(t *testing.T) {
	c := newCatalog(2)
	locker := &fakeLocker{}
	job := newJob(c, &recorder{}, locker)

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, locker.released)

	locker.held = true
	r := &recorder{}
	job = newJob(c, r, locker)
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Empty(t, r.seen)
}

func TestSnapshotProgressJob_Metadata(t *testing.T) {
	job := newJob(newCatalog(0), &recorder{}, nil)
	assert.Equal(t, "snapshot_progress", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, job.LastStats().Total)
}

func TestSnapshotProgressJob_DryRunIsForwarded(t *testing.T) {
	cfg := DefaultSnapshotProgressConfig()
	cfg.DryRun = true
	r := &recorder{}
	job := NewSnapshotProgressJob(newCatalog(3), r, nil, timeutil.FixedClock{At: runAt}, nil, cfg)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []bool{true, true, true}, r.dry)
}
