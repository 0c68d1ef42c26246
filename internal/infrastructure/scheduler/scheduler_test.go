package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auri-hub/progress-hub/pkg/timeutil"
)

type testJob struct {
	name    string
	calls   atomic.Int32
	err     error
	release chan struct{}
	started chan struct{}
}

func (j *testJob) Name() string        { return j.name }
func (j *testJob) Description() string { return "test job " + j.name }

func (j *testJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.release != nil {
		select {
		case <-j.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  timeutil.FixedClock{At: t0},
	})
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()
	job := &testJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&testJob{name: "b"}, nil), ErrNilSchedule)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, t0.Add(time.Hour), infos[0].NextRun)
	assert.Equal(t, "@every 1h0m0s", infos[0].Schedule)
}

func TestScheduler_RunDue(t *testing.T) {
	s := newTestScheduler()
	job := &testJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	s.runDue(context.Background(), t0.Add(30*time.Minute))
	s.wg.Wait()
	assert.Equal(t, int32(0), job.calls.Load())

	s.runDue(context.Background(), t0.Add(time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(1), job.calls.Load())

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, t0.Add(2*time.Hour), info.NextRun)
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	s := newTestScheduler()
	job := &testJob{name: "slow", release: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))

	s.runDue(context.Background(), t0.Add(time.Minute))
	<-job.started
	s.runDue(context.Background(), t0.Add(2*time.Minute))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobInFlight)

	close(job.release)
	s.wg.Wait()

	info := s.ListJobs()[0]
	assert.Equal(t, int32(1), job.calls.Load())
	assert.Equal(t, int64(1), info.SkipCount)
	assert.False(t, info.Running)
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register(&testJob{name: "a", err: boom}, NewIntervalSchedule(time.Hour)))

	var mu sync.Mutex
	var completed []JobResult
	s.OnJobComplete(func(r JobResult) {
		mu.Lock()
		completed = append(completed, r)
		mu.Unlock()
	})

	res, err := s.RunNow(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Manual)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Len(t, completed, 1)
	assert.Len(t, s.GetHistory(10), 1)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)
	assert.Equal(t, int64(1), s.GetMetrics().Snapshot().TotalFailures)
}

type panickyJob struct{}

func (panickyJob) Name() string              { return "panicky" }
func (panickyJob) Description() string       { return "" }
func (panickyJob) Run(context.Context) error { panic("kaboom") }

func TestScheduler_RecoversPanics(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(panickyJob{}, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "panicky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
