package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	delay time.Duration
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
		}
	}
	return j.err
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, err)
	return s
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(t)
	job := &countingJob{name: "drain"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)

	info, err := s.GetJobInfo("drain")
	require.NoError(t, err)
	assert.Equal(t, "@every 1m0s", info.Schedule)
	assert.Len(t, s.ListJobs(), 1)

	_, err = s.GetJobInfo("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler(t)
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(bad, NewCronSchedule("0 3 * * *")))

	var failed string
	s.OnJobError(func(name string, err error) { failed = name })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.Error(t, err)
	assert.Equal(t, "bad", failed)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	info, err := s.GetJobInfo("bad")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.RunCount)
	assert.EqualValues(t, 1, info.FailCount)
	assert.Len(t, s.GetHistory(0), 2)
	assert.Len(t, s.GetHistory(1), 1)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := newTestScheduler(t)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(20*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := newTestScheduler(t)
	var running, maxRunning atomic.Int32
	job := &overlapJob{running: &running, max: &maxRunning}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.EqualValues(t, 1, maxRunning.Load())
}

type overlapJob struct {
	running *atomic.Int32
	max     *atomic.Int32
}

func (j *overlapJob) Name() string        { return "slow" }
func (j *overlapJob) Description() string { return "slow job" }
func (j *overlapJob) Run(ctx context.Context) error {
	n := j.running.Add(1)
	defer j.running.Add(-1)
	for {
		cur := j.max.Load()
		if n <= cur || j.max.CompareAndSwap(cur, n) {
			break
		}
	}
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
	}
	return nil
}
