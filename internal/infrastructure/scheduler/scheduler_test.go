package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func quietScheduler() *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(cfg)
}

func TestRegister(t *testing.T) {
	s := quietScheduler()
	job := &countingJob{name: "sweep"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := s.Register(&countingJob{name: "sweep"}, NewIntervalSchedule(time.Minute))
		assert.ErrorIs(t, err, ErrJobAlreadyExists)
	})

	t.Run("nil job rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	})

	t.Run("nil schedule rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Register(&countingJob{name: "other"}, nil), ErrNilSchedule)
	})
}

func TestRunNow(t *testing.T) {
	s := quietScheduler()
	job := &countingJob{name: "digest"}
	require.NoError(t, s.Register(job, MustParseCronExpression(EveryDay7AM)))

	result, err := s.RunNow(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "digest", result.JobName)
	assert.Equal(t, int64(1), job.runs.Load())

	_, err = s.RunNow(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNow_FailureIsRecorded(t *testing.T) {
	s := quietScheduler()
	boom := errors.New("boom")
	job := &countingJob{name: "flaky", err: boom}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "flaky")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Zero(t, snap.SuccessRate)

	info, err := s.GetJobInfo("flaky")
	require.NoError(t, err)
	require.NotNil(t, info.LastResult)
	assert.False(t, info.LastResult.Success)
}

func TestListJobs(t *testing.T) {
	s := quietScheduler()
	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(&countingJob{name: "b"}, MustParseCronExpression(EveryHour)))

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)

	byName := make(map[string]JobInfo, len(jobs))
	for _, info := range jobs {
		byName[info.Name] = info
	}
	assert.Equal(t, "@every 1m0s", byName["a"].Schedule)
	assert.Equal(t, EveryHour, byName["b"].Schedule)
	assert.True(t, byName["a"].Enabled)
	assert.False(t, byName["a"].NextRun.IsZero())
}

func TestEnableDisable(t *testing.T) {
	s := quietScheduler()
	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)))

	require.NoError(t, s.DisableJob("a"))
	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	require.NoError(t, s.EnableJob("a"))
	info, err = s.GetJobInfo("a")
	require.NoError(t, err)
	assert.True(t, info.Enabled)

	assert.ErrorIs(t, s.DisableJob("ghost"), ErrJobNotFound)
}

func TestStartStop(t *testing.T) {
	s := quietScheduler()
	job := &countingJob{name: "fast"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	// The loop ticks once per second; give it enough time to fire the job.
	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	history := s.GetHistory(10)
	assert.NotEmpty(t, history)
}
