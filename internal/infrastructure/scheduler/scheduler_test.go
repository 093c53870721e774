package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestIntervalScheduleNext(t *testing.T) {
	s := NewIntervalSchedule(time.Hour)
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Hour), s.Next(now))
	assert.Equal(t, "@every 1h0m0s", s.String())
}

func TestDailyScheduleNextSameDay(t *testing.T) {
	s := NewDailySchedule(4, 0)
	now := time.Date(2026, time.March, 10, 2, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, time.March, 10, 4, 0, 0, 0, time.UTC), s.Next(now))
}

func TestDailyScheduleNextRollsToTomorrow(t *testing.T) {
	s := NewDailySchedule(4, 0)

	after := time.Date(2026, time.March, 10, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 11, 4, 0, 0, 0, time.UTC), s.Next(after))

	evening := time.Date(2026, time.March, 10, 22, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 11, 4, 0, 0, 0, time.UTC), s.Next(evening))
	assert.Equal(t, "@daily 04:00", s.String())
}

func TestRegisterRejectsNilAndDuplicates(t *testing.T) {
	s := New(Config{})
	job := &countingJob{name: "job-a"}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)

	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
}

func TestRunNow(t *testing.T) {
	s := New(Config{})
	job := &countingJob{name: "job-a"}
	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "job-a")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "job-a", result.JobName)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(Config{})

	_, err := s.RunNow(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNowReportsJobFailure(t *testing.T) {
	s := New(Config{})
	jobErr := errors.New("drift repair failed")
	job := &countingJob{name: "job-a", err: jobErr}
	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "job-a")

	assert.ErrorIs(t, err, jobErr)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, jobErr)
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(Config{})

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	assert.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestDisableJob(t *testing.T) {
	s := New(Config{})
	job := &countingJob{name: "job-a"}
	assert.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	assert.NoError(t, s.DisableJob("job-a"))
	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)

	jobs := s.ListJobs()
	assert.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)
}

func TestListJobs(t *testing.T) {
	s := New(Config{})
	assert.NoError(t, s.Register(&countingJob{name: "job-a"}, NewIntervalSchedule(time.Hour)))
	assert.NoError(t, s.Register(&countingJob{name: "job-b"}, NewDailySchedule(4, 0)))

	jobs := s.ListJobs()

	assert.Len(t, jobs, 2)
	for _, info := range jobs {
		assert.True(t, info.Enabled)
		assert.False(t, info.NextRun.IsZero())
	}
}
