package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/joblock"
)

type recordingExecutor struct {
	mu      sync.Mutex
	running int
	maxSeen int
	seen    []JobType
	err     error
	delay   time.Duration
}

func (e *recordingExecutor) Execute(ctx context.Context, job Job) error {
	e.mu.Lock()
	e.running++
	if e.running > e.maxSeen {
		e.maxSeen = e.running
	}
	e.seen = append(e.seen, job.Type)
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	e.running--
	e.mu.Unlock()
	return e.err
}

func waitFinished(t *testing.T, s *Scheduler, id uuid.UUID) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.Get(id)
		return err == nil && job.Finished()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestJob_Validate(t *testing.T) {
	assert.NoError(t, NewJob(JobTypeCache, "", nil).Validate())
	assert.NoError(t, NewJob(JobTypeMigrate, "", nil).Validate())
	assert.NoError(t, NewJob(JobTypeMigrate, "customer", map[string]string{"customerNumber": "1"}).Validate())
	assert.ErrorIs(t, NewJob(JobTypeMigrate, "", map[string]string{"id": "1"}).Validate(), ErrInvalidJob)
	assert.ErrorIs(t, NewJob(JobTypeClear, "", nil).Validate(), ErrInvalidJob)
	assert.ErrorIs(t, NewJob("EXPORT", "", nil).Validate(), ErrInvalidJob)
}

func TestScheduler_RunsJobsOneAtATime(t *testing.T) {
	exec := &recordingExecutor{delay: 20 * time.Millisecond}
	s := NewScheduler(SchedulerConfig{QueueSize: 8}, exec, nil, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	var ids []uuid.UUID
	for _, typ := range []JobType{JobTypeCache, JobTypeMigrate, JobTypeClear} {
		kind := ""
		if typ == JobTypeClear {
			kind = "customer"
		}
		job, err := s.Submit(NewJob(typ, kind, nil))
		require.NoError(t, err)
		assert.Equal(t, JobStatusPending, job.Status)
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		job := waitFinished(t, s, id)
		assert.Equal(t, JobStatusSuccess, job.Status)
		assert.NotNil(t, job.StartedAt)
		assert.NotNil(t, job.CompletedAt)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, 1, exec.maxSeen)
	assert.Equal(t, []JobType{JobTypeCache, JobTypeMigrate, JobTypeClear}, exec.seen)

	listed := s.List()
	require.Len(t, listed, 3)
	assert.Equal(t, ids[2], listed[0].ID)
}

func TestScheduler_RecordsFailures(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("boom")}
	s := NewScheduler(SchedulerConfig{}, exec, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	job, err := s.Submit(NewJob(JobTypeCache, "", nil))
	require.NoError(t, err)
	done := waitFinished(t, s, job.ID)
	assert.Equal(t, JobStatusFailed, done.Status)
	assert.Equal(t, "boom", done.Error)
}

func TestScheduler_SubmitErrors(t *testing.T) {
	s := NewScheduler(SchedulerConfig{QueueSize: 1}, &recordingExecutor{}, nil, nil)

	_, err := s.Submit(NewJob(JobTypeCache, "", nil))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)

	_, err = s.Submit(NewJob(JobTypeClear, "", nil))
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_QueueFull(t *testing.T) {
	block := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, _ Job) error {
		<-block
		return nil
	})
	s := NewScheduler(SchedulerConfig{QueueSize: 1}, exec, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer func() {
		close(block)
		_ = s.Stop(context.Background())
	}()

	first, err := s.Submit(NewJob(JobTypeCache, "", nil))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := s.Get(first.ID)
		return j.Status == JobStatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	_, err = s.Submit(NewJob(JobTypeCache, "", nil))
	require.NoError(t, err)
	_, err = s.Submit(NewJob(JobTypeCache, "", nil))
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

func TestScheduler_RunRespectsTheJobLock(t *testing.T) {
	ctx := context.Background()
	locker := joblock.NewMemoryLocker()
	exec := &recordingExecutor{}
	s := NewScheduler(SchedulerConfig{}, exec, locker, nil)

	lease, err := locker.Acquire(ctx, lockKey, time.Minute)
	require.NoError(t, err)

	job, err := s.Run(ctx, NewJob(JobTypeMigrate, "", nil))
	require.ErrorIs(t, err, joblock.ErrLocked)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Empty(t, exec.seen)

	require.NoError(t, locker.Release(ctx, lease))
	job, err = s.Run(ctx, NewJob(JobTypeMigrate, "", nil))
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, job.Status)

	// The lock is released after the job.
	_, err = locker.Acquire(ctx, lockKey, time.Minute)
	assert.NoError(t, err)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	exec := executorFunc(func(context.Context, Job) error { panic("bad definition") })
	s := NewScheduler(SchedulerConfig{}, exec, nil, nil)

	job, err := s.Run(context.Background(), NewJob(JobTypeCache, "", nil))
	require.Error(t, err)
	assert.Contains(t, job.Error, "bad definition")
}

type executorFunc func(ctx context.Context, job Job) error

func (f executorFunc) Execute(ctx context.Context, job Job) error { return f(ctx, job) }
