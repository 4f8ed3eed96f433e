// Package scheduler runs cache, migrate and clear jobs one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/joblock"
	"github.com/erp/weclapp-migration/internal/infrastructure/logger"
)

// lockKey is shared by every process working on the same destination
const lockKey = "jobs"

// Submission and lookup errors
var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrJobQueueFull        = errors.New("job queue is full")
	ErrJobNotFound         = errors.New("job not found")
	// ErrInvalidJob rejects a job whose type, kind and filter do not fit together
	ErrInvalidJob = errors.New("invalid job")
)

// JobExecutor performs the work of a job
type JobExecutor interface {
	Execute(ctx context.Context, job Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	QueueSize   int
	JobTimeout  time.Duration
	LockTTL     time.Duration
	HistorySize int
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		QueueSize:   16,
		JobTimeout:  6 * time.Hour,
		LockTTL:     6*time.Hour + time.Minute,
		HistorySize: 100,
	}
}

// Scheduler executes jobs sequentially on a single worker.
// A job lock keeps other processes from running jobs at the same time.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	locker   joblock.Locker
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	history   []*Job
	byID      map[uuid.UUID]*Job
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, locker joblock.Locker, logger *zap.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.LockTTL <= 0 {
		config.LockTTL = config.JobTimeout + time.Minute
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if locker == nil {
		locker = joblock.NewMemoryLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		locker:   locker,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		byID:     make(map[uuid.UUID]*Job),
	}
}

// Start starts the worker
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.worker(ctx)

	s.logger.Info("Job scheduler started",
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the running job between items and waits for the worker
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job and returns its pending state
func (s *Scheduler) Submit(job *Job) (Job, error) {
	if err := job.Validate(); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return Job{}, ErrSchedulerNotRunning
	}
	select {
	case s.jobs <- job:
	default:
		return Job{}, ErrJobQueueFull
	}
	s.rememberLocked(job)
	s.logger.Debug("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.String("kind", job.Kind),
	)
	return job.snapshot(), nil
}

// Run executes a job on the calling goroutine and returns its final state.
// The returned error is the job's failure, if any.
func (s *Scheduler) Run(ctx context.Context, job *Job) (Job, error) {
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	s.rememberLocked(job)
	s.mu.Unlock()

	err := s.processJob(ctx, job)
	return s.snapshot(job), err
}

// Get returns the current state of a job
func (s *Scheduler) Get(id uuid.UUID) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// List returns the known jobs, newest first
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, s.history[i].snapshot())
	}
	return out
}

func (s *Scheduler) rememberLocked(job *Job) {
	s.history = append(s.history, job)
	s.byID[job.ID] = job
	// Drop the oldest finished jobs beyond the history size.
	for len(s.history) > s.config.HistorySize {
		oldest := s.history[0]
		if !oldest.Finished() {
			break
		}
		delete(s.byID, oldest.ID)
		s.history = s.history[1:]
	}
}

func (s *Scheduler) snapshot(job *Job) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return job.snapshot()
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.failPending("scheduler stopped")
			return
		case job := <-s.jobs:
			_ = s.processJob(ctx, job)
		}
	}
}

func (s *Scheduler) failPending(reason string) {
	for {
		select {
		case job := <-s.jobs:
			s.mu.Lock()
			job.Fail(reason)
			s.mu.Unlock()
		default:
			return
		}
	}
}

// processJob executes a single job under the job lock
func (s *Scheduler) processJob(ctx context.Context, job *Job) error {
	ctx, log := logger.WithJobID(ctx, s.logger, job.ID.String())

	lease, err := s.locker.Acquire(ctx, lockKey, s.config.LockTTL)
	if err != nil {
		s.mu.Lock()
		job.Fail(err.Error())
		s.mu.Unlock()
		if errors.Is(err, joblock.ErrLocked) {
			log.Warn("Job skipped, another process holds the job lock")
		} else {
			log.Error("Failed to acquire job lock", zap.Error(err))
		}
		return err
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
			log.Warn("Failed to release job lock", zap.Error(err))
		}
	}()

	s.mu.Lock()
	job.Start()
	snapshot := job.snapshot()
	s.mu.Unlock()
	log.Info("Processing job",
		zap.String("type", string(job.Type)),
		zap.String("kind", job.Kind),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err = s.execute(jobCtx, snapshot)
	s.mu.Lock()
	if err != nil {
		job.Fail(err.Error())
	} else {
		job.Complete()
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("Job failed", zap.String("type", string(job.Type)), zap.Error(err))
		return err
	}
	log.Info("Job completed successfully", zap.String("type", string(job.Type)))
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.executor.Execute(ctx, job)
}
