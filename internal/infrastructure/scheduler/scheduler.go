package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// JobStatus represents the outcome of the last run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Task is the work a job performs on each run
type Task func(ctx context.Context) error

// Job is a named task run every Interval
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout overrides Config.JobTimeout when positive
	Timeout time.Duration
	Run     Task
}

// JobStats describes a registered job for health and admin endpoints
type JobStats struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	Status      JobStatus     `json:"status"`
	Runs        int64         `json:"runs"`
	Failures    int64         `json:"failures"`
	LastError   string        `json:"last_error,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Config holds scheduler configuration
type Config struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		MaxConcurrentJobs: 2,
		JobTimeout:        5 * time.Minute,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

type jobState struct {
	job     Job
	running atomic.Bool

	mu    sync.Mutex
	stats JobStats
}

func (s *jobState) snapshot() JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Scheduler runs the ledger's background jobs on fixed intervals. A job never
// overlaps with itself and at most MaxConcurrentJobs run at once.
type Scheduler struct {
	config Config
	logger *zap.Logger
	sem    *semaphore.Weighted
	now    func() time.Time

	jobs  map[string]*jobState
	order []string

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrentJobs)),
		now:    func() time.Time { return time.Now().UTC() },
		jobs:   make(map[string]*jobState),
	}, nil
}

// Register adds a job. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("%w: job needs a name, a task and a positive interval", ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: duplicate job %q", ErrInvalidConfig, job.Name)
	}
	s.jobs[job.Name] = &jobState{
		job:   job,
		stats: JobStats{Name: job.Name, Interval: job.Interval, Status: JobStatusPending},
	}
	s.order = append(s.order, job.Name)
	return nil
}

// Start starts one ticker loop per registered job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Scheduler is disabled")
		return nil
	}
	s.isRunning = true
	states := make([]*jobState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.jobs[name])
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, st := range states {
		s.wg.Add(1)
		go s.loop(ctx, st)
	}

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(states)),
		zap.Int("max_concurrent_jobs", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for them to return
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
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether Start has been called without Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Trigger runs a job immediately and waits for it. It fails with
// ErrJobAlreadyRunning when a scheduled run is in flight.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if !st.running.CompareAndSwap(false, true) {
		return ErrJobAlreadyRunning
	}
	defer st.running.Store(false)
	return s.execute(ctx, st)
}

// Stats returns the state of every job in registration order
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	states := make([]*jobState, 0, len(s.order))
	for _, name := range s.order {
		states = append(states, s.jobs[name])
	}
	s.mu.Unlock()

	out := make([]JobStats, len(states))
	for i, st := range states {
		out[i] = st.snapshot()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, st *jobState) {
	defer s.wg.Done()

	ticker := time.NewTicker(st.job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !st.running.CompareAndSwap(false, true) {
				s.logger.Debug("Skipping overlapping run", zap.String("job", st.job.Name))
				continue
			}
			_ = s.execute(ctx, st)
			st.running.Store(false)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, st *jobState) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	timeout := s.config.JobTimeout
	if st.job.Timeout > 0 {
		timeout = st.job.Timeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := s.now()
	st.mu.Lock()
	st.stats.Status = JobStatusRunning
	st.stats.StartedAt = &started
	st.mu.Unlock()

	var err error
	telemetry.WithJobLabels(jobCtx, st.job.Name, func(ctx context.Context) {
		err = st.job.Run(ctx)
	})

	completed := s.now()
	st.mu.Lock()
	st.stats.Runs++
	st.stats.CompletedAt = &completed
	if err != nil {
		st.stats.Status = JobStatusFailed
		st.stats.Failures++
		st.stats.LastError = err.Error()
	} else {
		st.stats.Status = JobStatusSuccess
		st.stats.LastError = ""
	}
	st.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", st.job.Name),
			zap.Duration("duration", completed.Sub(started)),
			zap.Error(err),
		)
		return err
	}
	s.logger.Debug("Job completed",
		zap.String("job", st.job.Name),
		zap.Duration("duration", completed.Sub(started)),
	)
	return nil
}
