package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
	lockReleaseWait   = 5 * time.Second
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run inside a cycle.
	JobTimeout time.Duration
}

// Service runs the registered jobs every interval. Only the instance holding
// the lock runs a cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// JobResult is the outcome of one job within a cycle.
type JobResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// CycleReport summarizes one cycle. Skipped is set when another instance
// held the lock.
type CycleReport struct {
	Skipped bool
	Jobs    []JobResult
}

// Failed counts the jobs that returned an error or panicked.
func (r CycleReport) Failed() int {
	n := 0
	for _, job := range r.Jobs {
		if job.Err != nil {
			n++
		}
	}
	return n
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	svc := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if svc.registry == nil {
		svc.registry = &Registry{}
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.jobTimeout <= 0 {
		svc.jobTimeout = defaultJobTimeout
	}
	return svc, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

// RunOnce executes a single locked cycle. Job failures are reported, not
// returned; the error covers lock failures only.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncCycleSkipped()
		return CycleReport{Skipped: true}, nil
	}
	defer s.release(ctx)

	s.logg.Info(ctx, "scheduled run starting")
	var report CycleReport
	for _, job := range s.registry.Jobs() {
		report.Jobs = append(report.Jobs, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(report.Jobs),
		"failed_jobs": report.Failed(),
	}), "scheduled run complete")
	return report, nil
}

// release frees the lock even when ctx was canceled mid-cycle, so the next
// instance does not wait out the TTL.
func (s *Service) release(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseWait)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil {
		s.logg.Error(ctx, "failed to release cron lock", err)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) JobResult {
	result := JobResult{Name: job.Name()}
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": result.Name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	result.Err = runGuarded(jobCtx, job)
	result.Duration = time.Since(start)

	s.metrics.ObserveJob(result.Name, result.Duration, result.Err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", result.Duration.Milliseconds())
	if result.Err != nil {
		s.logg.Error(jobCtx, "job failed", result.Err)
		return result
	}
	s.logg.Info(jobCtx, "job completed")
	return result
}

// runGuarded turns a job panic into an error so one job cannot take the
// worker down or leave the lock held.
func runGuarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Run(ctx)
}
