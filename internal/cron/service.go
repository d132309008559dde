package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redislock"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     redislock.Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Clock    func() time.Time
}

// Service runs every registered job once per interval, starting immediately.
// Only the instance holding the lock runs a cycle; a failing job never stops
// the jobs after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     redislock.Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		interval: p.Interval,
		now:      p.Clock,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with failures", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle returns the combined failures of the cycle's jobs.
func (s *Service) runCycle(ctx context.Context) (err error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		s.metrics.CycleSkipped()
		s.logg.Info(ctx, "cron lock held by another instance; skipping cycle")
		return nil
	}
	defer func() {
		// release even when ctx was canceled mid-cycle
		multierr.AppendInto(&err, s.lock.Release(context.WithoutCancel(ctx)))
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		if jobErr := s.runJob(ctx, job); jobErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", job.Name(), jobErr))
		}
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := s.now()
	err := job.Run(ctx)
	took := s.now().Sub(start)
	s.metrics.ObserveRun(job.Name(), took, err, s.now())

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.logg.Info(ctx, "cron job completed")
	return nil
}
