package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

// DefaultSweepSchedule runs the sweeper every quarter hour.
const DefaultSweepSchedule = "@every 15m"

// SweeperOptions configures retention of finished pipelines and jobs.
type SweeperOptions struct {
	Repo               domain.PipelineRepository
	Jobs               domain.JobService
	Schedule           string
	CompletedRetention time.Duration
	FailedRetention    time.Duration
	Logger             *infra.Logger
	Now                func() time.Time
}

// SweepReport counts the records removed by one sweep.
type SweepReport struct {
	CompletedPipelines int64
	FailedPipelines    int64
	ExpiredJobs        int64
	FailedJobs         int64
}

// Sweeper deletes finished pipeline records and stale jobs on a cron schedule.
type Sweeper struct {
	opts   SweeperOptions
	logger *infra.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Repo == nil {
		return nil, errors.New("pipeline: sweeper requires a repository")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("pipeline: invalid sweep schedule %q: %w", opts.Schedule, err)
	}
	if opts.CompletedRetention <= 0 {
		opts.CompletedRetention = 24 * time.Hour
	}
	if opts.FailedRetention <= 0 {
		opts.FailedRetention = time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Sweeper{opts: opts, logger: logger}, nil
}

// Start schedules the sweep. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("pipeline: sweeper already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	cronLogger := cron.PrintfLogger(s.logger)
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))
	if _, err := s.cron.AddFunc(s.opts.Schedule, func() {
		if _, err := s.Sweep(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("pipeline: sweep failed")
		}
	}); err != nil {
		s.cancel()
		s.cron = nil
		return fmt.Errorf("pipeline: schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.opts.Schedule).Msg("pipeline: sweeper started")
	return nil
}

// Stop cancels scheduling and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info().Msg("pipeline: sweeper stopped")
}

// Sweep runs one cleanup pass. Every step is attempted; errors are joined.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		errs   []error
	)
	now := s.opts.Now()

	n, err := s.opts.Repo.CleanupOlderThan(ctx, now.Add(-s.opts.CompletedRetention), domain.PipelineStatusCompleted)
	if err != nil {
		errs = append(errs, fmt.Errorf("completed pipelines: %w", err))
	}
	report.CompletedPipelines = n

	n, err = s.opts.Repo.CleanupOlderThan(ctx, now.Add(-s.opts.FailedRetention), domain.PipelineStatusFailed, domain.PipelineStatusCancelled)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed pipelines: %w", err))
	}
	report.FailedPipelines = n

	if s.opts.Jobs != nil {
		n, err = s.opts.Jobs.CleanupExpiredJobs(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("expired jobs: %w", err))
		}
		report.ExpiredJobs = n

		n, err = s.opts.Jobs.CleanupOldFailedJobs(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed jobs: %w", err))
		}
		report.FailedJobs = n
	}

	s.logger.Info().
		Int64("completed_pipelines", report.CompletedPipelines).
		Int64("failed_pipelines", report.FailedPipelines).
		Int64("expired_jobs", report.ExpiredJobs).
		Int64("failed_jobs", report.FailedJobs).
		Msg("pipeline: sweep finished")
	return report, errors.Join(errs...)
}
