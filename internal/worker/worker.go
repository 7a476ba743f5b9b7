// Package worker consumes queued generation jobs and runs them through the
// pipeline, retrying failed attempts with exponential backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
)

const (
	defaultDequeueTimeout = 5 * time.Second
	defaultStatusInterval = 2 * time.Second
	defaultErrorBackoff   = time.Second
	maxRetryDelay         = 60 * time.Second
	// completedJobTTL is how long finished jobs stay queryable.
	completedJobTTL = 24 * time.Hour
)

// Queue is the subset of the job queue the worker consumes.
type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
	EnqueueDelayed(ctx context.Context, pipelineID string, priority domain.Priority, delay time.Duration) error
	PublishProgress(ctx context.Context, ev queue.ProgressEvent) error
}

// Processor runs one job's stages. *pipeline.Service implements it.
type Processor interface {
	ProcessPipelineFromJob(ctx context.Context, job *domain.GenerationJob) error
	GetPipelineStatus(ctx context.Context, id string) (*domain.Pipeline, error)
}

// Options configures a Worker.
type Options struct {
	Jobs           domain.JobService
	Queue          Queue
	Processor      Processor
	Concurrency    int
	MaxRetries     int
	DequeueTimeout time.Duration
	StatusInterval time.Duration
	ErrorBackoff   time.Duration
	Logger         *infra.Logger
	Now            func() time.Time
}

type Worker struct {
	jobs           domain.JobService
	queue          Queue
	processor      Processor
	concurrency    int
	maxRetries     int
	dequeueTimeout time.Duration
	statusInterval time.Duration
	errorBackoff   time.Duration
	logger         *infra.Logger
	now            func() time.Time
}

func New(opts Options) (*Worker, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("worker: job service is required")
	case opts.Queue == nil:
		return nil, errors.New("worker: queue is required")
	case opts.Processor == nil:
		return nil, errors.New("worker: processor is required")
	}
	w := &Worker{
		jobs:           opts.Jobs,
		queue:          opts.Queue,
		processor:      opts.Processor,
		concurrency:    opts.Concurrency,
		maxRetries:     opts.MaxRetries,
		dequeueTimeout: opts.DequeueTimeout,
		statusInterval: opts.StatusInterval,
		errorBackoff:   opts.ErrorBackoff,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.maxRetries < 1 {
		w.maxRetries = 3
	}
	if w.dequeueTimeout <= 0 {
		w.dequeueTimeout = defaultDequeueTimeout
	}
	if w.statusInterval <= 0 {
		w.statusInterval = defaultStatusInterval
	}
	if w.errorBackoff <= 0 {
		w.errorBackoff = defaultErrorBackoff
	}
	if w.logger == nil {
		discard := zerolog.New(io.Discard)
		w.logger = &discard
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	return w, nil
}

// RetryDelay is the wait before attempt retry+1: 1s doubling, capped at 60s.
func RetryDelay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry >= 6 {
		return maxRetryDelay
	}
	d := time.Second << retry
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Run starts Concurrency consumer loops and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Int("max_retries", w.maxRetries).Msg("worker: started")
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()
	w.logger.Info().Msg("worker: stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if ctx.Err() != nil {
			return
		}
		pipelineID, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("worker: dequeue failed")
			if sleepContext(ctx, w.errorBackoff) != nil {
				return
			}
			continue
		}
		if pipelineID == "" {
			continue
		}
		if err := w.Handle(ctx, pipelineID); err != nil {
			log.Error().Err(err).Str("pipeline_id", pipelineID).Msg("worker: job handling failed")
		}
	}
}

// Handle runs one dequeued job to a terminal state or schedules its retry.
// The returned error covers bookkeeping failures only; pipeline errors are
// recorded on the job.
func (w *Worker) Handle(ctx context.Context, pipelineID string) error {
	job, err := w.jobs.GetJobByPipelineID(ctx, pipelineID)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn().Str("pipeline_id", pipelineID).Msg("worker: job vanished, dropping queue entry")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if !job.Status.IsActive() {
		w.logger.Info().Str("pipeline_id", pipelineID).Str("status", string(job.Status)).Msg("worker: job no longer active, skipping")
		return nil
	}
	log := w.logger.With().Str("pipeline_id", pipelineID).Str("job_id", job.ID).Int("attempt", job.RetryCount+1).Logger()
	log.Info().Msg("worker: picked job")

	update := domain.JobUpdate{Status: domain.Ptr(domain.PipelineStatusProcessing)}
	if job.StartedAt == nil {
		update.StartedAt = domain.Ptr(w.now())
	}
	if err := w.jobs.UpdateJob(ctx, pipelineID, update); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	job.Status = domain.PipelineStatusProcessing
	w.publish(ctx, queue.ProgressEvent{PipelineID: pipelineID, Status: job.Status, Progress: job.Progress, Stages: job.Stages})

	stop := w.mirror(ctx, pipelineID)
	runErr := w.processor.ProcessPipelineFromJob(ctx, job)
	stop()

	// Bookkeeping must land even when shutdown interrupted the run.
	bctx := context.WithoutCancel(ctx)
	if runErr == nil {
		return w.complete(bctx, pipelineID, log)
	}
	return w.failAttempt(bctx, job, runErr, log)
}

func (w *Worker) complete(ctx context.Context, pipelineID string, log zerolog.Logger) error {
	now := w.now()
	if err := w.jobs.UpdateJob(ctx, pipelineID, domain.JobUpdate{
		Status:      domain.Ptr(domain.PipelineStatusCompleted),
		Progress:    domain.Ptr(100),
		Error:       domain.Ptr(""),
		CompletedAt: domain.Ptr(now),
		ExpiresAt:   domain.Ptr(now.Add(completedJobTTL)),
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	ev := queue.ProgressEvent{PipelineID: pipelineID, Status: domain.PipelineStatusCompleted, Progress: 100}
	if job, err := w.jobs.GetJobByPipelineID(ctx, pipelineID); err == nil {
		ev.Stages = job.Stages
		ev.FinalAsset = job.FinalAsset
	}
	w.publish(ctx, ev)
	log.Info().Msg("worker: job completed")
	return nil
}

func (w *Worker) failAttempt(ctx context.Context, job *domain.GenerationJob, runErr error, log zerolog.Logger) error {
	pipelineID := job.PipelineID
	current, err := w.jobs.GetJobByPipelineID(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if errors.Is(runErr, domain.ErrCancelled) || !current.Status.IsActive() {
		log.Info().Str("status", string(current.Status)).Msg("worker: job cancelled, not retrying")
		return nil
	}

	retry := current.RetryCount
	if retry+1 < w.maxRetries {
		delay := RetryDelay(retry)
		msg := fmt.Sprintf("Attempt %d failed: %s", retry+1, runErr.Error())
		if err := w.jobs.UpdateJob(ctx, pipelineID, domain.JobUpdate{
			Status:     domain.Ptr(domain.PipelineStatusInitializing),
			RetryCount: domain.Ptr(retry + 1),
			Error:      domain.Ptr(msg),
		}); err != nil {
			return fmt.Errorf("record retry: %w", err)
		}
		if err := w.queue.EnqueueDelayed(ctx, pipelineID, current.Priority, delay); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		w.publish(ctx, queue.ProgressEvent{PipelineID: pipelineID, Status: domain.PipelineStatusInitializing, Progress: current.Progress, Error: msg})
		log.Warn().Err(runErr).Dur("delay", delay).Int("retry", retry+1).Msg("worker: attempt failed, retrying")
		return nil
	}

	now := w.now()
	if err := w.jobs.UpdateJob(ctx, pipelineID, domain.JobUpdate{
		Status:      domain.Ptr(domain.PipelineStatusFailed),
		Error:       domain.Ptr(runErr.Error()),
		CompletedAt: domain.Ptr(now),
	}); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	w.publish(ctx, queue.ProgressEvent{PipelineID: pipelineID, Status: domain.PipelineStatusFailed, Progress: current.Progress, Stages: current.Stages, Error: runErr.Error()})
	log.Error().Err(runErr).Int("attempts", retry+1).Msg("worker: job failed permanently")
	return nil
}

// mirror copies the live pipeline state into the job every StatusInterval
// until the returned stop func is called.
func (w *Worker) mirror(ctx context.Context, pipelineID string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.statusInterval)
		defer ticker.Stop()
		last := -1
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			p, err := w.processor.GetPipelineStatus(ctx, pipelineID)
			if err != nil || p.Status.IsTerminal() {
				continue
			}
			if err := w.jobs.UpdateJob(ctx, pipelineID, domain.JobUpdate{
				Progress: domain.Ptr(p.Progress),
				Stages:   p.Stages,
				Results:  &p.Results,
			}); err != nil {
				w.logger.Debug().Err(err).Str("pipeline_id", pipelineID).Msg("worker: mirror update failed")
				continue
			}
			if p.Progress != last {
				last = p.Progress
				w.publish(ctx, queue.ProgressEvent{PipelineID: pipelineID, Status: domain.PipelineStatusProcessing, Progress: p.Progress, Stages: p.Stages})
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (w *Worker) publish(ctx context.Context, ev queue.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = w.now()
	}
	if err := w.queue.PublishProgress(ctx, ev); err != nil {
		w.logger.Debug().Err(err).Str("pipeline_id", ev.PipelineID).Msg("worker: publish progress failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
