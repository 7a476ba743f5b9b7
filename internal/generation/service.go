// Package generation is the client-facing side of durable asset generation:
// it accepts requests, queues them for workers and reports their state.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
)

// Queue is the producer side of the job queue.
type Queue interface {
	Enqueue(ctx context.Context, pipelineID string, priority domain.Priority) error
	Remove(ctx context.Context, pipelineID string) (bool, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Pipelines reaches pipeline records that may be running outside the job
// flow. *pipeline.Service implements it.
type Pipelines interface {
	GetPipelineStatus(ctx context.Context, id string) (*domain.Pipeline, error)
	Cancel(ctx context.Context, id string) error
}

type Options struct {
	Jobs      domain.JobService
	Queue     Queue
	Pipelines Pipelines
	Logger    *infra.Logger
	NewID     func() string
	Now       func() time.Time
}

// Submission is returned once a job is queued.
type Submission struct {
	JobID      string                `json:"jobId"`
	PipelineID string                `json:"pipelineId"`
	AssetID    string                `json:"assetId"`
	Status     domain.PipelineStatus `json:"status"`
	Priority   domain.Priority       `json:"priority"`
	Message    string                `json:"message"`
}

type Service struct {
	jobs      domain.JobService
	queue     Queue
	pipelines Pipelines
	logger    *infra.Logger
	newID     func() string
	now       func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Jobs == nil {
		return nil, errors.New("generation: job service is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("generation: queue is required")
	}
	s := &Service{
		jobs:      opts.Jobs,
		queue:     opts.Queue,
		pipelines: opts.Pipelines,
		logger:    opts.Logger,
		newID:     opts.NewID,
		now:       opts.Now,
	}
	if s.logger == nil {
		discard := zerolog.New(io.Discard)
		s.logger = &discard
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Submit validates cfg, records a durable job and queues it. Nothing is
// written when validation fails.
func (s *Service) Submit(ctx context.Context, cfg domain.PipelineConfig, priority domain.Priority) (*Submission, error) {
	cfg.Normalize()
	if err := cfg.ValidateForJob(); err != nil {
		return nil, err
	}
	priority = domain.ParsePriority(string(priority))
	pipelineID := s.newID()
	cfg.EnsureAssetID(pipelineID)

	job, err := s.jobs.CreateJob(ctx, pipelineID, cfg, priority)
	if err != nil {
		return nil, fmt.Errorf("generation: create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, pipelineID, priority); err != nil {
		msg := "enqueue failed: " + err.Error()
		if uerr := s.jobs.UpdateJob(context.WithoutCancel(ctx), pipelineID, domain.JobUpdate{
			Status:      domain.Ptr(domain.PipelineStatusFailed),
			Error:       &msg,
			CompletedAt: domain.Ptr(s.now()),
		}); uerr != nil {
			s.logger.Error().Err(uerr).Str("pipeline_id", pipelineID).Msg("generation: mark unqueued job failed")
		}
		return nil, fmt.Errorf("generation: enqueue: %w", err)
	}

	s.logger.Info().
		Str("pipeline_id", pipelineID).
		Str("job_id", job.ID).
		Str("user_id", cfg.User.UserID).
		Str("priority", string(priority)).
		Msg("generation: job queued")
	return &Submission{
		JobID:      job.ID,
		PipelineID: pipelineID,
		AssetID:    cfg.AssetID,
		Status:     job.Status,
		Priority:   priority,
		Message:    "Generation job queued",
	}, nil
}

// Status returns the job for pipelineID. Pipelines started directly, without
// a job, are reported from the pipeline record.
func (s *Service) Status(ctx context.Context, pipelineID string) (*domain.GenerationJob, error) {
	job, err := s.jobs.GetJobByPipelineID(ctx, pipelineID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || s.pipelines == nil {
		return nil, err
	}
	p, perr := s.pipelines.GetPipelineStatus(ctx, pipelineID)
	if perr != nil {
		return nil, perr
	}
	return jobFromPipeline(p), nil
}

// Cancel stops a queued or running job. A vendor call already in flight runs
// to completion; its result is discarded.
func (s *Service) Cancel(ctx context.Context, pipelineID string) error {
	job, err := s.jobs.GetJobByPipelineID(ctx, pipelineID)
	if err != nil {
		return err
	}
	if !job.Status.IsActive() {
		return domain.ErrNotCancellable
	}
	removed, err := s.queue.Remove(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("generation: dequeue for cancel: %w", err)
	}
	if err := s.jobs.UpdateJob(ctx, pipelineID, domain.JobUpdate{
		Status:      domain.Ptr(domain.PipelineStatusFailed),
		Error:       domain.Ptr("cancelled by user"),
		CompletedAt: domain.Ptr(s.now()),
	}); err != nil {
		return fmt.Errorf("generation: mark cancelled: %w", err)
	}
	if s.pipelines != nil {
		err := s.pipelines.Cancel(ctx, pipelineID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrNotCancellable) {
			s.logger.Warn().Err(err).Str("pipeline_id", pipelineID).Msg("generation: cancel live pipeline failed")
		}
	}
	s.logger.Info().Str("pipeline_id", pipelineID).Bool("was_queued", removed).Msg("generation: job cancelled")
	return nil
}

func (s *Service) Stats(ctx context.Context) (queue.Stats, error) {
	return s.queue.Stats(ctx)
}

func jobFromPipeline(p *domain.Pipeline) *domain.GenerationJob {
	return &domain.GenerationJob{
		PipelineID:    p.ID,
		AssetID:       p.Config.AssetID,
		AssetName:     p.Config.Name,
		UserID:        p.Config.User.UserID,
		Config:        p.Config,
		Priority:      domain.PriorityNormal,
		Status:        p.Status,
		Progress:      p.Progress,
		Stages:        p.Stages,
		Results:       p.Results,
		Error:         p.Error,
		FinalAsset:    p.FinalAsset,
		CreatedAt:     p.CreatedAt,
		StartedAt:     p.StartedAt,
		CompletedAt:   p.CompletedAt,
		LastUpdatedAt: p.UpdatedAt,
		ExpiresAt:     p.ExpiresAt,
	}
}
