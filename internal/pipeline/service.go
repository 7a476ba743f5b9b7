// Package pipeline runs the asset-generation stage sequence and owns the
// Pipeline lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/image"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/meshy"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/prompt"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

// ModelVendor is the image-to-3D, retexture and rigging backend.
type ModelVendor interface {
	CreateImageTo3D(ctx context.Context, req meshy.ImageTo3DRequest) (string, error)
	GetImageTo3DTask(ctx context.Context, taskID string) (poller.Task[meshy.ModelOutput], error)
	CreateRetexture(ctx context.Context, req meshy.RetextureRequest) (string, error)
	GetRetextureTask(ctx context.Context, taskID string) (poller.Task[meshy.ModelOutput], error)
	CreateRigging(ctx context.Context, req meshy.RiggingRequest) (string, error)
	GetRiggingTask(ctx context.Context, taskID string) (poller.Task[meshy.RiggingOutput], error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Dependencies are injected into the Service. Repo, Images, Models and
// Uploader are required.
type Dependencies struct {
	Repo     domain.PipelineRepository
	Jobs     domain.JobService
	Enhancer prompt.Enhancer
	Images   image.Generator
	Models   ModelVendor
	Uploader storage.Uploader
	// HTTPClient fetches private images before rehosting them.
	HTTPClient *http.Client
	// RehostHosts lists the private hosts HTTPClient may fetch from. Image
	// URLs on any other private host are rejected.
	RehostHosts []string
	Logger      *infra.Logger
	Now         func() time.Time
	NewID       func() string
	// PollSleep replaces the poller's timer; tests use it to skip waiting.
	PollSleep func(ctx context.Context, d time.Duration) error
}

// StartResult is returned when a pipeline is accepted.
type StartResult struct {
	PipelineID string                `json:"pipelineId"`
	Status     domain.PipelineStatus `json:"status"`
	Message    string                `json:"message"`
}

// Service sequences stages for one pipeline at a time per call. The
// persisted record is the only state; nothing is cached between steps.
type Service struct {
	deps   Dependencies
	logger *infra.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService validates dependencies. Pipelines started with StartPipeline run
// on a context derived from ctx and are stopped by Close.
func NewService(ctx context.Context, deps Dependencies) (*Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("pipeline: repository is required")
	case deps.Images == nil:
		return nil, errors.New("pipeline: image generator is required")
	case deps.Models == nil:
		return nil, errors.New("pipeline: model vendor is required")
	case deps.Uploader == nil:
		return nil, errors.New("pipeline: uploader is required")
	}
	if deps.Enhancer == nil {
		deps.Enhancer = prompt.NewStaticEnhancer()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Service{deps: deps, logger: logger, ctx: runCtx, cancel: cancel}, nil
}

// Close stops background pipelines and waits for them to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every pipeline started with StartPipeline has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// StartPipeline validates cfg, persists the initial record and runs the
// stages in the background.
func (s *Service) StartPipeline(ctx context.Context, cfg domain.PipelineConfig) (*StartResult, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := s.deps.NewID()
	cfg.EnsureAssetID(id)
	p := newPipeline(id, cfg, s.deps.Now())
	if err := s.deps.Repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("pipeline: create: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(s.ctx, id); err != nil && !errors.Is(err, domain.ErrCancelled) {
			s.logger.Error().Err(err).Str("pipeline_id", id).Msg("pipeline: run failed")
		}
	}()

	return &StartResult{PipelineID: id, Status: p.Status, Message: "Pipeline started"}, nil
}

// GetPipelineStatus reloads the pipeline from the repository.
func (s *Service) GetPipelineStatus(ctx context.Context, id string) (*domain.Pipeline, error) {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Cancel marks a non-terminal pipeline cancelled. A stage already in flight
// finishes but its result is discarded.
func (s *Service) Cancel(ctx context.Context, id string) error {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return domain.ErrNotCancellable
	}
	if err := p.Transition(domain.PipelineStatusCancelled, s.deps.Now()); err != nil {
		return err
	}
	p.Error = "cancelled by user"
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return fmt.Errorf("pipeline: cancel: %w", err)
	}
	s.logger.Info().Str("pipeline_id", id).Msg("pipeline: cancelled")
	return nil
}

// ProcessPipelineFromJob runs the stage sequence synchronously for a durable
// job. Stages the job already completed are reused. The final stage map and
// results are mirrored into the job and the bridging pipeline record is
// removed.
func (s *Service) ProcessPipelineFromJob(ctx context.Context, job *domain.GenerationJob) error {
	if job == nil || job.PipelineID == "" {
		return errors.New("pipeline: job has no pipeline id")
	}
	cfg := job.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if job.AssetID != "" {
		cfg.AssetID = job.AssetID
	}
	cfg.EnsureAssetID(job.PipelineID)
	id := job.PipelineID
	log := s.logger.With().Str("pipeline_id", id).Str("job_id", job.ID).Logger()

	existing, err := s.deps.Repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("pipeline: load bridge record: %w", err)
	case existing.Status.IsTerminal():
		if err := s.deps.Repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("pipeline: drop stale record: %w", err)
		}
	default:
		log.Info().Msg("pipeline: resuming existing bridge record")
	}
	if existing == nil || existing.Status.IsTerminal() {
		p := newPipeline(id, cfg, s.deps.Now())
		resumeFromJob(p, job)
		if err := s.deps.Repo.Create(ctx, p); err != nil {
			return fmt.Errorf("pipeline: create bridge record: %w", err)
		}
	}

	runErr := s.run(ctx, id)

	final, err := s.deps.Repo.FindByID(context.WithoutCancel(ctx), id)
	if err == nil && s.deps.Jobs != nil {
		update := domain.JobUpdate{
			Progress: domain.Ptr(final.Progress),
			Stages:   final.Stages,
			Results:  &final.Results,
		}
		if final.FinalAsset != nil {
			update.FinalAsset = final.FinalAsset
		}
		if err := s.deps.Jobs.UpdateJob(context.WithoutCancel(ctx), id, update); err != nil {
			log.Warn().Err(err).Msg("pipeline: mirror into job failed")
		}
	}
	if err := s.deps.Repo.Delete(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Msg("pipeline: delete bridge record failed")
	}
	return runErr
}

func newPipeline(id string, cfg domain.PipelineConfig, now time.Time) *domain.Pipeline {
	p := &domain.Pipeline{
		ID:        id,
		Config:    cfg,
		Status:    domain.PipelineStatusInitializing,
		Stages:    make(map[domain.StageName]*domain.StageResult, len(domain.StageOrder)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range domain.StageOrder {
		p.Stages[name] = &domain.StageResult{Status: domain.StageStatusPending}
	}
	skip := func(name domain.StageName) {
		p.Stages[name].Status = domain.StageStatusSkipped
	}
	if !cfg.EnablePromptEnhancement {
		skip(domain.StagePromptOptimization)
	}
	if ref := cfg.ReferenceImage.Source(); ref != "" {
		skip(domain.StageImageGeneration)
		p.Results.ImageGeneration = &domain.ImageResult{ImageURL: ref, Source: domain.ImageSourceReference}
	}
	if !cfg.EnableRetexturing || len(cfg.MaterialPresets) == 0 {
		skip(domain.StageTextureGeneration)
	}
	if !cfg.EnableRigging || !cfg.IsAvatar() {
		skip(domain.StageRigging)
	}
	return p
}

// resumeFromJob copies completed stages and their results from a previous
// attempt. Progress starts at the furthest completed checkpoint so a retry
// never reports less than the attempt before it.
func resumeFromJob(p *domain.Pipeline, job *domain.GenerationJob) {
	for name, sr := range job.Stages {
		if sr == nil || sr.Status != domain.StageStatusCompleted {
			continue
		}
		cp := *sr
		p.Stages[name] = &cp
		p.AdvanceProgress(checkpoints[name])
		switch name {
		case domain.StagePromptOptimization:
			p.Results.PromptOptimization = job.Results.PromptOptimization
		case domain.StageImageGeneration:
			p.Results.ImageGeneration = job.Results.ImageGeneration
		case domain.StageImage3D:
			p.Results.Image3D = job.Results.Image3D
		case domain.StageTextureGeneration:
			p.Results.TextureGeneration = job.Results.TextureGeneration
		case domain.StageRigging:
			p.Results.Rigging = job.Results.Rigging
		}
	}
}
