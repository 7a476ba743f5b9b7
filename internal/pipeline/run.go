package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
)

// checkpoints is the overall progress reached once each stage is settled.
var checkpoints = map[domain.StageName]int{
	domain.StagePromptOptimization: 10,
	domain.StageImageGeneration:    25,
	domain.StageImage3D:            50,
	domain.StageTextureGeneration:  75,
	domain.StageRigging:            85,
}

// required stages abort the pipeline when they fail.
var required = map[domain.StageName]bool{
	domain.StageImageGeneration: true,
	domain.StageImage3D:         true,
}

// stageFunc runs one stage against a snapshot of the pipeline. The returned
// apply func writes the stage payload into a freshly loaded record and may be
// non-nil alongside an error to keep partial results.
type stageFunc func(ctx context.Context, p *domain.Pipeline) (apply func(*domain.Pipeline), err error)

func (s *Service) stages() map[domain.StageName]stageFunc {
	return map[domain.StageName]stageFunc{
		domain.StagePromptOptimization: s.runPromptOptimization,
		domain.StageImageGeneration:    s.runImageGeneration,
		domain.StageImage3D:            s.runImage3D,
		domain.StageTextureGeneration:  s.runTextureGeneration,
		domain.StageRigging:            s.runRigging,
	}
}

// run drives a persisted pipeline through every stage. Each step reloads the
// aggregate, so cancellation written by another caller is observed between
// and after stages.
func (s *Service) run(ctx context.Context, id string) error {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("pipeline: load: %w", err)
	}
	if p.Status.IsTerminal() {
		if p.Status == domain.PipelineStatusCancelled {
			return domain.ErrCancelled
		}
		return nil
	}
	if err := p.Transition(domain.PipelineStatusProcessing, s.deps.Now()); err != nil {
		return err
	}
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return fmt.Errorf("pipeline: persist: %w", err)
	}
	s.logger.Info().Str("pipeline_id", id).Str("type", p.Config.Type).Msg("pipeline: started")

	funcs := s.stages()
	for _, name := range domain.StageOrder {
		err := s.step(ctx, id, name, funcs[name])
		if errors.Is(err, domain.ErrCancelled) {
			s.logger.Info().Str("pipeline_id", id).Str("stage", string(name)).Msg("pipeline: cancelled, stopping")
			return err
		}
		if err != nil {
			return s.fail(ctx, id, name, err)
		}
	}
	return s.finalize(ctx, id)
}

func (s *Service) step(ctx context.Context, id string, name domain.StageName, fn stageFunc) error {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load before %s: %w", name, err)
	}
	if p.Status == domain.PipelineStatusCancelled {
		return domain.ErrCancelled
	}
	sr := p.Stage(name)
	if sr.Status == domain.StageStatusCompleted || sr.Status == domain.StageStatusSkipped {
		return s.settle(ctx, p, name)
	}
	if reason := s.skipReason(p, name); reason != "" {
		sr.Status = domain.StageStatusSkipped
		sr.Progress = 100
		s.logger.Debug().Str("pipeline_id", id).Str("stage", string(name)).Str("reason", reason).Msg("pipeline: stage skipped")
		return s.settle(ctx, p, name)
	}

	started := s.deps.Now()
	sr.Status = domain.StageStatusProcessing
	sr.Progress = 0
	sr.Error = ""
	sr.StartedAt = &started
	sr.CompletedAt = nil
	p.UpdatedAt = started
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return fmt.Errorf("persist %s start: %w", name, err)
	}

	apply, runErr := fn(ctx, p.Clone())

	// Persist against the latest record; the stage may have run for minutes.
	cur, err := s.deps.Repo.FindByID(context.WithoutCancel(ctx), id)
	if err != nil {
		return fmt.Errorf("reload after %s: %w", name, err)
	}
	if cur.Status == domain.PipelineStatusCancelled {
		s.logger.Info().Str("pipeline_id", id).Str("stage", string(name)).Msg("pipeline: discarding result of cancelled pipeline")
		return domain.ErrCancelled
	}
	if apply != nil {
		apply(cur)
	}
	now := s.deps.Now()
	csr := cur.Stage(name)
	csr.CompletedAt = &now
	csr.Progress = 100
	if runErr != nil {
		csr.Status = domain.StageStatusFailed
		csr.Error = runErr.Error()
		if !required[name] {
			cur.Warnings = append(cur.Warnings, fmt.Sprintf("%s failed: %s", name, runErr.Error()))
		}
		s.logger.Warn().Err(runErr).Str("pipeline_id", id).Str("stage", string(name)).Bool("required", required[name]).Msg("pipeline: stage failed")
	} else {
		csr.Status = domain.StageStatusCompleted
		s.logger.Info().Str("pipeline_id", id).Str("stage", string(name)).Dur("took", now.Sub(started)).Msg("pipeline: stage completed")
	}
	if runErr == nil || !required[name] {
		cur.AdvanceProgress(checkpoints[name])
	}
	cur.UpdatedAt = now
	if err := s.deps.Repo.Update(context.WithoutCancel(ctx), cur); err != nil {
		return fmt.Errorf("persist %s result: %w", name, err)
	}
	if runErr != nil && required[name] {
		return fmt.Errorf("%s: %w", name, runErr)
	}
	return nil
}

// settle advances progress past an already-settled stage.
func (s *Service) settle(ctx context.Context, p *domain.Pipeline, name domain.StageName) error {
	if p.Progress >= checkpoints[name] && p.Stage(name).Progress == 100 {
		return nil
	}
	p.Stage(name).Progress = 100
	p.AdvanceProgress(checkpoints[name])
	p.UpdatedAt = s.deps.Now()
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}

func (s *Service) skipReason(p *domain.Pipeline, name domain.StageName) string {
	cfg := p.Config
	switch name {
	case domain.StagePromptOptimization:
		if !cfg.EnablePromptEnhancement {
			return "prompt enhancement disabled"
		}
	case domain.StageImageGeneration:
		if cfg.ReferenceImage.Source() != "" {
			return "reference image supplied"
		}
	case domain.StageTextureGeneration:
		if !cfg.EnableRetexturing || len(cfg.MaterialPresets) == 0 {
			return "retexturing disabled"
		}
	case domain.StageRigging:
		if !s.riggingApplicable(p) {
			return "rigging not applicable"
		}
	}
	return ""
}

func (s *Service) riggingApplicable(p *domain.Pipeline) bool {
	cfg := p.Config
	return cfg.EnableRigging && cfg.IsAvatar() && p.Results.Image3D != nil && p.Results.Image3D.TaskID != ""
}

// fail records a pipeline-fatal error and returns it to the caller.
func (s *Service) fail(ctx context.Context, id string, stage domain.StageName, cause error) error {
	ctx = context.WithoutCancel(ctx)
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return errors.Join(cause, err)
	}
	if p.Status.IsTerminal() {
		return cause
	}
	category := Classify(cause)
	p.Error = cause.Error()
	p.ErrorStage = stage
	p.ErrorCategory = string(category)
	if err := p.Transition(domain.PipelineStatusFailed, s.deps.Now()); err != nil {
		return errors.Join(cause, err)
	}
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return errors.Join(cause, err)
	}
	s.logger.Error().Err(cause).
		Str("pipeline_id", id).
		Str("stage", string(stage)).
		Str("category", string(category)).
		Msg("pipeline: failed")
	return cause
}

func (s *Service) finalize(ctx context.Context, id string) error {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("pipeline: load for finalize: %w", err)
	}
	if p.Status == domain.PipelineStatusCancelled {
		return domain.ErrCancelled
	}
	p.FinalAsset = buildFinalAsset(p)
	if err := p.Transition(domain.PipelineStatusCompleted, s.deps.Now()); err != nil {
		return err
	}
	p.AdvanceProgress(100)
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		return fmt.Errorf("pipeline: persist final state: %w", err)
	}
	ev := s.logger.Info().Str("pipeline_id", id).Str("asset_id", p.Config.AssetID)
	if len(p.Warnings) > 0 {
		ev = ev.Strs("warnings", p.Warnings)
	}
	ev.Msg("pipeline: completed")
	return nil
}

func buildFinalAsset(p *domain.Pipeline) *domain.FinalAsset {
	fa := &domain.FinalAsset{AssetID: p.Config.AssetID, Name: p.Config.Name}
	if m := p.Results.Image3D; m != nil {
		fa.ModelURL = m.ModelURL
		fa.ConceptArtURL = m.ConceptArtURL
		fa.MetadataURL = m.MetadataURL
	}
	if r := p.Results.Rigging; r != nil && r.RiggedModelURL != "" {
		fa.RiggedModelURL = r.RiggedModelURL
		fa.TPoseModelURL = r.TPoseModelURL
		fa.HasRig = true
	}
	if t := p.Results.TextureGeneration; t != nil {
		for _, v := range t.Variants {
			if v.Success {
				fa.Variants = append(fa.Variants, v)
			}
		}
	}
	return fa
}

// reportProgress stores intra-stage progress so status polls see movement.
func (s *Service) reportProgress(ctx context.Context, id string, name domain.StageName, pct int) {
	p, err := s.deps.Repo.FindByID(ctx, id)
	if err != nil || p.Status.IsTerminal() {
		return
	}
	sr := p.Stage(name)
	if sr.Status != domain.StageStatusProcessing || pct <= sr.Progress {
		return
	}
	if pct > 99 {
		pct = 99
	}
	sr.Progress = pct
	p.UpdatedAt = s.deps.Now()
	if err := s.deps.Repo.Update(ctx, p); err != nil {
		s.logger.Debug().Err(err).Str("pipeline_id", id).Msg("pipeline: progress update failed")
	}
}

func (s *Service) pollOptions(ctx context.Context, p *domain.Pipeline, name domain.StageName, interval time.Duration, label string) poller.Options {
	return poller.Options{
		Interval: interval,
		Timeout:  poller.TimeoutForQuality(p.Config.Quality),
		Label:    label,
		Sleep:    s.deps.PollSleep,
		Logger:   s.logger,
		OnProgress: func(pct int, _ poller.Status) {
			s.reportProgress(ctx, p.ID, name, pct)
		},
	}
}
