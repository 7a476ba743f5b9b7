package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/glb"
	"github.com/Dexploarer/hyper-forge-sub006/internal/poller"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/image"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/meshy"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/prompt"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

// Upload directories.
const (
	dirModels     = "models"
	dirVariants   = "variants"
	dirConceptArt = "concept-art"
)

type qualityParams struct {
	Polycount         int
	TextureResolution int
	EnablePBR         bool
}

var qualityTable = map[domain.Quality]qualityParams{
	domain.QualityStandard: {Polycount: 6000, TextureResolution: 1024},
	domain.QualityHigh:     {Polycount: 12000, TextureResolution: 2048, EnablePBR: true},
	domain.QualityUltra:    {Polycount: 20000, TextureResolution: 4096, EnablePBR: true},
}

func paramsFor(q domain.Quality) qualityParams {
	if p, ok := qualityTable[q]; ok {
		return p
	}
	return qualityTable[domain.QualityStandard]
}

func (s *Service) runPromptOptimization(ctx context.Context, p *domain.Pipeline) (func(*domain.Pipeline), error) {
	cfg := p.Config
	verbatim := func(cur *domain.Pipeline) {
		cur.Results.PromptOptimization = &domain.PromptResult{
			OriginalPrompt:  cfg.Description,
			OptimizedPrompt: cfg.Description,
			UsedFallback:    true,
		}
	}

	res, err := s.deps.Enhancer.Enhance(ctx, prompt.EnhanceRequest{
		Description:  cfg.Description,
		AssetType:    cfg.Type,
		Subtype:      cfg.Subtype,
		Style:        cfg.Style,
		Avatar:       cfg.IsAvatar(),
		CustomPrompt: cfg.CustomPrompt,
	})
	if err != nil {
		return verbatim, fmt.Errorf("enhance prompt: %w", err)
	}
	if reason := res.FallbackReason(); reason != "" {
		return verbatim, fmt.Errorf("prompt enhancer unavailable: %s", reason)
	}
	optimized := strings.TrimSpace(res.Prompt)
	if optimized == "" {
		return verbatim, errors.New("prompt enhancer returned an empty prompt")
	}
	return func(cur *domain.Pipeline) {
		cur.Results.PromptOptimization = &domain.PromptResult{
			OriginalPrompt:  cfg.Description,
			OptimizedPrompt: optimized,
			Keywords:        res.Keywords,
			Provider:        res.Provider,
		}
	}, nil
}

func (s *Service) runImageGeneration(ctx context.Context, p *domain.Pipeline) (func(*domain.Pipeline), error) {
	cfg := p.Config
	full := image.BuildAssetPrompt(effectivePrompt(p), cfg.Type, cfg.Style, cfg.IsAvatar())
	assets, err := s.deps.Images.Generate(ctx, image.GenerateRequest{
		Prompt:    full,
		AssetType: cfg.Type,
		Style:     cfg.Style,
		Size:      image.SizeForQuality(string(cfg.Quality)),
		Quality:   string(cfg.Quality),
		Quantity:  1,
		RequestID: p.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate concept image: %w", err)
	}
	if len(assets) == 0 || assets[0].Location() == "" {
		return nil, fmt.Errorf("generate concept image: %w: no image returned", domain.ErrProviderFailure)
	}
	loc := assets[0].Location()
	return func(cur *domain.Pipeline) {
		cur.Results.ImageGeneration = &domain.ImageResult{
			ImageURL: loc,
			Prompt:   full,
			Source:   domain.ImageSourceGenerated,
		}
	}, nil
}

// effectivePrompt prefers the enhanced prompt over the raw description.
func effectivePrompt(p *domain.Pipeline) string {
	if r := p.Results.PromptOptimization; r != nil && strings.TrimSpace(r.OptimizedPrompt) != "" {
		return r.OptimizedPrompt
	}
	return p.Config.Description
}

func (s *Service) runImage3D(ctx context.Context, p *domain.Pipeline) (func(*domain.Pipeline), error) {
	cfg := p.Config
	src := cfg.ReferenceImage.Source()
	if r := p.Results.ImageGeneration; r != nil && r.ImageURL != "" {
		src = r.ImageURL
	}
	if src == "" {
		return nil, errors.New("no source image for conversion")
	}
	public, err := s.ensurePublic(ctx, cfg.AssetID, src)
	if err != nil {
		return nil, fmt.Errorf("publish source image: %w", err)
	}

	params := paramsFor(cfg.Quality)
	taskID, err := s.deps.Models.CreateImageTo3D(ctx, meshy.ImageTo3DRequest{
		ImageURL:          public,
		EnablePBR:         params.EnablePBR,
		TargetPolycount:   params.Polycount,
		TextureResolution: params.TextureResolution,
		Topology:          "triangle",
	})
	if err != nil {
		return nil, fmt.Errorf("submit conversion: %w", err)
	}
	s.logger.Info().Str("pipeline_id", p.ID).Str("task_id", taskID).Msg("pipeline: conversion submitted")

	task, err := poller.PollUntilTerminal(ctx, func(ctx context.Context) (poller.Task[meshy.ModelOutput], error) {
		return s.deps.Models.GetImageTo3DTask(ctx, taskID)
	}, s.pollOptions(ctx, p, domain.StageImage3D, poller.ConversionInterval, "image-to-3d"))
	if err != nil {
		return nil, err
	}
	if task.Result.ModelURL == "" {
		return nil, fmt.Errorf("conversion %s: %w: no model url", taskID, domain.ErrProviderFailure)
	}
	raw, err := s.deps.Models.Download(ctx, task.Result.ModelURL)
	if err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}

	model, dims := s.normalize(p, raw)
	meta := modelMetadata{
		AssetID:        cfg.AssetID,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Type:           cfg.Type,
		Subtype:        cfg.Subtype,
		Quality:        string(cfg.Quality),
		TaskID:         taskID,
		SourceImageURL: public,
		Polycount:      params.Polycount,
		Normalized:     dims != nil,
		Dimensions:     dims,
		GeneratedAt:    s.deps.Now(),
	}
	metaFile, err := jsonFile("metadata.json", meta)
	if err != nil {
		return nil, err
	}
	up, err := s.deps.Uploader.Upload(ctx, []storage.File{
		{Name: "model.glb", Data: model, ContentType: contentTypeGLB},
		{Name: "model_raw.glb", Data: raw, ContentType: contentTypeGLB},
		metaFile,
	}, storage.UploadOptions{AssetID: cfg.AssetID, Directory: dirModels})
	if err != nil {
		return nil, fmt.Errorf("upload model: %w", err)
	}
	modelURL := up.URLFor("model.glb")
	if modelURL == "" {
		return nil, errors.New("upload model: no url for model.glb")
	}

	res := &domain.ModelResult{
		TaskID:         taskID,
		ModelURL:       modelURL,
		RawModelURL:    up.URLFor("model_raw.glb"),
		ConceptArtURL:  public,
		MetadataURL:    up.URLFor("metadata.json"),
		SourceImageURL: public,
		Polycount:      params.Polycount,
		Normalized:     dims != nil,
		Dimensions:     dims,
	}
	return func(cur *domain.Pipeline) {
		cur.Results.Image3D = res
		sr := cur.Stage(domain.StageImage3D)
		sr.Normalized = res.Normalized
		sr.Dimensions = res.Dimensions
		if img := cur.Results.ImageGeneration; img != nil && img.ImageURL != public {
			img.ImageURL = public
		}
	}, nil
}

// normalize applies the per-type transform. Failures keep the raw model.
func (s *Service) normalize(p *domain.Pipeline, raw []byte) (model []byte, dims *domain.Dimensions) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("pipeline_id", p.ID).Str("type", p.Config.Type).Interface("panic", r).Msg("pipeline: normalization panicked, keeping raw model")
			model, dims = raw, nil
		}
	}()
	var (
		out []byte
		box glb.Box
		err error
	)
	switch {
	case p.Config.IsAvatar():
		out, box, err = glb.NormalizeHeight(raw, p.Config.TargetHeight())
	case p.Config.Type == domain.AssetTypeWeapon:
		out, box, err = glb.AlignGrip(raw)
	default:
		return raw, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("pipeline_id", p.ID).Str("type", p.Config.Type).Msg("pipeline: normalization failed, keeping raw model")
		return raw, nil
	}
	size := box.Size()
	return out, &domain.Dimensions{Width: size[0], Height: size[1], Depth: size[2]}
}

func (s *Service) runTextureGeneration(ctx context.Context, p *domain.Pipeline) (func(*domain.Pipeline), error) {
	base := p.Results.Image3D
	if base == nil || base.TaskID == "" {
		return nil, errors.New("no base model to retexture")
	}
	presets := p.Config.MaterialPresets
	variants := make([]domain.VariantResult, 0, len(presets))
	for i, preset := range presets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := s.runVariant(ctx, p, base.TaskID, preset, i, len(presets))
		variants = append(variants, v)
	}
	result := &domain.TextureResult{Variants: variants}
	apply := func(cur *domain.Pipeline) {
		cur.Results.TextureGeneration = result
	}
	if result.Succeeded() == 0 {
		return apply, fmt.Errorf("all %d texture variants failed", len(variants))
	}
	return apply, nil
}

func (s *Service) runVariant(ctx context.Context, p *domain.Pipeline, baseTaskID string, preset domain.MaterialPreset, index, total int) domain.VariantResult {
	cfg := p.Config
	variantID := cfg.AssetID + "-" + preset.ID
	v := domain.VariantResult{ID: variantID, Name: preset.Label()}
	log := s.logger.With().Str("pipeline_id", p.ID).Str("variant", variantID).Logger()

	failed := func(err error) domain.VariantResult {
		v.Error = err.Error()
		log.Warn().Err(err).Msg("pipeline: variant failed")
		return v
	}

	taskID, err := s.deps.Models.CreateRetexture(ctx, meshy.RetextureRequest{
		InputTaskID:      baseTaskID,
		StylePrompt:      preset.StylePrompt,
		EnablePBR:        paramsFor(cfg.Quality).EnablePBR,
		EnableOriginalUV: true,
	})
	if err != nil {
		return failed(fmt.Errorf("submit retexture: %w", err))
	}
	v.TaskID = taskID

	opts := s.pollOptions(ctx, p, domain.StageTextureGeneration, poller.RetextureInterval, "retexture "+preset.ID)
	opts.OnProgress = func(pct int, _ poller.Status) {
		s.reportProgress(ctx, p.ID, domain.StageTextureGeneration, (index*100+pct)/total)
	}
	task, err := poller.PollUntilTerminal(ctx, func(ctx context.Context) (poller.Task[meshy.ModelOutput], error) {
		return s.deps.Models.GetRetextureTask(ctx, taskID)
	}, opts)
	if err != nil {
		return failed(err)
	}
	data, err := s.deps.Models.Download(ctx, task.Result.ModelURL)
	if err != nil {
		return failed(fmt.Errorf("download variant: %w", err))
	}
	metaFile, err := jsonFile(variantID+"-metadata.json", variantMetadata{
		VariantID:   variantID,
		BaseAssetID: cfg.AssetID,
		PresetID:    preset.ID,
		Name:        preset.Label(),
		StylePrompt: preset.StylePrompt,
		TaskID:      taskID,
		GeneratedAt: s.deps.Now(),
	})
	if err != nil {
		return failed(err)
	}
	up, err := s.deps.Uploader.Upload(ctx, []storage.File{
		{Name: variantID + ".glb", Data: data, ContentType: contentTypeGLB},
		metaFile,
	}, storage.UploadOptions{AssetID: cfg.AssetID, Directory: dirVariants})
	if err != nil {
		return failed(fmt.Errorf("upload variant: %w", err))
	}
	v.ModelURL = up.URLFor(variantID + ".glb")
	v.Success = v.ModelURL != ""
	if !v.Success {
		return failed(errors.New("upload variant: no url returned"))
	}
	log.Info().Str("task_id", taskID).Msg("pipeline: variant completed")
	return v
}

func (s *Service) runRigging(ctx context.Context, p *domain.Pipeline) (func(*domain.Pipeline), error) {
	cfg := p.Config
	base := p.Results.Image3D
	if base == nil || base.TaskID == "" {
		return nil, errors.New("no base model to rig")
	}
	taskID, err := s.deps.Models.CreateRigging(ctx, meshy.RiggingRequest{
		InputTaskID:  base.TaskID,
		HeightMeters: cfg.TargetHeight(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit rigging: %w", err)
	}
	task, err := poller.PollUntilTerminal(ctx, func(ctx context.Context) (poller.Task[meshy.RiggingOutput], error) {
		return s.deps.Models.GetRiggingTask(ctx, taskID)
	}, s.pollOptions(ctx, p, domain.StageRigging, poller.RiggingInterval, "rigging"))
	if err != nil {
		return nil, err
	}
	out := task.Result
	if out.RiggedModelURL == "" {
		return nil, fmt.Errorf("rigging %s: %w: no rigged model url", taskID, domain.ErrProviderFailure)
	}
	rigged, err := s.deps.Models.Download(ctx, out.RiggedModelURL)
	if err != nil {
		return nil, fmt.Errorf("download rigged model: %w", err)
	}
	files := []storage.File{{Name: "rigged.glb", Data: rigged, ContentType: contentTypeGLB}}

	var walking []byte
	for _, anim := range []struct{ name, url string }{
		{"walking.glb", out.WalkingURL},
		{"running.glb", out.RunningURL},
	} {
		if anim.url == "" {
			continue
		}
		data, err := s.deps.Models.Download(ctx, anim.url)
		if err != nil {
			s.logger.Warn().Err(err).Str("pipeline_id", p.ID).Str("animation", anim.name).Msg("pipeline: animation download failed")
			continue
		}
		if anim.name == "walking.glb" {
			walking = data
		}
		files = append(files, storage.File{Name: anim.name, Data: data, ContentType: contentTypeGLB})
	}

	var tposeErr string
	if walking == nil {
		tposeErr = "no walking animation to extract a T-pose from"
	} else if tpose, err := glb.StripAnimations(walking); err != nil {
		tposeErr = err.Error()
		s.logger.Warn().Err(err).Str("pipeline_id", p.ID).Msg("pipeline: t-pose extraction failed")
	} else {
		files = append(files, storage.File{Name: "t-pose.glb", Data: tpose, ContentType: contentTypeGLB})
	}

	metaFile, err := jsonFile("rigging-metadata.json", riggingMetadata{
		AssetID:      cfg.AssetID,
		TaskID:       taskID,
		BaseTaskID:   base.TaskID,
		HeightMeters: cfg.TargetHeight(),
		HasTPose:     tposeErr == "",
		Animations:   animationNames(files),
		GeneratedAt:  s.deps.Now(),
	})
	if err != nil {
		return nil, err
	}
	files = append(files, metaFile)

	up, err := s.deps.Uploader.Upload(ctx, files, storage.UploadOptions{AssetID: cfg.AssetID, Directory: dirModels})
	if err != nil {
		return nil, fmt.Errorf("upload rigged model: %w", err)
	}
	res := &domain.RiggingResult{
		TaskID:         taskID,
		RiggedModelURL: up.URLFor("rigged.glb"),
		TPoseModelURL:  up.URLFor("t-pose.glb"),
		MetadataURL:    up.URLFor("rigging-metadata.json"),
		Animations: domain.AnimationSet{
			WalkingURL: up.URLFor("walking.glb"),
			RunningURL: up.URLFor("running.glb"),
		},
		TPoseError: tposeErr,
	}
	return func(cur *domain.Pipeline) {
		cur.Results.Rigging = res
	}, nil
}

func animationNames(files []storage.File) []string {
	var names []string
	for _, f := range files {
		switch f.Name {
		case "walking.glb":
			names = append(names, "walking")
		case "running.glb":
			names = append(names, "running")
		}
	}
	return names
}
