// Package bootstrap assembles the vendor clients and artifact storage shared
// by the api and worker binaries.
package bootstrap

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/pipeline"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/image"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/meshy"
	"github.com/Dexploarer/hyper-forge-sub006/internal/providers/prompt"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

// Providers holds the pipeline collaborators built from configuration.
type Providers struct {
	Enhancer prompt.Enhancer
	Images   image.Generator
	Models   *meshy.Client
	Uploader storage.Uploader
	// StaticDir is set when artifacts are written to local disk and must be
	// served by the api.
	StaticDir string
	// RehostHosts are the private hosts source images may be fetched from.
	RehostHosts []string
}

// NewUploader picks the CDN when an upload endpoint is configured and local
// disk otherwise.
func NewUploader(cfg *infra.Config, logger *infra.Logger) (storage.Uploader, string, error) {
	if cfg.CDNUploadURL != "" {
		up, err := storage.NewCDNUploader(storage.CDNOptions{
			Endpoint: cfg.CDNUploadURL,
			APIKey:   cfg.CDNAPIKey,
			Logger:   logger,
		})
		return up, "", err
	}
	dir := cfg.StorageDir
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	store, err := storage.NewFileStore(dir, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.BasePath(), nil
}

// NewEnhancer returns the OpenAI enhancer with the static rules as its
// fallback, or the static enhancer alone when PROMPT_PROVIDER is "static" or
// no OpenAI key is configured.
func NewEnhancer(cfg *infra.Config, client *http.Client, logger *infra.Logger) (prompt.Enhancer, error) {
	static := prompt.NewStaticEnhancer()
	if cfg.PromptProvider == "static" || cfg.OpenAIAPIKey == "" {
		return static, nil
	}
	return prompt.NewOpenAIEnhancer(prompt.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   client,
		Fallback:     static,
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("prompt: using static fallback")
		},
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("prompt: model adjusted")
		},
	})
}

// NewProviders builds every vendor client. Both vendor keys must be present.
func NewProviders(cfg *infra.Config, logger *infra.Logger) (*Providers, error) {
	if cfg.MeshyAPIKey == "" || cfg.OpenAIAPIKey == "" {
		return nil, errors.New("bootstrap: meshy and openai api keys are required")
	}
	client := &http.Client{Timeout: 2 * time.Minute}

	enhancer, err := NewEnhancer(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	images, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.ImageModel,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   client,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	models, err := meshy.NewClient(meshy.Options{
		APIKey:     cfg.MeshyAPIKey,
		BaseURL:    cfg.MeshyBaseURL,
		AIModel:    cfg.MeshyModel,
		HTTPClient: client,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	uploader, staticDir, err := NewUploader(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Providers{
		Enhancer:    enhancer,
		Images:      images,
		Models:      models,
		Uploader:    uploader,
		StaticDir:   staticDir,
		RehostHosts: cfg.RehostHosts(),
	}, nil
}

// Dependencies fills the provider half of pipeline.Dependencies.
func (p *Providers) Dependencies(base pipeline.Dependencies) pipeline.Dependencies {
	base.Enhancer = p.Enhancer
	base.Images = p.Images
	base.Models = p.Models
	base.Uploader = p.Uploader
	base.RehostHosts = p.RehostHosts
	return base
}
