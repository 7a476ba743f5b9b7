package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/generation"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/middleware"
	"github.com/Dexploarer/hyper-forge-sub006/internal/pipeline"
	"github.com/Dexploarer/hyper-forge-sub006/internal/queue"
)

// Generation is the durable job front door. *generation.Service implements it.
type Generation interface {
	Submit(ctx context.Context, cfg domain.PipelineConfig, priority domain.Priority) (*generation.Submission, error)
	Status(ctx context.Context, pipelineID string) (*domain.GenerationJob, error)
	Cancel(ctx context.Context, pipelineID string) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// Pipelines runs pipelines in-process without a job. *pipeline.Service
// implements it.
type Pipelines interface {
	StartPipeline(ctx context.Context, cfg domain.PipelineConfig) (*pipeline.StartResult, error)
	GetPipelineStatus(ctx context.Context, id string) (*domain.Pipeline, error)
}

// ProgressSource streams job progress events. *queue.RedisQueue implements it.
type ProgressSource interface {
	SubscribeToProgress(ctx context.Context, pipelineID string) (<-chan queue.ProgressEvent, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Generation Generation
	Pipelines  Pipelines
	Progress   ProgressSource
	Checks     map[string]HealthCheck
	Logger     infra.Logger
	// MaxBodyBytes bounds request payloads; inline reference images make
	// them larger than usual.
	MaxBodyBytes int64
	// Heartbeat is the idle interval between keep-alive comments on event
	// streams.
	Heartbeat time.Duration
}

const defaultMaxBodyBytes = 16 << 20

func NewApp(logger *infra.Logger) *App {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &App{Logger: l, Checks: map[string]HealthCheck{}, MaxBodyBytes: defaultMaxBodyBytes, Heartbeat: 15 * time.Second}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorResponse{Error: kind, Message: message})
}

// fail maps a service error onto a response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.json(w, http.StatusBadRequest, errorResponse{Error: "validation_failed", Message: verr.Message, Field: verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "pipeline not found")
	case errors.Is(err, domain.ErrNotCancellable):
		a.error(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed")
	default:
		a.Logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "payload too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
