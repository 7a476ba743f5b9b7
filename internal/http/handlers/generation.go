package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/middleware"
)

type generationRequest struct {
	domain.PipelineConfig
	Priority string `json:"priority"`
}

// GenerationSubmit queues a durable generation job owned by the caller.
func (a *App) GenerationSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generationRequest
	if !a.decode(w, r, &req) {
		return
	}
	cfg := req.PipelineConfig
	cfg.User = domain.UserRef{UserID: userID, Email: middleware.UserEmailFromContext(r.Context())}

	sub, err := a.Generation.Submit(r.Context(), cfg, domain.Priority(req.Priority))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, sub)
}

// GenerationStatus returns the job snapshot for a pipeline id.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pipelineId")
	job, err := a.Generation.Status(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// GenerationCancel cancels a job the caller owns.
func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "pipelineId")
	job, err := a.Generation.Status(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// Other users' jobs are reported as missing.
	if job.UserID != userID {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	if err := a.Generation.Cancel(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"pipelineId": id,
		"status":     domain.PipelineStatusFailed,
		"message":    "cancelled by user",
	})
}

func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Generation.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, stats)
}
