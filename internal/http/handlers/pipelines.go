package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/middleware"
)

// PipelineStart runs a pipeline inside the API process. Progress lives only
// in the pipeline record; there is no job and no retry.
func (a *App) PipelineStart(w http.ResponseWriter, r *http.Request) {
	var cfg domain.PipelineConfig
	if !a.decode(w, r, &cfg) {
		return
	}
	if uid := a.currentUserID(r); uid != "" {
		cfg.User = domain.UserRef{UserID: uid, Email: middleware.UserEmailFromContext(r.Context())}
	}
	res, err := a.Pipelines.StartPipeline(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, res)
}

func (a *App) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	p, err := a.Pipelines.GetPipelineStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}
