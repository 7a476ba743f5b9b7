package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Dexploarer/hyper-forge-sub006/internal/http/handlers"
	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/middleware"
)

// Options carries the cross-cutting settings the router needs.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	Logger          infra.Logger
	// StaticDir, when set, is served under /static for local artifact storage.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	auth := middleware.AuthJWT(opts.JWTSecret)
	limit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Route("/generation", func(r chi.Router) {
			r.With(auth, limit).Post("/", app.GenerationSubmit)
			r.Get("/{pipelineId}", app.GenerationStatus)
			r.Get("/{pipelineId}/events", app.GenerationEvents)
			r.With(auth).Post("/{pipelineId}/cancel", app.GenerationCancel)
		})

		if app.Pipelines != nil {
			r.Route("/pipelines", func(r chi.Router) {
				r.With(auth, limit).Post("/", app.PipelineStart)
				r.Get("/{id}", app.PipelineStatus)
			})
		}

		r.Get("/queue/stats", app.QueueStats)
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return r
}
