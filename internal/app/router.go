package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mahnwerk/mahnwerk/internal/dunning"
	"github.com/mahnwerk/mahnwerk/internal/observability"
	"github.com/mahnwerk/mahnwerk/internal/recovery"
	"github.com/mahnwerk/mahnwerk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	DunningHandler  *dunning.Handler
	RecoveryHandler *recovery.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Mahnwerk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Scheduler-facing triggers. The caller is assumed to be an internal
	// scheduler; no authentication happens here.
	r.Route("/cron", func(r chi.Router) {
		params.DunningHandler.MountCron(r)
		params.RecoveryHandler.MountCron(r)
	})

	r.Route("/api/orgs/{orgID}", func(r chi.Router) {
		r.Route("/dunning", params.DunningHandler.MountAdmin)
		r.Route("/recovery", params.RecoveryHandler.MountAdmin)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
