package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter собирает chi-роутер со всеми маршрутами API.
// gatherer — источник /metrics (nil — prometheus.DefaultGatherer).
func (h *Handler) NewRouter(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Instrument(h.logger, h.metrics))
		r.Use(Recovery(h.logger))
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) { NotFound(w, "route not found") })
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { MethodNotAllowed(w) })

		// Jobs
		r.Get("/jobs", h.ListJobs)
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs/{id}", h.GetJob)

		// System
		r.Get("/status", h.GetStatus)
		r.Post("/halt", h.Halt)

		// Workers
		r.Get("/workers", h.ListWorkers)
		r.Post("/workers", h.RegisterWorker)

		// Archive and schedules
		r.Get("/archive", h.ListArchive)
		r.Get("/schedules", h.ListSchedules)
	})

	return r
}
