package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/laundrytrack-backend/api/controllers"
	"github.com/angelmondragon/laundrytrack-backend/api/middleware"
	"github.com/angelmondragon/laundrytrack-backend/pkg/config"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
)

// NewOpsRouter serves liveness, readiness and prometheus metrics for a worker
// binary. /healthz is kept as an alias of the readiness probe.
func NewOpsRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	ready := controllers.HealthReady(cfg.App.Env, logg, deps)
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", ready)
	})
	r.Get("/healthz", ready)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
