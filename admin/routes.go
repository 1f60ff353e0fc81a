package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/telemetry"
)

// NewRouter builds the admin HTTP surface: /healthz, /metrics (mounting
// telemetry.Handler()), and /debug/pool, matching the DOMAIN STACK's
// admin/routes.go entry.
func NewRouter(p *pool.Pool) http.Handler {
	h := NewHandlers(p)
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealthz)
	r.Get("/debug/pool", h.handlePoolStats)

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metricsHandler := telemetry.Handler()
		if metricsHandler == nil {
			writeError(w, http.StatusServiceUnavailable, "telemetry not initialized")
			return
		}
		metricsHandler.ServeHTTP(w, req)
	})

	log.Info().Msg("admin: routes registered at /healthz, /metrics, /debug/pool")
	return r
}
