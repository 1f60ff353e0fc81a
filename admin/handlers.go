// Package admin exposes a small HTTP surface for operating a dqlited node:
// a liveness probe, the Prometheus exporter, and a debug view of the write
// pool's queue depths — grounded on the teacher's own admin package
// (admin/routes.go, admin/handlers.go), trimmed to the handful of endpoints
// SPEC_FULL names since dqlited has no MetaStore/transaction/intent
// metadata surface to expose.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/pool"
)

// Handlers holds the dependencies the admin HTTP surface reads from.
type Handlers struct {
	pool *pool.Pool
}

func NewHandlers(p *pool.Pool) *Handlers {
	return &Handlers{pool: p}
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "pool not initialized")
		return
	}
	stats := h.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ordered_depth":   stats.OrderedDepth,
		"unordered_depth": stats.UnorderedDepth,
		"in_flight":       stats.InFlight,
		"planner_state":   stats.PlannerState,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("admin: failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
