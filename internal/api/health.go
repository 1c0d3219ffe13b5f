package api

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenmind/haven/internal/chat"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	pool   *pgxpool.Pool
	svc    *chat.Service
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. pool backs the readiness
// database ping.
func NewHealthHandler(pool *pgxpool.Pool, svc *chat.Service, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, svc: svc, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 while the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readinessResponse reports readiness plus the state of background
// initialization. semantic_scan false means crisis detection is running
// keyword-only while exemplar embeddings warm up; the server still
// accepts traffic.
type readinessResponse struct {
	Status       string `json:"status"`
	SemanticScan bool   `json:"semantic_scan"`
}

// readiness returns 200 when the database is reachable.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}

	resp := readinessResponse{Status: "ready"}
	if h.svc != nil {
		resp.SemanticScan = h.svc.Ready()
	}
	writeJSON(w, http.StatusOK, resp)
}
