// Package http exposes the engine's small ops surface: health, metrics and
// a manual scheduler tick for operators and external cron triggers.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ticker is the scheduler surface the ops API needs.
type Ticker interface {
	Tick(ctx context.Context) (int, error)
}

// Handler serves the ops endpoints.
type Handler struct {
	scheduler Ticker
	logger    *slog.Logger
}

func NewHandler(scheduler Ticker, logger *slog.Logger) *Handler {
	return &Handler{scheduler: scheduler, logger: logger}
}

// NewRouter assembles the ops router.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/tick", h.handleTick)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	processed, err := h.scheduler.Tick(r.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "manual tick failed", "error", err)
		}
		http.Error(w, "tick failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok: %d runs completed", processed)
}
