// Package api exposes the read-only operational surface of a crawl
// process: liveness and store statistics. It is not the dashboard;
// there is no UI and no auth, just endpoints for probes and curl.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ekerdev/vehicle-ingest/internal/database"
)

type Handlers struct {
	store  *database.Store
	logger *slog.Logger
}

func NewHandlers(store *database.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: logger.With("component", "api"),
	}
}

func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if err := h.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body = map[string]string{"status": "store unavailable"}
	}

	writeJSON(w, status, body)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
