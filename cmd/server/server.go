package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/app"
	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// fetchTimeout bounds a manual fetch; it stays below the server's WriteTimeout.
const fetchTimeout = 4 * time.Minute

type pipeline interface {
	Fetch(ctx context.Context, name string) (models.FetchResult, error)
	Health() map[string]models.HealthState
	UnmatchedCategories() map[string]int
	MetricsHandler() http.Handler
}

type server struct {
	pipeline pipeline
}

func newServer(p pipeline) *server {
	return &server{pipeline: p}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.pipeline.MetricsHandler())
	mux.HandleFunc("GET /categories/unmatched", s.handleUnmatched)
	mux.HandleFunc("POST /sources/{name}/fetch", s.handleFetch)
	return mux
}

type healthResponse struct {
	Status  string                        `json:"status"`
	Sources map[string]models.HealthState `json:"sources"`
}

// handleHealth always answers 200; a degraded source is still serving.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Sources: s.pipeline.Health()}
	for _, st := range resp.Sources {
		if st.Mode == models.ModeDegraded {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleUnmatched(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.UnmatchedCategories())
}

func (s *server) handleFetch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()

	res, err := s.pipeline.Fetch(ctx, name)
	switch {
	case errors.Is(err, app.ErrUnknownSource):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, app.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		slog.Error("Manual fetch failed", "source", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
