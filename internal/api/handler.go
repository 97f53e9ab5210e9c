// Package api exposes simulation status and persisted artifacts over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/sim"
	"github.com/nidhogg/smallville/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	scheduler *sim.Scheduler
	store     *store.Store
	logger    *zap.Logger
}

// NewHandler creates a new API handler. The store may be nil when
// persistence is disabled.
func NewHandler(scheduler *sim.Scheduler, st *store.Store, logger *zap.Logger) *Handler {
	return &Handler{scheduler: scheduler, store: st, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/snapshots/latest", h.latestSnapshot)
		r.Get("/agents/{id}/memories", h.agentMemories)
		r.Get("/conversations/{id}/turns", h.conversationTurns)
		r.Post("/simulation/stop", h.stopSimulation)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := h.scheduler.Latest()
	if snapshot == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed rounds yet"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) agentMemories(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence disabled"})
		return
	}
	agentID := chi.URLParam(r, "id")
	records, err := h.store.GetAgentMemories(r.Context(), agentID, 20)
	if err != nil {
		h.logger.Error("load agent memories failed", zap.String("agent", agentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load memories"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) conversationTurns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence disabled"})
		return
	}
	convoID := chi.URLParam(r, "id")
	turns, err := h.store.GetLatestDialogueTurns(r.Context(), convoID, 20)
	if err != nil {
		h.logger.Error("load dialogue turns failed", zap.String("conversation", convoID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load turns"})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) stopSimulation(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping at round boundary"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
