package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/courseforge/backend/internal/generation"
	"github.com/courseforge/backend/internal/progress"
	"github.com/courseforge/backend/internal/session"
	"github.com/go-chi/chi/v5"
)

// GenerationHandler handles job control endpoints.
type GenerationHandler struct {
	*Handler
	ctrl    *generation.Controller
	plog    *progress.Log
	tracker *session.Tracker
}

// NewGenerationHandler creates a generation handler.
func NewGenerationHandler(base *Handler, ctrl *generation.Controller, plog *progress.Log, tracker *session.Tracker) *GenerationHandler {
	return &GenerationHandler{
		Handler: base,
		ctrl:    ctrl,
		plog:    plog,
		tracker: tracker,
	}
}

// RegisterRoutes registers generation routes.
func (h *GenerationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/generation", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/{sessionID}/pause", h.Pause)
		r.Post("/{sessionID}/resume", h.Resume)
		r.Post("/{sessionID}/stop", h.Stop)
		r.Get("/{sessionID}/status", h.Status)
		r.Get("/{sessionID}/progress", h.Progress)
	})
}

type startRequest struct {
	SessionID string   `json:"session_id"`
	Materials []string `json:"materials"`
}

// Start launches a generation job for a session.
func (h *GenerationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	info, err := h.ctrl.Start(r.Context(), req.SessionID, req.Materials)
	if err != nil {
		h.jobError(w, req.SessionID, err)
		return
	}

	h.tracker.Touch(req.SessionID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "started",
		"total_weeks":     info.TotalWeeks,
		"total_materials": info.TotalMaterials,
	})
}

// Pause flags a running job; the run yields at its next checkpoint.
func (h *GenerationHandler) Pause(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.ctrl.Pause(r.Context(), sessionID); err != nil {
		h.jobError(w, sessionID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Generation paused"})
}

// Resume relaunches a paused job over its persisted material selection.
func (h *GenerationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.ctrl.Resume(r.Context(), sessionID); err != nil {
		h.jobError(w, sessionID, err)
		return
	}
	h.tracker.Touch(sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Generation resumed"})
}

// Stop terminates a job; a later start begins a fresh run.
func (h *GenerationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.ctrl.Stop(r.Context(), sessionID); err != nil {
		h.jobError(w, sessionID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Generation stopped"})
}

// Status returns the job state and progress percentage.
func (h *GenerationHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	status, err := h.ctrl.Status(r.Context(), sessionID)
	if err != nil {
		h.jobError(w, sessionID, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// jobError maps controller errors onto client-visible responses.
func (h *GenerationHandler) jobError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, generation.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, generation.ErrMissingPlan),
		errors.Is(err, generation.ErrMissingSelection):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generation.ErrJobActive),
		errors.Is(err, generation.ErrInvalidTransition):
		Error(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Generation request failed", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
