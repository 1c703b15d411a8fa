package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/courseforge/backend/internal/domain"
	"github.com/go-chi/chi/v5"
)

// streamPollInterval paces the drain loop for both SSE and WebSocket feeds.
const streamPollInterval = time.Second

// Progress streams progress events over Server-Sent Events. Each tick drains
// pending events and forwards them in order; the stream closes once a
// terminal status has been observed and its remaining events delivered.
func (h *GenerationHandler) Progress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	exists, err := h.repo.Exists(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to check session")
		return
	}
	if !exists {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event domain.ProgressEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	h.streamLoop(r.Context(), sessionID, send)
}

// ServeWS streams the same progress feed over a WebSocket connection.
func (h *GenerationHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	exists, err := h.repo.Exists(r.Context(), sessionID)
	if err != nil || !exists {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is enforced by the CORS layer
	})
	if err != nil {
		slog.Warn("WebSocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	send := func(event domain.ProgressEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}

	h.streamLoop(ctx, sessionID, send)
}

// streamLoop drains and forwards events until the client goes away, the
// session disappears, or a terminal status has been fully delivered. Reading
// the status before draining guarantees the drain that observes a terminal
// status already contains the job's final event.
func (h *GenerationHandler) streamLoop(ctx context.Context, sessionID string, send func(domain.ProgressEvent) error) {
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.tracker.Touch(sessionID)

		session, err := h.repo.Get(ctx, sessionID)
		if err != nil {
			slog.Warn("Progress stream read failed", "session_id", sessionID, "error", err)
			return
		}
		if session == nil {
			_ = send(domain.ProgressEvent{
				Type:      domain.EventError,
				Message:   "session no longer exists",
				Timestamp: time.Now(),
			})
			return
		}
		status := session.GenerationStatus

		events, err := h.plog.Drain(ctx, sessionID)
		if err != nil {
			slog.Warn("Progress stream drain failed", "session_id", sessionID, "error", err)
			return
		}
		for _, event := range events {
			if err := send(event); err != nil {
				slog.Debug("Progress stream client gone", "session_id", sessionID, "error", err)
				return
			}
		}

		if domain.IsTerminalStatus(status) {
			return
		}
	}
}
