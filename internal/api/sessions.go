package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/courseforge/backend/internal/content"
	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/generation"
	"github.com/courseforge/backend/internal/session"
	"github.com/courseforge/backend/internal/shared"
	"github.com/courseforge/backend/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxUploadSize = 50 << 20 // 50MB

// SessionHandler handles session lifecycle and ingestion endpoints.
type SessionHandler struct {
	*Handler
	mgr       *session.Manager
	ingestor  generation.Ingestor
	planner   generation.Planner
	uploadDir string
	outputDir string
	weeks     int
}

// NewSessionHandler creates a session handler. ingestor and planner may be
// nil when no generation service is configured; documented fallback defaults
// are applied in that case.
func NewSessionHandler(base *Handler, mgr *session.Manager, ingestor generation.Ingestor, planner generation.Planner, uploadDir, outputDir string, weeks int) *SessionHandler {
	return &SessionHandler{
		Handler:   base,
		mgr:       mgr,
		ingestor:  ingestor,
		planner:   planner,
		uploadDir: uploadDir,
		outputDir: outputDir,
		weeks:     weeks,
	}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
		r.Post("/sessions/{sessionID}/recover", h.RecoverSession)
		r.Post("/sessions/{sessionID}/plan", h.GeneratePlan)
		r.Put("/sessions/{sessionID}/plan", h.ApprovePlan)
		r.Post("/sessions/{sessionID}/resources", h.UploadResource)
		r.Get("/sessions/{sessionID}/materials", h.ListMaterials)
		r.Get("/sessions/{sessionID}/preview", h.PreviewFile)
		r.Get("/sessions/{sessionID}/file", h.DownloadFile)
		r.Get("/sessions/{sessionID}/download", h.DownloadAll)
		r.Post("/upload", h.Upload)
		r.Get("/usage-statistics", h.UsageStatistics)
	})
}

// CreateSession allocates a fresh session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.Create(r.Context())
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, s)
}

// ListSessions returns dashboard summaries, most recently active first.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.mgr.List(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, summaries)
}

// GetSession returns one session document. A missing session is a distinct
// 404, never an empty document.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.mgr.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	h.mgr.Tracker().Touch(sessionID)
	JSON(w, http.StatusOK, s)
}

// DeleteSession removes a session and all its on-disk artifacts.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	err := h.mgr.Delete(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Session %s deleted successfully", sessionID),
	})
}

// RecoverSession rebuilds a lost session record from on-disk artifacts.
func (h *SessionHandler) RecoverSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.mgr.Recover(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "no session data or artifacts found")
		return
	}
	if err != nil {
		slog.Error("Failed to recover session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to recover session")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"materials_found": len(s.CompletedMaterials),
		"session":         s,
	})
}

// Upload receives a module specification document, stores it under the
// uploads directory and runs ingestion. Without a configured ingestion
// service the documented fallback module data is applied.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		s, err := h.mgr.Create(r.Context())
		if err != nil {
			slog.Error("Failed to create session for upload", "error", err)
			Error(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		sessionID = s.SessionID
	} else {
		exists, err := h.repo.Exists(r.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to check session", "session_id", sessionID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to check session")
			return
		}
		if !exists {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	document, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	savedName := sessionID + "_" + shared.SanitizeFilename(header.Filename)
	if err := os.MkdirAll(h.uploadDir, 0755); err == nil {
		if err := os.WriteFile(filepath.Join(h.uploadDir, savedName), document, 0644); err != nil {
			slog.Warn("Failed to persist uploaded file", "session_id", sessionID, "error", err)
		}
	}

	var module *domain.ModuleData
	if h.ingestor != nil {
		module, err = h.ingestor.ExtractModuleData(r.Context(), document, header.Filename)
		if err != nil {
			slog.Error("Module ingestion failed", "session_id", sessionID, "error", err)
			Error(w, http.StatusBadGateway, "module data extraction failed")
			return
		}
	} else {
		slog.Info("No ingestion service configured, using fallback module data", "session_id", sessionID)
		module = content.FallbackModuleData(header.Filename)
	}

	ok, err := h.repo.Update(r.Context(), sessionID, store.Patch{
		store.FieldModuleData: module,
		store.FieldStatus:     "uploaded",
	})
	if err != nil || !ok {
		slog.Error("Failed to store module data", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store module data")
		return
	}

	h.mgr.Tracker().Touch(sessionID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sessionID,
		"module_data": module,
	})
}

// UploadResource attaches an auxiliary file (slides, readings, datasets) to a
// week of the session. Resources are stored alongside the module document
// upload and recorded in the session document for generation to use.
func (h *SessionHandler) UploadResource(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.mgr.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	week, err := strconv.Atoi(r.FormValue("week"))
	if err != nil || week < 1 {
		Error(w, http.StatusBadRequest, "week must be a positive number")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	savedName := fmt.Sprintf("%s_week%02d_%s", sessionID, week, shared.SanitizeFilename(header.Filename))
	savedPath := filepath.Join(h.uploadDir, savedName)
	if err := os.MkdirAll(h.uploadDir, 0755); err == nil {
		err = os.WriteFile(savedPath, data, 0644)
	}
	if err != nil {
		slog.Error("Failed to persist resource file", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store resource file")
		return
	}

	resource := domain.ResourceFile{
		OriginalName: header.Filename,
		SavedName:    savedName,
		Path:         savedPath,
		Size:         int64(len(data)),
		Type:         strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), "."),
		UploadDate:   time.Now(),
	}

	resources := s.ResourceFiles
	if resources == nil {
		resources = map[string][]domain.ResourceFile{}
	}
	weekKey := strconv.Itoa(week)
	resources[weekKey] = append(resources[weekKey], resource)

	ok, err := h.repo.Update(r.Context(), sessionID, store.Patch{
		store.FieldResourceFiles: resources,
	})
	if err != nil || !ok {
		slog.Error("Failed to record resource file", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to record resource file")
		return
	}

	h.mgr.Tracker().Touch(sessionID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"week":       week,
		"resource":   resource,
	})
}

// GeneratePlan produces and stores the weekly syllabus for a session.
func (h *SessionHandler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.mgr.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if s.ModuleData == nil {
		Error(w, http.StatusBadRequest, "session has no module data")
		return
	}

	var plans []domain.WeekPlan
	if h.planner != nil {
		plans, err = h.planner.GenerateWeekPlans(r.Context(), s.ModuleData)
		if err != nil {
			slog.Warn("Planning service failed, using fallback plan", "session_id", sessionID, "error", err)
			plans = content.FallbackWeekPlans(h.weeks)
		}
	} else {
		plans = content.FallbackWeekPlans(h.weeks)
	}

	ok, err := h.repo.Update(r.Context(), sessionID, store.Patch{
		store.FieldWeekPlans: plans,
		store.FieldStatus:    "planned",
	})
	if err != nil || !ok {
		slog.Error("Failed to store week plans", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store week plans")
		return
	}

	h.mgr.Tracker().Touch(sessionID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"week_plans": plans,
	})
}

// ApprovePlan persists the client-reviewed weekly syllabus. The submitted
// plans replace the generated ones wholesale, so user edits made during
// review survive into generation.
func (h *SessionHandler) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		WeekPlans []domain.WeekPlan `json:"week_plans"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.WeekPlans) == 0 {
		Error(w, http.StatusBadRequest, "week_plans is required")
		return
	}

	ok, err := h.repo.Update(r.Context(), sessionID, store.Patch{
		store.FieldWeekPlans: req.WeekPlans,
		store.FieldStatus:    "approved",
	})
	if err != nil {
		slog.Error("Failed to store approved plan", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store approved plan")
		return
	}
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	h.mgr.Tracker().Touch(sessionID)
	JSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Plan approved",
	})
}

// artifactPath resolves a client-supplied relative file name inside the
// session's output directory. Names that escape the directory are rejected.
func (h *SessionHandler) artifactPath(sessionID, name string) (string, bool) {
	base := filepath.Join(h.outputDir, sessionID)
	path := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

// PreviewFile returns inline preview content for one generated artifact,
// selected by the file query parameter.
func (h *SessionHandler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	name := r.URL.Query().Get("file")
	if name == "" {
		Error(w, http.StatusBadRequest, "file query parameter is required")
		return
	}
	path, ok := h.artifactPath(sessionID, name)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid file path")
		return
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			Error(w, http.StatusNotFound, "file not found")
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"type":    "text",
			"content": string(data),
		})
	case ".pdf":
		if _, err := os.Stat(path); err != nil {
			Error(w, http.StatusNotFound, "file not found")
			return
		}
		JSON(w, http.StatusOK, map[string]interface{}{
			"type": "pdf",
			"path": name,
		})
	default:
		JSON(w, http.StatusOK, map[string]interface{}{
			"type":    "unsupported",
			"message": "Preview not available for this file type",
		})
	}
}

// DownloadFile streams one generated artifact as an attachment.
func (h *SessionHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	name := r.URL.Query().Get("file")
	if name == "" {
		Error(w, http.StatusBadRequest, "file query parameter is required")
		return
	}
	path, ok := h.artifactPath(sessionID, name)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid file path")
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		Error(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// ListMaterials returns the filesystem scan of generated artifacts.
func (h *SessionHandler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	exists, err := h.repo.Exists(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to check session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to check session")
		return
	}
	if !exists {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	materials := session.ScanMaterials(h.outputDir, sessionID)
	if materials == nil {
		materials = []domain.MaterialRecord{}
	}
	JSON(w, http.StatusOK, materials)
}

// DownloadAll streams a zip bundle of every generated artifact.
func (h *SessionHandler) DownloadAll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := os.Stat(filepath.Join(h.outputDir, sessionID)); err != nil {
		Error(w, http.StatusNotFound, "no materials found for session")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="course_materials_%s.zip"`, shared.SanitizeFilename(sessionID)))

	if err := h.mgr.WriteArchive(w, sessionID); err != nil {
		// Headers may already be gone; log rather than emit a broken body.
		slog.Error("Failed to write session archive", "session_id", sessionID, "error", err)
	}
}

// UsageStatistics returns aggregate usage numbers.
func (h *SessionHandler) UsageStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.mgr.Stats(r.Context())
	if err != nil {
		slog.Error("Failed to compute usage statistics", "error", err)
		Error(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	JSON(w, http.StatusOK, stats)
}
