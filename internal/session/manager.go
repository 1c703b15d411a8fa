// Package session implements the session lifecycle: creation, recovery from
// on-disk artifacts, deletion, dashboards and time-based eviction.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/store"
)

// ErrSessionNotFound is returned when a session has neither a store record
// nor any on-disk traces.
var ErrSessionNotFound = errors.New("session not found")

// Manager owns session lifecycle operations. The store is the source of
// truth; the tracker only shields in-flight sessions from eviction.
type Manager struct {
	repo      store.Repository
	outputDir string
	uploadDir string
	tracker   *Tracker
}

// NewManager creates a session lifecycle manager.
func NewManager(repo store.Repository, outputDir, uploadDir string, tracker *Tracker) *Manager {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Manager{
		repo:      repo,
		outputDir: outputDir,
		uploadDir: uploadDir,
		tracker:   tracker,
	}
}

// Tracker exposes the advisory activity tracker for request handlers.
func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

// Create allocates an id and persists the initial empty-workflow document.
func (m *Manager) Create(ctx context.Context) (*domain.Session, error) {
	session := domain.NewSession("")
	id, err := m.repo.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.tracker.Touch(id)
	slog.Info("Session created", "session_id", id)
	return session, nil
}

// Get returns a stored session, or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Recover rebuilds a session whose store entry is missing from its on-disk
// artifacts. When the store already has the session this is a no-op
// returning the stored document.
func (m *Manager) Recover(ctx context.Context, sessionID string) (*domain.Session, error) {
	existing, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	outputExists := false
	if _, err := os.Stat(filepath.Join(m.outputDir, sessionID)); err == nil {
		outputExists = true
	}
	uploads, _ := filepath.Glob(filepath.Join(m.uploadDir, sessionID+"_*"))
	if !outputExists && len(uploads) == 0 {
		return nil, ErrSessionNotFound
	}

	session := domain.NewSession(sessionID)
	session.Status = domain.StatusRecovered
	session.GenerationStatus = domain.StatusRecovered
	session.CompletedMaterials = ScanMaterials(m.outputDir, sessionID)
	if len(session.CompletedMaterials) > 0 {
		session.GenerationStatus = domain.StatusCompleted
		session.TotalMaterials = len(session.CompletedMaterials)
	}

	if _, err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist recovered session: %w", err)
	}

	slog.Info("Session recovered",
		"session_id", sessionID,
		"materials_found", len(session.CompletedMaterials))
	return session, nil
}

// Delete removes the session record, its output directory and any uploaded
// files. Returns ErrSessionNotFound when nothing existed anywhere.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	removed, err := m.repo.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session record: %w", err)
	}

	removedFiles := m.removeFiles(sessionID)
	m.tracker.Release(sessionID)

	if !removed && !removedFiles {
		return ErrSessionNotFound
	}
	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

func (m *Manager) removeFiles(sessionID string) bool {
	removed := false

	sessionDir := filepath.Join(m.outputDir, sessionID)
	if _, err := os.Stat(sessionDir); err == nil {
		if err := os.RemoveAll(sessionDir); err != nil {
			slog.Warn("Failed to remove session output directory", "session_id", sessionID, "error", err)
		} else {
			removed = true
		}
	}

	uploads, _ := filepath.Glob(filepath.Join(m.uploadDir, sessionID+"_*"))
	for _, path := range uploads {
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove uploaded file", "session_id", sessionID, "path", path, "error", err)
		} else {
			removed = true
		}
	}
	return removed
}

// Summary is the dashboard view of one session.
type Summary struct {
	ID                 string    `json:"id"`
	ModuleTitle        string    `json:"module_title"`
	ModuleDescription  string    `json:"module_description,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	LastActivity       time.Time `json:"last_activity"`
	TotalMaterials     int       `json:"total_materials"`
	CompletedMaterials int       `json:"completed_materials"`
	TotalWeeks         int       `json:"total_weeks"`
	TotalSize          int64     `json:"total_size"`
	SelectedMaterials  []string  `json:"selected_materials"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}

// List returns summaries of every session, most recently active first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	sessions, err := m.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		var totalSize int64
		for _, rec := range s.CompletedMaterials {
			totalSize += rec.Size
		}
		summary := Summary{
			ID:                 s.SessionID,
			ModuleTitle:        s.ModuleTitle(),
			Status:             s.GenerationStatus,
			CreatedAt:          s.CreatedAt,
			LastActivity:       s.LastActivity,
			TotalMaterials:     s.TotalMaterials,
			CompletedMaterials: len(s.CompletedMaterials),
			TotalWeeks:         len(s.WeekPlans),
			TotalSize:          totalSize,
			SelectedMaterials:  s.GenerationMaterials,
			ErrorMessage:       s.ErrorMessage,
		}
		if s.ModuleData != nil {
			summary.ModuleDescription = s.ModuleData.Description
		}
		if summary.SelectedMaterials == nil {
			summary.SelectedMaterials = []string{}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// UsageStats aggregates usage across every session.
type UsageStats struct {
	TotalSessions     int   `json:"total_sessions"`
	CompletedSessions int   `json:"completed_sessions"`
	TotalMaterials    int   `json:"total_materials"`
	TotalSize         int64 `json:"total_size"`
}

// Stats computes usage statistics from stored sessions and their on-disk
// artifacts.
func (m *Manager) Stats(ctx context.Context) (*UsageStats, error) {
	sessions, err := m.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	stats := &UsageStats{}
	for _, s := range sessions {
		stats.TotalSessions++
		if s.GenerationStatus == domain.StatusCompleted {
			stats.CompletedSessions++
		}
		for _, rec := range ScanMaterials(m.outputDir, s.SessionID) {
			stats.TotalMaterials++
			stats.TotalSize += rec.Size
		}
	}
	return stats, nil
}

// CleanupInactive prunes sessions whose last_activity predates the cutoff,
// skipping ids the tracker still considers active, then removes their
// on-disk artifacts. Returns the removed ids.
func (m *Manager) CleanupInactive(ctx context.Context, cutoff time.Time) ([]string, error) {
	sessions, err := m.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan sessions for cleanup: %w", err)
	}

	grace := time.Since(cutoff)
	var removed []string
	for _, s := range sessions {
		if !s.LastActivity.Before(cutoff) {
			continue
		}
		if m.tracker.IsActive(s.SessionID, grace) {
			slog.Debug("Skipping cleanup of active session", "session_id", s.SessionID)
			continue
		}

		ok, err := m.repo.Delete(ctx, s.SessionID)
		if err != nil {
			slog.Error("Failed to delete inactive session", "session_id", s.SessionID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		m.removeFiles(s.SessionID)
		removed = append(removed, s.SessionID)
	}

	if len(removed) > 0 {
		slog.Info("Inactive sessions cleaned up", "count", len(removed))
	}
	return removed, nil
}
