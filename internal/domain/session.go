// Package domain contains core domain types for the CourseForge backend.
package domain

import (
	"time"
)

// Generation status values. A session's generation_status moves through these
// as a job runs; Stopped, Completed and Error are terminal for a job run.
const (
	StatusInitialized = "initialized"
	StatusRunning     = "running"
	StatusPaused      = "paused"
	StatusStopped     = "stopped"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusRecovered   = "recovered"
)

// IsTerminalStatus returns true for statuses that end a job run.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusStopped, StatusCompleted, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether a generation status transition is allowed.
// A new start is always allowed from a non-running state, which is why
// terminal states and "initialized"/"recovered" all permit Running.
func CanTransition(from, to string) bool {
	switch to {
	case StatusRunning:
		return from != StatusRunning
	case StatusPaused:
		return from == StatusRunning
	case StatusStopped:
		return from == StatusRunning || from == StatusPaused
	case StatusCompleted, StatusError:
		return from == StatusRunning
	}
	return false
}

// Session is the central entity: one end-to-end workflow instance for a
// single module. It is persisted as a JSON document keyed by SessionID.
type Session struct {
	SessionID           string                    `json:"session_id"`
	Status              string                    `json:"status"`
	GenerationStatus    string                    `json:"generation_status"`
	ModuleData          *ModuleData               `json:"module_data,omitempty"`
	WeekPlans           []WeekPlan                `json:"week_plans"`
	GenerationMaterials []string                  `json:"generation_materials,omitempty"`
	TotalMaterials      int                       `json:"total_materials"`
	CompletedMaterials  []MaterialRecord          `json:"completed_materials"`
	ProgressUpdates     []ProgressEvent           `json:"progress_updates"`
	ResourceFiles       map[string][]ResourceFile `json:"resource_files,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	LastActivity        time.Time                 `json:"last_activity"`
	ErrorMessage        string                    `json:"error_message,omitempty"`
	PausedAt            *time.Time                `json:"paused_at,omitempty"`
	ResumedAt           *time.Time                `json:"resumed_at,omitempty"`
	StoppedAt           *time.Time                `json:"stopped_at,omitempty"`
}

// NewSession returns the initial empty-workflow document for a fresh session.
func NewSession(sessionID string) *Session {
	return &Session{
		SessionID:          sessionID,
		Status:             StatusInitialized,
		GenerationStatus:   StatusInitialized,
		WeekPlans:          []WeekPlan{},
		CompletedMaterials: []MaterialRecord{},
		ProgressUpdates:    []ProgressEvent{},
		ResourceFiles:      map[string][]ResourceFile{},
	}
}

// HasPlan reports whether the session holds everything generation requires.
func (s *Session) HasPlan() bool {
	return s.ModuleData != nil && len(s.WeekPlans) > 0
}

// HasCompleted reports whether a material of the given type was already
// produced for the given week in this session.
func (s *Session) HasCompleted(week int, materialType string) bool {
	for _, m := range s.CompletedMaterials {
		if m.Week == week && m.Type == materialType {
			return true
		}
	}
	return false
}

// ModuleTitle returns the module title or a placeholder when no module data
// has been ingested yet.
func (s *Session) ModuleTitle() string {
	if s.ModuleData != nil && s.ModuleData.Title != "" {
		return s.ModuleData.Title
	}
	return "Untitled Module"
}

// Progress returns completed and total material counts plus a percentage for
// display. The total is an estimate and is used only for reporting.
func (s *Session) Progress() (completed, total int, percent float64) {
	completed = len(s.CompletedMaterials)
	total = s.TotalMaterials
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
	}
	return completed, total, percent
}

// ResourceFile describes an uploaded auxiliary file attached to a week.
type ResourceFile struct {
	OriginalName string    `json:"original_name"`
	SavedName    string    `json:"saved_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Type         string    `json:"type"`
	UploadDate   time.Time `json:"upload_date"`
}
