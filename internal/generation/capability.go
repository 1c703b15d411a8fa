// Package generation coordinates background material-generation jobs:
// starting, pausing, resuming and stopping a run per session, with progress
// reported through the session's progress log.
package generation

import (
	"context"
	"errors"

	"github.com/courseforge/backend/internal/domain"
)

// Sentinel errors surfaced to the HTTP layer before any background work
// begins.
var (
	// ErrSessionNotFound means the referenced session has no stored record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMissingPlan means the session has no module data or week plans yet.
	ErrMissingPlan = errors.New("session has no module data or week plans")

	// ErrMissingSelection means a resume found no persisted material selection.
	ErrMissingSelection = errors.New("session has no stored material selection")

	// ErrJobActive means a background run for the session is still producing
	// materials. At most one run per session is ever active.
	ErrJobActive = errors.New("a generation job is already active for this session")

	// ErrInvalidTransition means the requested status change is not an edge
	// of the job state machine.
	ErrInvalidTransition = errors.New("invalid generation status transition")
)

// Ingestor extracts structured module data from an uploaded specification
// document. Failures are surfaced, not silently defaulted; callers may apply
// content.FallbackModuleData for missing sub-fields.
type Ingestor interface {
	ExtractModuleData(ctx context.Context, document []byte, filename string) (*domain.ModuleData, error)
}

// Planner produces the ordered weekly syllabus for a module.
type Planner interface {
	GenerateWeekPlans(ctx context.Context, module *domain.ModuleData) ([]domain.WeekPlan, error)
}

// Generator is the external content-generation capability. It is slow and
// failure-prone; every call is a suspension point for the job.
type Generator interface {
	GenerateMaterial(ctx context.Context, module *domain.ModuleData, week domain.WeekPlan, materialType string) ([]domain.ContentItem, error)
}

// Exporter converts one content item into an artifact at destPath, creating
// parent directories as needed.
type Exporter interface {
	Export(ctx context.Context, item domain.ContentItem, format string, destPath string) error
}
