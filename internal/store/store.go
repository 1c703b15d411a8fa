// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/courseforge/backend/internal/domain"
)

// Patch is a set of shallow session-document updates keyed by JSON field
// name. Each value replaces the stored value for its key (no deep merge).
type Patch map[string]any

// JSON field names usable as Patch keys.
const (
	FieldStatus              = "status"
	FieldGenerationStatus    = "generation_status"
	FieldModuleData          = "module_data"
	FieldWeekPlans           = "week_plans"
	FieldGenerationMaterials = "generation_materials"
	FieldTotalMaterials      = "total_materials"
	FieldCompletedMaterials  = "completed_materials"
	FieldProgressUpdates     = "progress_updates"
	FieldResourceFiles       = "resource_files"
	FieldErrorMessage        = "error_message"
	FieldPausedAt            = "paused_at"
	FieldResumedAt           = "resumed_at"
	FieldStoppedAt           = "stopped_at"
)

// Repository defines the interface for persisting session documents.
type Repository interface {
	// Create persists a session document, generating a new unique id when the
	// session has none. Pre-assigned ids overwrite any existing record
	// (idempotent create). Returns the session id.
	Create(ctx context.Context, session *domain.Session) (string, error)

	// Get retrieves a session by id. Returns (nil, nil) when no record
	// exists. A stored document that cannot be deserialized is returned as an
	// empty session rather than an error.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Exists reports whether a session record exists.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Update merges the patch into the stored document (shallow key
	// overwrite) and refreshes last_activity. The merge and timestamp refresh
	// are atomic with respect to concurrent updates to the same session:
	// disjoint key sets never lose writes, identical keys are
	// last-writer-wins. Returns false without creating anything when the
	// session does not exist.
	Update(ctx context.Context, sessionID string, patch Patch) (bool, error)

	// Delete removes a session record, reporting whether a row was removed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// ListAll returns every stored session in unspecified order. Corrupted
	// rows are skipped.
	ListAll(ctx context.Context) ([]*domain.Session, error)

	// PruneInactiveBefore deletes sessions whose last_activity predates the
	// cutoff, each removal all-or-nothing per session. Returns removed ids.
	PruneInactiveBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
