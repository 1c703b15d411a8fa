package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/progress"
	"github.com/courseforge/backend/internal/shared"
	"github.com/courseforge/backend/internal/store"
)

// Controller orchestrates background generation runs. All cross-request
// coordination goes through the session store; the in-process run registry
// only enforces that a single run per session is active at a time.
type Controller struct {
	repo      store.Repository
	plog      *progress.Log
	generator Generator
	exporter  Exporter
	outputDir string

	// baseCtx bounds every background run; it is the server lifetime, not a
	// request context.
	baseCtx context.Context

	runs sync.Map // session ids with a live background run
}

// NewController creates a job controller. baseCtx should be the server's
// shutdown context so in-flight runs stop at their next checkpoint on
// shutdown.
func NewController(baseCtx context.Context, repo store.Repository, plog *progress.Log, generator Generator, exporter Exporter, outputDir string) *Controller {
	return &Controller{
		repo:      repo,
		plog:      plog,
		generator: generator,
		exporter:  exporter,
		outputDir: outputDir,
		baseCtx:   baseCtx,
	}
}

// StartInfo reports the shape of a launched job.
type StartInfo struct {
	TotalWeeks     int `json:"total_weeks"`
	TotalMaterials int `json:"total_materials"`
}

// JobStatus is the current state of a session's generation job.
type JobStatus struct {
	Status             string  `json:"status"`
	CompletedMaterials int     `json:"completed_materials"`
	TotalMaterials     int     `json:"total_materials"`
	Percent            float64 `json:"percent"`
	ErrorMessage       string  `json:"error_message,omitempty"`
}

// Start validates preconditions, persists the material selection and
// launches a fresh background run. Prior completed-material records are
// cleared: a start is a new job, not a resume.
func (c *Controller) Start(ctx context.Context, sessionID string, materials []string) (*StartInfo, error) {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasPlan() {
		return nil, ErrMissingPlan
	}
	if len(materials) == 0 {
		return nil, ErrMissingSelection
	}

	if err := c.reserve(sessionID); err != nil {
		return nil, err
	}

	total := domain.EstimateTotalMaterials(materials, len(session.WeekPlans))
	ok, err := c.repo.Update(ctx, sessionID, store.Patch{
		store.FieldGenerationMaterials: materials,
		store.FieldGenerationStatus:    domain.StatusRunning,
		store.FieldStatus:              domain.StatusRunning,
		store.FieldTotalMaterials:      total,
		store.FieldCompletedMaterials:  []domain.MaterialRecord{},
		store.FieldErrorMessage:        "",
	})
	if err != nil || !ok {
		c.release(sessionID)
		if err != nil {
			return nil, fmt.Errorf("persist job start: %w", err)
		}
		return nil, ErrSessionNotFound
	}

	c.launch(sessionID, materials)

	slog.Info("Generation job started",
		"session_id", sessionID,
		"materials", materials,
		"total_weeks", len(session.WeekPlans),
		"total_materials", total)

	return &StartInfo{TotalWeeks: len(session.WeekPlans), TotalMaterials: total}, nil
}

// Pause flags a running job. The background run observes the flag at its
// next checkpoint; item work already in flight is allowed to finish.
func (c *Controller) Pause(ctx context.Context, sessionID string) error {
	if err := c.transition(ctx, sessionID, domain.StatusPaused, store.FieldPausedAt); err != nil {
		return err
	}
	return c.plog.Append(ctx, sessionID, domain.ProgressEvent{Type: domain.EventPaused})
}

// Resume relaunches a paused job over the persisted material selection.
// Completed items are skipped by the run, so a resume continues rather than
// regenerates. Only a paused job can be resumed; stopped, completed and
// errored sessions need a fresh Start.
func (c *Controller) Resume(ctx context.Context, sessionID string) error {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.GenerationStatus != domain.StatusPaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.GenerationStatus, domain.StatusRunning)
	}
	if len(session.GenerationMaterials) == 0 {
		return ErrMissingSelection
	}

	// Reserve before flipping the flag: if the paused run has not yet
	// observed its checkpoint, refuse rather than double-run.
	if err := c.reserve(sessionID); err != nil {
		return err
	}

	ok, err := c.repo.Update(ctx, sessionID, store.Patch{
		store.FieldGenerationStatus: domain.StatusRunning,
		store.FieldResumedAt:        time.Now(),
	})
	if err != nil || !ok {
		c.release(sessionID)
		if err != nil {
			return fmt.Errorf("persist job resume: %w", err)
		}
		return ErrSessionNotFound
	}

	c.launch(sessionID, session.GenerationMaterials)
	slog.Info("Generation job resumed", "session_id", sessionID)
	return nil
}

// Stop terminates a running or paused job. Terminal: a later Start begins a
// fresh run for the same session.
func (c *Controller) Stop(ctx context.Context, sessionID string) error {
	if err := c.transition(ctx, sessionID, domain.StatusStopped, store.FieldStoppedAt); err != nil {
		return err
	}
	return c.plog.Append(ctx, sessionID, domain.ProgressEvent{Type: domain.EventStopped})
}

// Status returns the job state and progress percentage for a session.
func (c *Controller) Status(ctx context.Context, sessionID string) (*JobStatus, error) {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	completed, total, percent := session.Progress()
	return &JobStatus{
		Status:             session.GenerationStatus,
		CompletedMaterials: completed,
		TotalMaterials:     total,
		Percent:            percent,
		ErrorMessage:       session.ErrorMessage,
	}, nil
}

// Active reports whether a background run for the session is currently live.
func (c *Controller) Active(sessionID string) bool {
	_, ok := c.runs.Load(sessionID)
	return ok
}

// transition performs a validated status flip plus its timestamp field.
func (c *Controller) transition(ctx context.Context, sessionID, to, timestampField string) error {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !domain.CanTransition(session.GenerationStatus, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.GenerationStatus, to)
	}

	ok, err := c.repo.Update(ctx, sessionID, store.Patch{
		store.FieldGenerationStatus: to,
		timestampField:              time.Now(),
	})
	if err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (c *Controller) reserve(sessionID string) error {
	if _, loaded := c.runs.LoadOrStore(sessionID, struct{}{}); loaded {
		return ErrJobActive
	}
	return nil
}

func (c *Controller) release(sessionID string) {
	c.runs.Delete(sessionID)
}

func (c *Controller) launch(sessionID string, materials []string) {
	go func() {
		defer c.release(sessionID)
		c.runJob(c.baseCtx, sessionID, materials)
	}()
}

// runJob is the background run: weeks in stored order, material types in
// catalog order within a week, a cooperative cancellation checkpoint before
// each. Per-item failures are isolated; anything outside that boundary is
// job-fatal.
func (c *Controller) runJob(ctx context.Context, sessionID string, materials []string) {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		c.failJob(ctx, sessionID, fmt.Errorf("read session: %w", err))
		return
	}
	if session == nil || !session.HasPlan() {
		c.failJob(ctx, sessionID, errors.New("session data missing"))
		return
	}

	module := session.ModuleData
	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:        domain.EventGenerationStart,
		ModuleTitle: module.Title,
		TotalWeeks:  len(session.WeekPlans),
	})

	for _, week := range session.WeekPlans {
		cont, fatal := c.checkpoint(ctx, sessionID)
		if fatal != nil {
			c.failJob(ctx, sessionID, fatal)
			return
		}
		if !cont {
			return
		}

		c.emit(ctx, sessionID, domain.ProgressEvent{
			Type:       domain.EventWeekStart,
			WeekNumber: week.WeekNumber,
			WeekTitle:  week.Title,
		})

		for _, mt := range domain.WeekMaterialTypes {
			if !slices.Contains(materials, mt.Key) {
				continue
			}

			cont, fatal := c.checkpoint(ctx, sessionID)
			if fatal != nil {
				c.failJob(ctx, sessionID, fatal)
				return
			}
			if !cont {
				return
			}

			if done, err := c.alreadyCompleted(ctx, sessionID, week.WeekNumber, mt.Key); err != nil {
				c.failJob(ctx, sessionID, err)
				return
			} else if done {
				continue
			}

			if err := c.generatePair(ctx, sessionID, module, week, mt); err != nil {
				// Per-item failure: report and move on to the next item.
				slog.Warn("Material generation failed",
					"session_id", sessionID,
					"week", week.WeekNumber,
					"material_type", mt.Key,
					"error", err)
				c.emit(ctx, sessionID, domain.ProgressEvent{
					Type:         domain.EventError,
					WeekNumber:   week.WeekNumber,
					MaterialType: mt.Key,
					MaterialName: mt.Name,
					Message:      fmt.Sprintf("Error generating %s for Week %d: %v", mt.Name, week.WeekNumber, err),
				})
			}
		}

		c.emit(ctx, sessionID, domain.ProgressEvent{
			Type:       domain.EventWeekComplete,
			WeekNumber: week.WeekNumber,
		})
	}

	// Module-level materials are generated once, after all weeks.
	for _, mt := range domain.OverviewMaterialTypes {
		if !slices.Contains(materials, mt.Key) {
			continue
		}

		cont, fatal := c.checkpoint(ctx, sessionID)
		if fatal != nil {
			c.failJob(ctx, sessionID, fatal)
			return
		}
		if !cont {
			return
		}

		if done, err := c.alreadyCompleted(ctx, sessionID, 0, mt.Key); err != nil {
			c.failJob(ctx, sessionID, err)
			return
		} else if done {
			continue
		}

		if err := c.generateOverview(ctx, sessionID, module, mt); err != nil {
			slog.Warn("Overview generation failed",
				"session_id", sessionID,
				"material_type", mt.Key,
				"error", err)
			c.emit(ctx, sessionID, domain.ProgressEvent{
				Type:         domain.EventError,
				MaterialType: mt.Key,
				MaterialName: mt.Name,
				Message:      fmt.Sprintf("Error generating %s: %v", mt.Name, err),
			})
		}
	}

	// A stop or pause landing after the last item must not be overwritten
	// by the completed flip.
	cont, fatal := c.checkpoint(ctx, sessionID)
	if fatal != nil {
		c.failJob(ctx, sessionID, fatal)
		return
	}
	if !cont {
		return
	}

	// The final event goes in before the status flip so a consumer that
	// observes the terminal status is guaranteed to find the event drained
	// or drainable.
	c.emit(ctx, sessionID, domain.ProgressEvent{Type: domain.EventGenerationComplete})
	if _, err := c.repo.Update(ctx, sessionID, store.Patch{
		store.FieldGenerationStatus: domain.StatusCompleted,
		store.FieldStatus:           domain.StatusCompleted,
	}); err != nil {
		slog.Error("Failed to mark job completed", "session_id", sessionID, "error", err)
	}
	slog.Info("Generation job completed", "session_id", sessionID)
}

// checkpoint re-reads generation_status from the store. cont is false when
// the remaining iteration should be abandoned without marking an error
// (pause, stop, or server shutdown); fatal is non-nil when the session state
// itself is unreadable.
func (c *Controller) checkpoint(ctx context.Context, sessionID string) (cont bool, fatal error) {
	if ctx.Err() != nil {
		slog.Info("Generation run stopping, server shutting down", "session_id", sessionID)
		return false, nil
	}

	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("checkpoint read: %w", err)
	}
	if session == nil {
		return false, errors.New("session deleted mid-job")
	}
	switch session.GenerationStatus {
	case domain.StatusPaused, domain.StatusStopped:
		slog.Info("Generation run yielding at checkpoint",
			"session_id", sessionID,
			"status", session.GenerationStatus)
		return false, nil
	}
	return true, nil
}

func (c *Controller) alreadyCompleted(ctx context.Context, sessionID string, week int, materialType string) (bool, error) {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("read completed materials: %w", err)
	}
	if session == nil {
		return false, errors.New("session deleted mid-job")
	}
	return session.HasCompleted(week, materialType), nil
}

// generatePair produces one (week, material type) pair: generate, export
// each returned item, record the artifacts, then emit a single
// material_complete event for the pair.
func (c *Controller) generatePair(ctx context.Context, sessionID string, module *domain.ModuleData, week domain.WeekPlan, mt domain.MaterialType) error {
	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:         domain.EventMaterialStart,
		WeekNumber:   week.WeekNumber,
		WeekTitle:    week.Title,
		MaterialType: mt.Key,
		MaterialName: mt.Name,
	})

	items, err := c.generator.GenerateMaterial(ctx, module, week, mt.Key)
	if err != nil {
		return fmt.Errorf("generate %s: %w", mt.Key, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("generate %s: no content returned", mt.Key)
	}

	var firstPath string
	var totalSize int64
	for _, item := range items {
		rec, err := c.exportItem(ctx, sessionID, week.WeekNumber, mt, item)
		if err != nil {
			return err
		}
		if firstPath == "" {
			firstPath = rec.Path
		}
		totalSize += rec.Size
		if err := c.recordCompleted(ctx, sessionID, rec); err != nil {
			return err
		}
	}

	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:         domain.EventMaterialComplete,
		WeekNumber:   week.WeekNumber,
		MaterialType: mt.Key,
		MaterialName: mt.Name,
		FilePath:     firstPath,
		FileFormat:   strings.ToUpper(mt.Format),
		FileSize:     totalSize,
	})
	return nil
}

func (c *Controller) generateOverview(ctx context.Context, sessionID string, module *domain.ModuleData, mt domain.MaterialType) error {
	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:         domain.EventMaterialStart,
		MaterialType: mt.Key,
		MaterialName: mt.Name,
	})

	// Overview materials use a zero week: they describe the whole module.
	items, err := c.generator.GenerateMaterial(ctx, module, domain.WeekPlan{Title: module.Title}, mt.Key)
	if err != nil {
		return fmt.Errorf("generate %s: %w", mt.Key, err)
	}
	if len(items) == 0 {
		return fmt.Errorf("generate %s: no content returned", mt.Key)
	}

	fileName := fmt.Sprintf("00_%s.%s", shared.SanitizeFilename(mt.Name), mt.Format)
	destPath := filepath.Join(c.outputDir, sessionID, fileName)
	if err := c.exporter.Export(ctx, items[0], mt.Format, destPath); err != nil {
		return fmt.Errorf("export %s: %w", mt.Key, err)
	}

	size := fileSize(destPath)
	rec := domain.MaterialRecord{
		Week:        0,
		Type:        mt.Key,
		Name:        mt.Name,
		Path:        fileName,
		Format:      strings.ToUpper(mt.Format),
		Size:        size,
		GeneratedAt: time.Now(),
	}
	if err := c.recordCompleted(ctx, sessionID, rec); err != nil {
		return err
	}

	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:         domain.EventMaterialComplete,
		MaterialType: mt.Key,
		MaterialName: mt.Name,
		FilePath:     fileName,
		FileFormat:   strings.ToUpper(mt.Format),
		FileSize:     size,
	})
	return nil
}

func (c *Controller) exportItem(ctx context.Context, sessionID string, weekNumber int, mt domain.MaterialType, item domain.ContentItem) (domain.MaterialRecord, error) {
	fileName := fmt.Sprintf("Week_%02d_%s.%s", weekNumber, shared.SanitizeFilename(item.Title), mt.Format)
	relPath := filepath.Join(mt.Dir, fileName)
	destPath := filepath.Join(c.outputDir, sessionID, relPath)

	if err := c.exporter.Export(ctx, item, mt.Format, destPath); err != nil {
		return domain.MaterialRecord{}, fmt.Errorf("export %s: %w", mt.Key, err)
	}

	return domain.MaterialRecord{
		Week:        weekNumber,
		Type:        mt.Key,
		Name:        fmt.Sprintf("%s - %s", mt.Name, item.Title),
		Path:        relPath,
		Format:      strings.ToUpper(mt.Format),
		Size:        fileSize(destPath),
		GeneratedAt: time.Now(),
	}, nil
}

// recordCompleted appends one artifact record to completed_materials. The
// field is only ever written by the session's single active run, so a plain
// read-modify-write through the store merge is race-free.
func (c *Controller) recordCompleted(ctx context.Context, sessionID string, rec domain.MaterialRecord) error {
	session, err := c.repo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if session == nil {
		return errors.New("session deleted mid-job")
	}
	records := append(session.CompletedMaterials, rec)
	if _, err := c.repo.Update(ctx, sessionID, store.Patch{store.FieldCompletedMaterials: records}); err != nil {
		return fmt.Errorf("record completed material: %w", err)
	}
	return nil
}

// failJob handles anything outside the per-item isolation boundary. The
// error event precedes the status flip for the same delivery reason as
// normal completion.
func (c *Controller) failJob(ctx context.Context, sessionID string, cause error) {
	slog.Error("Generation job failed", "session_id", sessionID, "error", cause)
	c.emit(ctx, sessionID, domain.ProgressEvent{
		Type:    domain.EventError,
		Message: cause.Error(),
	})
	if _, err := c.repo.Update(ctx, sessionID, store.Patch{
		store.FieldGenerationStatus: domain.StatusError,
		store.FieldStatus:           domain.StatusError,
		store.FieldErrorMessage:     cause.Error(),
	}); err != nil {
		slog.Error("Failed to persist job error state", "session_id", sessionID, "error", err)
	}
}

func (c *Controller) emit(ctx context.Context, sessionID string, event domain.ProgressEvent) {
	if err := c.plog.Append(ctx, sessionID, event); err != nil {
		slog.Warn("Failed to append progress event",
			"session_id", sessionID,
			"event_type", event.Type,
			"error", err)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
