package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/store"
)

func newTestLog(t *testing.T) (*Log, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return NewLog(repo), repo
}

func TestLog_AppendAndDrain(t *testing.T) {
	l, repo := newTestLog(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, domain.NewSession(""))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first := domain.ProgressEvent{Type: domain.EventGenerationStart, TotalWeeks: 12}
	second := domain.ProgressEvent{Type: domain.EventWeekStart, WeekNumber: 1}
	if err := l.Append(ctx, id, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Append(ctx, id, second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := l.Drain(ctx, id)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.EventGenerationStart || events[1].Type != domain.EventWeekStart {
		t.Errorf("Expected events in append order, got %s then %s", events[0].Type, events[1].Type)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Expected append to stamp the event timestamp")
	}
}

func TestLog_DrainConsumesEvents(t *testing.T) {
	l, repo := newTestLog(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, domain.NewSession(""))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := l.Append(ctx, id, domain.ProgressEvent{Type: domain.EventPaused}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := l.Drain(ctx, id); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	events, err := l.Drain(ctx, id)
	if err != nil {
		t.Fatalf("Second drain failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected second drain to return nothing, got %d events", len(events))
	}
}

func TestLog_DrainEmpty(t *testing.T) {
	l, repo := newTestLog(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, domain.NewSession(""))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	events, err := l.Drain(ctx, id)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if events != nil {
		t.Errorf("Expected nil for an empty log, got %v", events)
	}
}

func TestLog_MissingSession(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()

	if err := l.Append(ctx, "nope", domain.ProgressEvent{Type: domain.EventError}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Append, got %v", err)
	}
	if _, err := l.Drain(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound from Drain, got %v", err)
	}
}
