// Package progress implements the per-session progress log: ordered,
// at-least-once delivery of job events from the generation run to a polling
// or streaming client, persisted inside the session document.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/store"
)

// ErrSessionNotFound is returned when appending to or draining a session
// that has no stored record.
var ErrSessionNotFound = errors.New("session not found")

// Log appends and drains progress events for sessions. A single Log instance
// serializes its read-modify-write cycles so an append never races a drain
// into dropping an event.
type Log struct {
	repo store.Repository
	mu   sync.Mutex
}

// NewLog creates a progress log over the given repository.
func NewLog(repo store.Repository) *Log {
	return &Log{repo: repo}
}

// Append stamps the event with the current server time and appends it to the
// session's pending updates.
func (l *Log) Append(ctx context.Context, sessionID string, event domain.ProgressEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, err := l.repo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read session for append: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	event.Timestamp = time.Now()
	events := append(session.ProgressUpdates, event)

	ok, err := l.repo.Update(ctx, sessionID, store.Patch{store.FieldProgressUpdates: events})
	if err != nil {
		return fmt.Errorf("append progress event: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Drain returns all pending events in append order and clears them. Events
// returned by one drain are never returned by a later drain; an event
// appended concurrently with a drain lands in the next one.
func (l *Log) Drain(ctx context.Context, sessionID string) ([]domain.ProgressEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, err := l.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session for drain: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	events := session.ProgressUpdates
	if len(events) == 0 {
		return nil, nil
	}

	ok, err := l.repo.Update(ctx, sessionID, store.Patch{store.FieldProgressUpdates: []domain.ProgressEvent{}})
	if err != nil {
		return nil, fmt.Errorf("clear progress events: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return events, nil
}
