package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Retry policy for writes that can hit SQLITE_BUSY under WAL.
const (
	writeAttempts   = 3
	writeRetryDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite. Session documents are
// stored as JSON blobs with created_at/last_activity mirrored into indexed
// columns for pruning.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write merges on the sessions table
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create persists a session document, generating an id when absent.
func (s *SQLiteStore) Create(ctx context.Context, session *domain.Session) (string, error) {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}

	now := time.Now()
	session.CreatedAt = now
	session.LastActivity = now

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, data, created_at, last_activity)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		data = excluded.data,
		created_at = excluded.created_at,
		last_activity = excluded.last_activity`

	err = shared.RetryOnConflict(ctx, writeAttempts, writeRetryDelay, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			session.SessionID, string(data), now.Unix(), now.Unix())
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	return session.SessionID, nil
}

// Get retrieves a session by id, or (nil, nil) when no record exists.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT data, created_at, last_activity FROM sessions WHERE session_id = ?`
	row := s.db.QueryRowContext(ctx, query, sessionID)

	var data string
	var createdAt, lastActivity int64
	err := row.Scan(&data, &createdAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session := decodeSession(sessionID, data)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastActivity = time.Unix(lastActivity, 0)
	return session, nil
}

// decodeSession unmarshals a stored document. Corrupted blobs yield an empty
// session so one bad row cannot take down every reader.
func decodeSession(sessionID, data string) *domain.Session {
	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		slog.Warn("Corrupted session document, treating as empty", "session_id", sessionID, "error", err)
		return domain.NewSession(sessionID)
	}
	if session.SessionID == "" {
		session.SessionID = sessionID
	}
	return &session
}

// Exists reports whether a session record exists.
func (s *SQLiteStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session exists: %w", err)
	}
	return true, nil
}

// Update merges the patch into the stored document and refreshes
// last_activity. The read-modify-write runs inside a transaction serialized
// by the store mutex so concurrent patches with disjoint keys both land.
func (s *SQLiteStore) Update(ctx context.Context, sessionID string, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched bool
	err := shared.RetryOnConflict(ctx, writeAttempts, writeRetryDelay, func() error {
		var mergeErr error
		matched, mergeErr = s.mergePatch(ctx, sessionID, patch)
		return mergeErr
	})
	return matched, err
}

func (s *SQLiteStore) mergePatch(ctx context.Context, sessionID string, patch Patch) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session for update: %w", err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		slog.Warn("Corrupted session document, rebuilding on update", "session_id", sessionID, "error", err)
		doc = map[string]any{"session_id": sessionID}
	}

	now := time.Now()
	for key, value := range patch {
		doc[key] = value
	}
	doc["last_activity"] = now

	merged, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal merged session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET data = ?, last_activity = ? WHERE session_id = ?`,
		string(merged), now.Unix(), sessionID,
	); err != nil {
		return false, fmt.Errorf("write merged session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit session update: %w", err)
	}
	return true, nil
}

// Delete removes a session record.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListAll returns every stored session. Corrupted rows are skipped.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, data, created_at, last_activity FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		var sessionID, data string
		var createdAt, lastActivity int64
		if err := rows.Scan(&sessionID, &data, &createdAt, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		var session domain.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			slog.Warn("Skipping corrupted session document", "session_id", sessionID, "error", err)
			continue
		}
		if session.SessionID == "" {
			session.SessionID = sessionID
		}
		session.CreatedAt = time.Unix(createdAt, 0)
		session.LastActivity = time.Unix(lastActivity, 0)
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// PruneInactiveBefore deletes sessions whose last_activity predates the
// cutoff. Each session is removed with its own guarded DELETE, so a session
// touched between the scan and the delete is left alone.
func (s *SQLiteStore) PruneInactiveBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE last_activity < ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query inactive sessions: %w", err)
	}

	var candidates []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan inactive session id: %w", err)
		}
		candidates = append(candidates, sessionID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate inactive sessions: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close inactive session rows: %w", err)
	}

	var removed []string
	for _, sessionID := range candidates {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE session_id = ? AND last_activity < ?`,
			sessionID, cutoff.Unix())
		if err != nil {
			return removed, fmt.Errorf("prune session %s: %w", sessionID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("get rows affected: %w", err)
		}
		if n > 0 {
			removed = append(removed, sessionID)
		}
	}
	return removed, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
