// ABOUTME: SQLite sink for session exports using modernc.org/sqlite
// ABOUTME: Persists session snapshots and their task history with schema creation on open

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conductor-max/conductor/internal/session"
)

// SessionRecord summarizes one persisted session snapshot.
type SessionRecord struct {
	ID            string
	StartedAt     time.Time
	ExportedAt    time.Time
	TotalCommands int
}

// SQLiteStore persists session exports. The supervisor itself never writes
// here; persistence happens only when the caller chooses to save an export.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			exported_at DATETIME NOT NULL,
			total_commands INTEGER NOT NULL,
			snapshot BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS task_history (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			command TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_task_history_session
			ON task_history(session_id, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveSnapshot persists a session export. Saving the same session again
// replaces its snapshot row and re-records the task history, so repeated
// exports of a live session stay consistent.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, exported_at, total_commands, snapshot)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exported_at = excluded.exported_at,
			total_commands = excluded.total_commands,
			snapshot = excluded.snapshot`,
		snap.ID, snap.StartedAt, time.Now().UTC(), snap.TotalCommands, blob)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", snap.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM task_history WHERE session_id = ?", snap.ID)
	if err != nil {
		return fmt.Errorf("clearing task history for %s: %w", snap.ID, err)
	}

	for _, task := range snap.TaskHistory {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_history (id, session_id, agent_id, command, timestamp)
			VALUES (?, ?, ?, ?, ?)`,
			task.ID, snap.ID, task.AgentID, task.Command, task.Timestamp)
		if err != nil {
			return fmt.Errorf("saving task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	s.logger.Info("session snapshot saved",
		"session_id", snap.ID,
		"tasks", len(snap.TaskHistory),
	)
	return nil
}

// GetSnapshot loads a persisted session export by id.
// Returns sql.ErrNoRows if the session was never saved.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, sessionID string) (session.Snapshot, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM sessions WHERE id = ?", sessionID).Scan(&blob)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return snap, nil
}

// ListSessions returns every persisted session, most recent export first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, exported_at, total_commands
		FROM sessions ORDER BY exported_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.ExportedAt, &r.TotalCommands); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
