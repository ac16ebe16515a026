package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/benkyo/internal/models"
)

// SQLiteHistory implements History using SQLite.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

// NewSQLiteHistory opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistory{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts an interaction. CreatedAt is set when zero.
func (s *SQLiteHistory) Record(ctx context.Context, it *models.Interaction) error {
	sources := it.Sources
	if sources == nil {
		sources = []models.Fragment{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, session_id, query, answer, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.SessionID, it.Query, it.Answer, string(sourcesJSON), it.CreatedAt,
	)
	return err
}

// List returns the session's interactions newest first.
func (s *SQLiteHistory) List(ctx context.Context, sessionID string, limit int) ([]*models.Interaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, answer, sources, created_at
		 FROM interactions WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Interaction
	for rows.Next() {
		var it models.Interaction
		var sourcesJSON string
		if err := rows.Scan(&it.ID, &it.SessionID, &it.Query, &it.Answer, &sourcesJSON, &it.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &it.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// Delete removes one interaction by ID.
func (s *SQLiteHistory) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("interaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearSession removes every interaction of the session.
func (s *SQLiteHistory) ClearSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE session_id = ?`, sessionID)
	return err
}

// Count returns the number of interactions of the session.
func (s *SQLiteHistory) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteHistory) Path() string {
	return s.path
}
