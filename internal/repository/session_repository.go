package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionRecord is the persisted anonymous session.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FileSessionRepository keeps the session in a small JSON document.
type FileSessionRepository struct {
	path string
}

func NewFileSessionRepository(path string) *FileSessionRepository {
	return &FileSessionRepository{path: path}
}

// Load returns (nil, nil) when no session has been stored yet.
func (r *FileSessionRepository) Load(ctx context.Context) (*SessionRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session file %s: %w", r.path, err)
	}
	if rec.SessionID == "" {
		return nil, nil
	}
	return &rec, nil
}

func (r *FileSessionRepository) Save(ctx context.Context, rec *SessionRecord) (*SessionRecord, error) {
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return nil, err
	}
	return rec, nil
}

// PostgresSessionRepository stores one session per client key, so several
// kiosks sharing a database keep distinct sessions.
type PostgresSessionRepository struct {
	db        *sql.DB
	clientKey string
}

func NewPostgresSessionRepository(db *sql.DB, clientKey string) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db, clientKey: clientKey}
}

func (r *PostgresSessionRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS client_sessions (
			client_key TEXT PRIMARY KEY,
			session_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *PostgresSessionRepository) Load(ctx context.Context) (*SessionRecord, error) {
	query := `
		SELECT session_id, created_at
		FROM client_sessions
		WHERE client_key = $1
	`
	rec := &SessionRecord{}
	err := r.db.QueryRowContext(ctx, query, r.clientKey).Scan(&rec.SessionID, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Save inserts rec unless another process stored a session first; the row
// that ends up in the table is returned either way.
func (r *PostgresSessionRepository) Save(ctx context.Context, rec *SessionRecord) (*SessionRecord, error) {
	query := `
		INSERT INTO client_sessions (client_key, session_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_key) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, r.clientKey, rec.SessionID, rec.CreatedAt); err != nil {
		return nil, err
	}

	stored, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("session for %s vanished after insert", r.clientKey)
	}
	return stored, nil
}
