// Package postgres provides a PostgreSQL-backed session store. Turns are
// stored as a JSONB column so a conversation reads and writes as one row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/harborlight/navqa/config"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/session"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultConfig returns settings for a local PostgreSQL.
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "navqa",
		SSLMode: "disable",
	}
}

// Store implements session.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ session.Store = (*Store)(nil)

// New connects and ensures the sessions table exists.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := config.ValidatePostgres(cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(255) PRIMARY KEY,
		turns JSONB NOT NULL DEFAULT '[]',
		metadata JSONB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record must have an id", apperrors.ErrInvalidInput)
	}

	turns, err := json.Marshal(record.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	var metadata []byte
	if len(record.Metadata) > 0 {
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	} else {
		metadata = []byte("{}")
	}

	query := `
	INSERT INTO sessions (id, turns, metadata, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		turns = EXCLUDED.turns,
		metadata = EXCLUDED.metadata,
		updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, record.ID, turns, metadata, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("save session to postgres: %w", err)
	}
	return nil
}

// Load retrieves the record.
func (s *Store) Load(ctx context.Context, id string) (*session.Record, error) {
	query := `SELECT turns, metadata, created_at, updated_at FROM sessions WHERE id = $1`

	var (
		turnsRaw    []byte
		metadataRaw []byte
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&turnsRaw, &metadataRaw, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session from postgres: %w", err)
	}

	record := &session.Record{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	var turns []*message.Message
	if err := json.Unmarshal(turnsRaw, &turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	record.Turns = turns
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &record.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if len(record.Metadata) == 0 {
			record.Metadata = nil
		}
	}
	return record, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session from postgres: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session from postgres: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// List returns all session ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// Exists reports whether the session is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check session in postgres: %w", err)
	}
	return exists, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
