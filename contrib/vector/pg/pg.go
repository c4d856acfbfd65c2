// Package pg stores embeddings in PostgreSQL with the pgvector extension.
// It holds the full regulation index for deployments too large for the
// in-memory store.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/harborlight/navqa/config"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/vector"
)

// Config holds connection and schema settings.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension, 1536 matches text-embedding-3-small
	TableName string
}

// DefaultConfig returns settings for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "navqa",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "regulation_vectors",
	}
}

// Store is a pgvector-backed vector.Store.
type Store struct {
	db        *sql.DB
	dimension int
	table     string
}

var _ vector.Store = (*Store)(nil)

// New connects to PostgreSQL, ensures the pgvector extension and the table
// exist, and returns the store.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := config.ValidatePGVector(cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode, cfg.Dimension, cfg.TableName); err != nil {
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

	s := &Store{db: db, dimension: cfg.Dimension, table: cfg.TableName}
	if err := s.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("setup pgvector schema: %w", err)
	}
	return s, nil
}

func (s *Store) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}

	createSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.table, s.dimension)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Add upserts an embedding.
func (s *Store) Add(ctx context.Context, emb *vector.Embedding) error {
	if emb == nil || emb.ID == "" {
		return fmt.Errorf("%w: embedding needs an ID", apperrors.ErrInvalidInput)
	}
	if len(emb.Vector) != s.dimension {
		return fmt.Errorf("%w: embedding dimension %d, store expects %d",
			apperrors.ErrInvalidInput, len(emb.Vector), s.dimension)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, text, embedding)
	VALUES ($1, $2, $3::vector)
	ON CONFLICT (id) DO UPDATE SET
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, emb.ID, emb.Text, encodeVector(emb.Vector)); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// Search returns the topK nearest embeddings by cosine distance.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, store expects %d",
			apperrors.ErrInvalidInput, len(queryVector), s.dimension)
	}
	if topK <= 0 {
		topK = 10
	}

	query := fmt.Sprintf(`
	SELECT id, text, embedding
	FROM %s
	ORDER BY embedding <=> $1::vector
	LIMIT $2
	`, s.table)
	rows, err := s.db.QueryContext(ctx, query, encodeVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	out := make([]*vector.Embedding, 0, topK)
	for rows.Next() {
		var id, text, raw string
		if err := rows.Scan(&id, &text, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", id, err)
		}
		out = append(out, &vector.Embedding{ID: id, Text: text, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// Get retrieves an embedding by ID.
func (s *Store) Get(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf("SELECT id, text, embedding FROM %s WHERE id = $1", s.table)

	var embID, text, raw string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&embID, &text, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}

	vec, err := decodeVector(raw)
	if err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return &vector.Embedding{ID: embID, Text: text, Vector: vec}, nil
}

// Delete removes an embedding by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("embedding %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// Clear truncates the embedding table.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.table)); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

// Count reports how many embeddings are stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVector(raw string) ([]float32, error) {
	raw = strings.TrimPrefix(strings.TrimSuffix(raw, "]"), "[")
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d %q: %w", i, part, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
