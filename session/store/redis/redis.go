// Package redis provides a Redis-backed session store with optional TTL,
// suited to deployments where conversations should expire on their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborlight/navqa/config"
	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/session"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 means no expiration
}

// DefaultConfig returns settings for a local Redis with a day's TTL.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "localhost:6379",
		Prefix: "navqa:session:",
		TTL:    24 * time.Hour,
	}
}

// Store implements session.Store on Redis. Each record is one JSON value
// under prefix+id, so TTL applies per conversation.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ session.Store = (*Store)(nil)

// New creates the store.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "navqa:session:"
	}
	if err := config.ValidateRedis(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Save persists the record as JSON, refreshing the TTL.
func (s *Store) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record must have an id", apperrors.ErrInvalidInput)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(record.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session in redis: %w", err)
	}
	return nil
}

// Load retrieves and decodes the record.
func (s *Store) Load(ctx context.Context, id string) (*session.Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session from redis: %w", err)
	}
	var record session.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session from redis: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// List scans for all session keys under the prefix.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Exists reports whether the session key is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check session in redis: %w", err)
	}
	return n > 0, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
