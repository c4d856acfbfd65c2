// Package inmemory provides a map-backed session store for tests and
// single-process deployments.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/session"
)

// Store keeps session records in memory. Records are deep copied on both
// save and load so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

var _ session.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]*session.Record)}
}

// Save persists a copy of the record.
func (s *Store) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record must have an id", apperrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

// Load returns a copy of the record with the given id.
func (s *Store) Load(ctx context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	return record.Clone(), nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

// List returns all stored session ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Exists reports whether a session with the given id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}
