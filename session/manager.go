package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/harborlight/navqa/errors"
	"github.com/harborlight/navqa/message"
	"github.com/harborlight/navqa/pkg/logging"
)

// Store defines the interface for session storage backends that operate on
// serializable session records. Load returns errors.ErrNotFound for an
// unknown id.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Manager coordinates session records against a storage backend.
type Manager struct {
	store        Store
	logger       *slog.Logger
	contextTurns int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithContextTurns bounds how many recent turns Context returns
// (default 6).
func WithContextTurns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.contextTurns = n
		}
	}
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: session store is required", apperrors.ErrInvalidInput)
	}
	m := &Manager{
		store:        store,
		contextTurns: 6,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m, nil
}

// Open loads the session with the given id, creating it when absent. An
// empty id always creates a fresh session.
func (m *Manager) Open(ctx context.Context, id string) (*Record, error) {
	if id != "" {
		record, err := m.store.Load(ctx, id)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
	}

	record := NewRecord(id)
	if err := m.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("create session %s: %w", record.ID, err)
	}
	m.logger.Info("session created", "id", record.ID)
	return record, nil
}

// AppendTurn records one conversation turn and persists the session.
func (m *Manager) AppendTurn(ctx context.Context, id string, role message.Role, content string) error {
	record, err := m.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	record.Append(role, content)
	if err := m.store.Save(ctx, record); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Context returns the most recent turns of the session formatted for a
// retrieval query. An unknown id yields empty context rather than an
// error, so new conversations flow through unchanged.
func (m *Manager) Context(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, nil
	}
	record, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return record.Context(m.contextTurns), nil
}

// Delete removes a session permanently.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	m.logger.Info("session deleted", "id", id)
	return nil
}

// List returns the ids of all stored sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}
