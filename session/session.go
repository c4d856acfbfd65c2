// Package session keeps conversation history so follow-up questions can be
// answered against the turns that preceded them. A session record is a plain
// serializable value; storage backends live under session/store.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/harborlight/navqa/message"
)

// Record is a persisted conversation. Turns are ordered oldest first.
type Record struct {
	ID        string             `json:"id"`
	Turns     []*message.Message `json:"turns"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

var (
	idMu      sync.Mutex
	idLastTs  int64
	idCounter int64
)

// NewID returns a unique session identifier. Collisions within one
// nanosecond are resolved with a counter.
func NewID() string {
	now := time.Now().UnixNano()
	idMu.Lock()
	defer idMu.Unlock()
	if now > idLastTs {
		idLastTs = now
		idCounter = 0
		return fmt.Sprintf("sess_%d", now)
	}
	idCounter++
	return fmt.Sprintf("sess_%d_%d", now, idCounter)
}

// NewRecord creates an empty session. An empty id is replaced with a
// generated one.
func NewRecord(id string) *Record {
	if id == "" {
		id = NewID()
	}
	now := time.Now()
	return &Record{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a turn and bumps the update time.
func (r *Record) Append(role message.Role, content string) *message.Message {
	msg := message.NewMessage(role, content)
	r.Turns = append(r.Turns, msg)
	r.UpdatedAt = time.Now()
	return msg
}

// Clone returns a deep copy safe to hand to a storage backend.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Turns) > 0 {
		out.Turns = make([]*message.Message, len(r.Turns))
		for i, t := range r.Turns {
			out.Turns[i] = message.Clone(t)
		}
	}
	if len(r.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Context renders the most recent turns as "role: content" lines, oldest
// first, sized for a retrieval query's conversation context. A limit of
// zero or less means all turns.
func (r *Record) Context(limit int) []string {
	if r == nil || len(r.Turns) == 0 {
		return nil
	}
	turns := r.Turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return out
}
