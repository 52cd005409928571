package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/index"
)

// Session owns one ingested source: its chunk store and the semantic
// index built over it. Both are created together on ingest and discarded
// together; the index is read-only once built, so concurrent queries
// against a session are safe.
type Session struct {
	ID    uuid.UUID
	Kind  chunk.SourceKind
	Store *chunk.Store
	Index *index.Index
}

// sessionRegistry tracks live sessions by handle.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[uuid.UUID]*Session)}
}

func (r *sessionRegistry) put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *sessionRegistry) get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) drop(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
