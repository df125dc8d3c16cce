package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/logger"
)

var ErrSessionNotFound = fmt.Errorf("session not found")

// Manager owns the live sessions and their shared collaborators.
type Manager struct {
	mu       sync.Mutex
	log      *logger.Logger
	deps     Deps
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Manager{
		log:      deps.Logger.With("component", "sessions"),
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create(patient model.PatientContext) *Session {
	s := NewSession(patient, m.deps)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("session created", "id", s.ID)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Stop closes the session and removes it from the registry. The session's
// data remains reachable through the returned handle until released.
func (m *Manager) Stop(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := s.Stop(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll closes every live session, used at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, id := range m.List() {
		if _, err := m.Stop(ctx, id); err != nil {
			m.log.Warn("session stop failed", "id", id, "err", err)
		}
	}
}
