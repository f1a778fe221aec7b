package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"miniapp-server/internal/domain"
)

// Manager owns the live flows. Sessions are persisted on creation, so a
// restarted process can rebuild a flow from the repository; the verified
// recheck inside the flow covers the payment state.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, flows: make(map[string]*Flow)}
}

// Create starts a fresh idle session.
func (m *Manager) Create(ctx context.Context) (*Flow, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:        uuid.NewString(),
		State:     domain.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.deps.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("workflow: create session: %w", err)
	}
	flow := newFlow(session, m.deps)
	m.mu.Lock()
	m.pruneDelivered()
	m.flows[session.ID] = flow
	m.mu.Unlock()
	return flow, nil
}

// Get returns the live flow for a session, rebuilding it from the
// repository when this process has not seen the session yet.
func (m *Manager) Get(ctx context.Context, id string) (*Flow, error) {
	m.mu.Lock()
	if flow, ok := m.flows[id]; ok {
		m.mu.Unlock()
		return flow, nil
	}
	m.mu.Unlock()

	session, err := m.deps.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	flow := newFlow(session, m.deps)
	m.mu.Lock()
	m.pruneDelivered()
	if existing, ok := m.flows[id]; ok {
		flow = existing
	} else {
		m.flows[id] = flow
	}
	m.mu.Unlock()
	return flow, nil
}

// pruneDelivered evicts idle terminal flows. Delivered sessions live on in
// the repository and are rebuilt on the next Get, so holding them in the
// map only grows it. Caller must hold m.mu.
func (m *Manager) pruneDelivered() {
	for id, flow := range m.flows {
		if flow.idleDelivered() {
			delete(m.flows, id)
		}
	}
}
