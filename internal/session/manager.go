package session

import (
	"fmt"
	"sync"

	"github.com/1ureka/p2pcall/internal/util"
)

// Manager creates sessions and tracks the live ones by ID. Sessions share
// nothing mutable; a session leaves the registry when it reaches Closed.
type Manager struct {
	newEngine EngineFactory
	out       Sender
	observer  Observer

	mu       sync.Mutex
	sessions map[ID]*Session
}

// NewManager creates a manager whose sessions get their engine from
// newEngine and write outbound messages to out.
func NewManager(newEngine EngineFactory, out Sender, observer Observer) *Manager {
	return &Manager{
		newEngine: newEngine,
		out:       out,
		observer:  observer,
		sessions:  make(map[ID]*Session),
	}
}

// Open creates a session with a fresh ID in Idle. A Caller session still
// needs Start to send its offer.
func (m *Manager) Open(role Role) (*Session, error) {
	engine, err := m.newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create media engine: %w", err)
	}

	s := New(NewID(), role, engine, m.out, m.observer)
	m.register(s)
	util.LogDebug("[%s] %s session opened", s.id.Short(), role)

	return s, nil
}

// register adds a session to the registry and starts an auto-cleanup
// goroutine that removes the entry once the session is closed.
func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	go func() {
		<-s.Done()
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
	}()
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll disconnects every live session with reason and waits until each
// has reached Closed.
func (m *Manager) CloseAll(reason error) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Disconnect(reason)
	}
	for _, s := range live {
		<-s.Done()
	}
}
