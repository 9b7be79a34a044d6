package dedup

import "sync"

// Session is the deduplicator for one scan session.
type Session struct {
	*Hybrid
	id string
}

// NewSession creates a session-scoped deduplicator.
func NewSession(id string, threshold float64) *Session {
	return &Session{Hybrid: NewHybrid(threshold), id: id}
}

// ID returns the owning scan session id.
func (s *Session) ID() string { return s.id }

// Manager tracks the live per-session deduplicators. State is created
// when a scan starts and dropped when it ends; nothing is persisted.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new deduplicator for sessionID, replacing any
// previous one with the same id.
func (m *Manager) Create(sessionID string, threshold float64) *Session {
	s := NewSession(sessionID, threshold)
	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()
	return s
}

// Get returns the deduplicator for sessionID, or nil.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Delete drops the deduplicator for sessionID.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reset drops every session.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}
