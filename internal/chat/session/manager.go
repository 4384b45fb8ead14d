package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager keeps the live sessions of a server, one per browser session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	defaults func() Settings
	now      func() time.Time
}

// NewManager returns an empty Manager. New sessions start with the settings
// returned by defaults.
func NewManager(defaults func() Settings) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		defaults: defaults,
		now:      time.Now,
	}
}

// Create registers a new session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.New().String(), m.defaults(), m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given ID and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// GetOrCreate returns the session with the given ID, or a new one when the ID
// is unknown (expired, or issued by another process). created reports which.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false
		}
	}
	return m.Create(), true
}

// Delete disposes of a session. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep disposes of every session untouched for longer than idle and returns
// how many were removed. Sessions waiting for a reply are kept.
func (m *Manager) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.State() == StateAwaitingReply {
			continue
		}
		if s.UpdatedAt().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration, log logrus.FieldLogger) {
	if interval <= 0 || idle <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				log.WithField("removed", n).WithField("live", m.Len()).Debug("swept idle sessions")
			}
		}
	}
}
