package convo

import (
	"sync"
	"time"

	"github.com/plura-ai/onboard/internal/logger"
)

// Session owns the conversation state for one onboarding session.
// Turns within a session are strictly sequential: callers must hold
// the session lock for the whole of a sendMessage round, since each
// turn reads full history to decide behavior.
type Session struct {
	ID     string
	UserID string
	Store  *Store

	turnMu     sync.Mutex
	mu         sync.Mutex
	lastActive time.Time
}

// Acquire blocks until this session's in-flight turn, if any, has
// committed. Release with the returned function.
func (s *Session) Acquire() func() {
	s.turnMu.Lock()
	s.Touch()
	return s.turnMu.Unlock
}

// Touch marks the session as recently active.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the session's most recent turn.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Manager tracks live sessions. Sessions are fully independent of one
// another; each carries its own store and serialization lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	hook     func(sessionID string) CommitHook
	loader   func(sessionID string) ([]Turn, error)
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// SetCommitHookFactory installs a per-session commit hook applied to
// every store the manager creates from then on.
func (m *Manager) SetCommitHookFactory(f func(sessionID string) CommitHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = f
}

// SetLoader installs a loader consulted once per session, so a
// transcript persisted before a restart picks up where it left off.
func (m *Manager) SetLoader(f func(sessionID string) ([]Turn, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loader = f
}

// Get returns the session with the given ID, creating it on first use
// and seeding it from the loader when one is installed.
func (m *Manager) Get(sessionID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s := &Session{
		ID:         sessionID,
		UserID:     userID,
		Store:      NewStore(),
		lastActive: time.Now(),
	}
	if m.loader != nil {
		if turns, err := m.loader(sessionID); err != nil {
			logger.Warn("[Convo] Could not restore session %s: %v", sessionID, err)
		} else if len(turns) > 0 {
			if _, err := s.Store.Update(History{}, turns...); err != nil {
				logger.Warn("[Convo] Could not seed session %s: %v", sessionID, err)
			}
		}
	}
	if m.hook != nil {
		s.Store.SetCommitHook(m.hook(sessionID))
	}
	m.sessions[sessionID] = s
	return s
}

// Close drops a session, ending its lifecycle. Used once the
// onboarding-complete turn has committed.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Expire drops sessions idle for longer than ttl and returns how many
// were removed.
func (m *Manager) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("[Convo] Expired %d idle session(s), %d remain", removed, len(m.sessions))
	}
	return removed
}
