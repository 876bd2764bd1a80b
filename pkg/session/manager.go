package session

import (
	"context"
	"sync"
	"time"

	"github.com/cometbot/comet/pkg/logger"
	"github.com/cometbot/comet/pkg/message"
)

// Identity names the owner of a session: one user inside one chat context
// on one platform. At most one session is active per identity.
type Identity struct {
	Channel  string
	ChatID   string
	SenderID string
}

// Handler consumes the next inbound wrapper for the identity. It may call
// s.Expire() once it is satisfied; otherwise the session stays active until
// its timeout fires.
type Handler func(ctx context.Context, msg *message.Wrapper, s *Session)

// Session binds "the next message from this identity" to a handler, for a
// bounded time.
type Session struct {
	Identity Identity
	Created  time.Time

	// OnExpire, if set, runs exactly once when the session is removed,
	// whether by timeout or by an explicit Expire call.
	OnExpire func()

	handler Handler
	timer   *time.Timer
	expired bool
	mgr     *Manager
	procMu  sync.Mutex
}

// Expire removes the session immediately and cancels its pending timeout.
// Safe to call from the session's own handler and safe to race with the
// timeout firing: exactly one of the two performs the removal.
func (s *Session) Expire() {
	s.mgr.expire(s)
}

// Manager is the process-wide session table. It is created at startup,
// passed into the gateway by handle, and closed at shutdown.
type Manager struct {
	sessions map[Identity]*Session
	mu       sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[Identity]*Session),
	}
}

// Register installs a session for the identity. An existing session for the
// same identity is replaced and expired: its timer can never fire afterwards.
func (m *Manager) Register(id Identity, timeout time.Duration, handler Handler) *Session {
	s := &Session{
		Identity: id,
		Created:  time.Now(),
		handler:  handler,
		mgr:      m,
	}

	m.mu.Lock()
	if old, ok := m.sessions[id]; ok {
		old.expired = true
		old.timer.Stop()
		if old.OnExpire != nil {
			defer old.OnExpire()
		}
	}
	m.sessions[id] = s
	s.timer = time.AfterFunc(timeout, func() {
		logger.DebugCF("session", "Session timed out", map[string]interface{}{
			"channel": id.Channel,
			"chat":    id.ChatID,
			"sender":  id.SenderID,
		})
		m.expire(s)
	})
	m.mu.Unlock()

	return s
}

func (m *Manager) Lookup(id Identity) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispatch delivers msg to the identity's active session, if any. Returns
// false when no session exists so the caller falls through to command
// dispatch. Delivery is serialized per session: a session never processes
// two messages concurrently.
func (m *Manager) Dispatch(ctx context.Context, id Identity, msg *message.Wrapper) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()

	// The session may have been expired between lookup and delivery.
	m.mu.Lock()
	stale := s.expired
	m.mu.Unlock()
	if stale {
		return false
	}

	s.handler(ctx, msg, s)
	return true
}

// expire removes s if it is still the active session for its identity.
// Both the timeout task and explicit Expire calls funnel through here, so
// whichever comes second is a no-op.
func (m *Manager) expire(s *Session) {
	m.mu.Lock()
	if s.expired || m.sessions[s.Identity] != s {
		m.mu.Unlock()
		return
	}
	s.expired = true
	s.timer.Stop()
	delete(m.sessions, s.Identity)
	onExpire := s.OnExpire
	m.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close expires every active session. Called once at shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	for _, s := range active {
		m.expire(s)
	}
}
