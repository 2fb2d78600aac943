package selection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type sessionKey struct {
	tenantID  string
	sessionID string
}

// Manager owns the open sessions of every tenant.
type Manager struct {
	source Source
	store  Store
	feed   *Feed
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewManager(source Source, store Store, feed *Feed, logger *zap.Logger) *Manager {
	return &Manager{
		source:   source,
		store:    store,
		feed:     feed,
		logger:   logger,
		sessions: make(map[sessionKey]*Session),
	}
}

// Open returns the session for tenantID/sessionID, creating it on first use.
// A new session reads the persisted selection, subscribes to bot changes and
// fetches the bot list before Open returns. Concurrent callers for the same
// session wait for that first fetch.
func (m *Manager) Open(ctx context.Context, tenantID, sessionID string) *Session {
	key := sessionKey{tenantID: tenantID, sessionID: sessionID}

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		s.touch()
		s.wait(ctx)
		return s
	}
	s := newSession(sessionID, tenantID, m.source, m.store, m.logger)
	m.sessions[key] = s
	m.mu.Unlock()

	if m.feed != nil {
		unsub := m.feed.Subscribe(tenantID, func(ctx context.Context) {
			if err := s.Refetch(ctx); err != nil {
				s.logger.Warn("Refetch after bot change failed", zap.Error(err))
			}
		})
		s.mu.Lock()
		s.unsub = unsub
		s.mu.Unlock()
	}

	s.start(ctx)
	m.logger.Debug("Selection session opened", zap.String("tenant_id", tenantID), zap.String("session_id", sessionID))
	return s
}

// Close discards one session.
func (m *Manager) Close(tenantID, sessionID string) {
	key := sessionKey{tenantID: tenantID, sessionID: sessionID}
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		s.close()
	}
}

// CloseTenant discards every session of a tenant.
func (m *Manager) CloseTenant(tenantID string) {
	var closing []*Session
	m.mu.Lock()
	for key, s := range m.sessions {
		if key.tenantID == tenantID {
			closing = append(closing, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()
	for _, s := range closing {
		s.close()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RefreshAll fetches each tenant's bots once and reconciles all of its open
// sessions. It picks up edits made outside this process. A session that
// applied a newer list while the refresh was in flight keeps it.
func (m *Manager) RefreshAll(ctx context.Context) {
	byTenant := make(map[string][]*Session)
	m.mu.Lock()
	for key, s := range m.sessions {
		byTenant[key.tenantID] = append(byTenant[key.tenantID], s)
	}
	m.mu.Unlock()

	for tenantID, sessions := range byTenant {
		tickets := make([]uint64, len(sessions))
		for i, s := range sessions {
			tickets[i] = s.beginFetch()
		}

		bots, err := m.source.FetchBots(ctx, tenantID)
		if err != nil {
			m.logger.Warn("Bot refresh failed", zap.String("tenant_id", tenantID), zap.Error(err))
			for _, s := range sessions {
				s.fetchFailed()
			}
			continue
		}
		for i, s := range sessions {
			s.replace(bots, tickets[i])
		}
	}
}

// PruneIdle closes sessions unused for longer than ttl and returns how many were closed.
func (m *Manager) PruneIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	var closing []*Session
	m.mu.Lock()
	for key, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			closing = append(closing, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range closing {
		s.close()
	}
	return len(closing)
}

type ctxKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by WithSession. Calling it on a
// context without a session is a programming error and panics.
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		panic("selection: no active session in context; route must run behind the tenant session middleware")
	}
	return s
}
