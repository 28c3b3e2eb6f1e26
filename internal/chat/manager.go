package chat

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
)

// Manager owns the open chat sessions. A session expires after TTL without
// access; expiry and End both tear the session down.
type Manager struct {
	mu     sync.Mutex
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewManager sweeps expired sessions every cleanupInterval. A non-positive
// interval falls back to ttl, since go-cache only runs its janitor for
// positive intervals.
func NewManager(ttl, cleanupInterval time.Duration, logger *slog.Logger) *Manager {
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Manager{
		cache:  cache.New(ttl, cleanupInterval),
		logger: logger,
		now:    time.Now,
	}
	m.cache.OnEvicted(m.teardown)
	return m
}

func (m *Manager) Start(owner string) *Session {
	session := newSession(uuid.NewString(), owner, m.now().UTC())

	m.mu.Lock()
	m.cache.SetDefault(session.ID, session)
	m.mu.Unlock()

	observability.SessionStarted()
	m.logger.Info("chat_session_started",
		slog.String("session_id", session.ID),
		slog.String("owner", owner),
	)
	return session
}

// Get returns the session and extends its lifetime. Sessions owned by a
// different principal are reported as not found.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session := value.(*Session)
	if session.Closed() || session.Owner != owner {
		return nil, ErrSessionNotFound
	}
	// Set replaces the entry without firing the eviction hook.
	m.cache.SetDefault(id, session)
	session.touch(m.now().UTC())
	return session, nil
}

func (m *Manager) End(id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.cache.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if value.(*Session).Owner != owner {
		return ErrSessionNotFound
	}
	m.cache.Delete(id)
	return nil
}

// Count reports the live sessions. Expired entries awaiting the janitor
// are not counted.
func (m *Manager) Count() int {
	n := 0
	for _, item := range m.cache.Items() {
		if session, ok := item.Object.(*Session); ok && !session.Closed() {
			n++
		}
	}
	return n
}

// Close ends every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.DeleteExpired()
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
}

func (m *Manager) teardown(id string, value any) {
	session, ok := value.(*Session)
	if !ok || !session.close() {
		return
	}
	observability.SessionEnded()
	m.logger.Info("chat_session_ended",
		slog.String("session_id", id),
		slog.Int("turns", session.Len()),
		slog.String("duration", m.now().UTC().Sub(session.CreatedAt).String()),
	)
}
