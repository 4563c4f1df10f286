package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/worker"
)

var ErrSessionNotFound = errors.New("session not found")

const defaultCleanupInterval = 5 * time.Minute

// Manager owns every live session and runs dispatched jobs against them.
type Manager struct {
	deps Deps
	ttl  time.Duration
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager - 세션 매니저 생성
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		ttl:      deps.Config.SessionTTL,
		log:      deps.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in AUTH.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	sess := New(id, m.deps)

	m.mu.Lock()
	m.sessions[id] = sess
	active := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(active)
	m.log.Info("Created new session", zap.String("session_id", id), zap.Int("active", active))
	return sess
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch()
	return sess, nil
}

// Remove closes and forgets the session.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	sess.Close()
	m.deps.Metrics.SetActiveSessions(active)
	m.log.Info("Removed session", zap.String("session_id", id), zap.Int("active", active))
	return true
}

// Len - 활성 세션 수
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run implements worker.Runner.
func (m *Manager) Run(ctx context.Context, job worker.Job) error {
	sess, err := m.Get(job.SessionID)
	if err != nil {
		return err
	}
	return sess.Run(ctx, job)
}

// CleanupExpired removes idle sessions inactive for longer than the TTL.
func (m *Manager) CleanupExpired(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActive()) > m.ttl && sess.Idle() {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		m.log.Info("Cleaned up inactive session",
			zap.String("session_id", sess.ID),
			zap.Duration("age", now.Sub(sess.CreatedAt)),
			zap.Duration("inactive", now.Sub(sess.LastActive())),
		)
	}
	if len(expired) > 0 {
		m.deps.Metrics.SetActiveSessions(active)
	}
	return len(expired)
}

// StartCleanupRoutine runs CleanupExpired periodically until ctx is done.
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	interval := defaultCleanupInterval
	if m.ttl > 0 && m.ttl/4 < interval {
		interval = m.ttl / 4
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.CleanupExpired(now)
			}
		}
	}()
	m.log.Info("Started session cleanup routine", zap.Duration("interval", interval), zap.Duration("ttl", m.ttl))
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	m.deps.Metrics.SetActiveSessions(0)
}

var _ worker.Runner = (*Manager)(nil)
