package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/metrics"
	"github.com/hyperjump/policyqa/internal/provider"
)

// Manager looks sessions up by ID for the HTTP surface. Sessions are kept
// until deleted, closed with the manager, or evicted by Sweep once idle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create registers a new idle session using backend.
func (m *Manager) Create(backend provider.Backend) *Session {
	s := New(backend)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.lastSeen[s.ID] = m.now()
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return s
}

// Get returns the session with id, or ErrNotFound, and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	m.lastSeen[id] = m.now()
	return s, nil
}

// Delete closes and forgets the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	delete(m.lastSeen, id)
	m.mu.Unlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "session not found")
	}
	metrics.ActiveSessions.Dec()
	return s.Close()
}

// Sweep closes sessions unused for longer than idle and returns how many were
// evicted. A session with an operation in flight is kept.
func (m *Manager) Sweep(idle time.Duration) (int, error) {
	cutoff := m.now().Add(-idle)
	var evicted []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.lastSeen[id].After(cutoff) || !s.busy.TryAcquire(1) {
			continue
		}
		delete(m.sessions, id)
		delete(m.lastSeen, id)
		evicted = append(evicted, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range evicted {
		metrics.ActiveSessions.Dec()
		errs = append(errs, s.Close())
		s.busy.Release(1)
	}
	return len(evicted), errors.Join(errs...)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(idle)
			if err != nil {
				logger.Warn("failed to close idle session", zap.Error(err))
			}
			if n > 0 {
				logger.Debug("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.lastSeen = make(map[string]time.Time)
	m.mu.Unlock()
	var errs []error
	for _, s := range sessions {
		metrics.ActiveSessions.Dec()
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
