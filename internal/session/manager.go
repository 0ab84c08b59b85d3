package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/btviz/internal/core"
	"go.uber.org/zap"
)

// Manager owns every live session. When full, creating a session evicts
// the oldest one; sessions idle for longer than the TTL are swept.
type Manager struct {
	sessions map[string]*Session
	order    []string // insertion order for eviction
	maxSize  int
	ttl      time.Duration
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewManager creates a manager. maxSize <= 0 means unbounded and ttl <= 0
// disables expiry.
func NewManager(maxSize int, ttl time.Duration, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts.Logger = logger
	}
	return &Manager{
		sessions: make(map[string]*Session),
		maxSize:  maxSize,
		ttl:      ttl,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Create loads a dataset into a new session
func (m *Manager) Create(ds *core.Dataset) (*Session, error) {
	s, err := newSession(uuid.NewString(), ds, m.opts, m.now())
	if err != nil {
		return nil, err
	}

	var evicted []*Session
	m.mu.Lock()
	for m.maxSize > 0 && len(m.sessions) >= m.maxSize && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		if old, ok := m.sessions[oldest]; ok {
			delete(m.sessions, oldest)
			evicted = append(evicted, old)
		}
	}
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	m.mu.Unlock()

	for _, old := range evicted {
		m.logger.Info("session evicted", zap.String("session", old.ID))
		old.Close()
	}
	m.logger.Info("session created",
		zap.String("session", s.ID),
		zap.String("symbol", ds.Symbol),
		zap.Int("candles", len(ds.OHLCHistory)),
		zap.Int("trades", len(ds.TradeHistory)),
	)
	return s, nil
}

// Get returns a live session and marks it as used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	if m.expired(s) {
		m.remove(id)
		return nil, core.ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Replace swaps the dataset of a session. Playback restarts stopped at the
// first candle.
func (m *Manager) Replace(id string, ds *core.Dataset) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.load(ds, m.now()); err != nil {
		return nil, err
	}
	m.logger.Info("session replaced", zap.String("session", id), zap.String("symbol", ds.Symbol))
	return s, nil
}

// Delete closes and removes a session
func (m *Manager) Delete(id string) error {
	if !m.remove(id) {
		return core.ErrSessionNotFound
	}
	m.logger.Info("session deleted", zap.String("session", id))
	return nil
}

// List returns summaries of every live session, oldest first
func (m *Manager) List() []Summary {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	out := make([]Summary, 0, len(live))
	for _, s := range live {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many.
// Sessions that are playing or streamed are never idle.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if m.expired(s) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, id := range stale {
		if m.remove(id) {
			removed++
			m.logger.Info("session expired", zap.String("session", id))
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close tears down every session
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.order = nil
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// expired reports whether s sat idle past the TTL. A playing or watched
// session is in use, so its idle timer restarts instead.
func (m *Manager) expired(s *Session) bool {
	if m.ttl <= 0 {
		return false
	}
	now := m.now()
	if s.active() {
		s.touch(now)
		return false
	}
	return now.Sub(s.idleSince()) > m.ttl
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}
