package session

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"blockfall/internal/game"
	"blockfall/internal/highscore"

	"github.com/google/uuid"
)

const (
	DefaultMaxSessions  = 100
	DefaultIdleTTL      = 15 * time.Minute
	DefaultGameOverTTL  = 5 * time.Minute
	DefaultReapInterval = time.Minute
)

var (
	ErrTooManySessions = errors.New("too many active sessions")
	ErrManagerClosed   = errors.New("session manager is closed")
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Width       int
	Height      int
	Seed        int64 // fixed seed for every session; 0 picks a fresh seed per session
	MaxSessions int
	Gravity     bool // start the gravity loop on Create

	// Sessions with no player activity for IdleTTL, or finished and left
	// alone for GameOverTTL, are removed every ReapInterval.
	IdleTTL      time.Duration
	GameOverTTL  time.Duration
	ReapInterval time.Duration

	HighScores *highscore.Service
	Events     *EventLog
}

// DefaultManagerOptions returns a 10x20 board with gravity enabled.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		Width:       game.DefaultWidth,
		Height:      game.DefaultHeight,
		MaxSessions:  DefaultMaxSessions,
		Gravity:      true,
		IdleTTL:      DefaultIdleTTL,
		GameOverTTL:  DefaultGameOverTTL,
		ReapInterval: DefaultReapInterval,
	}
}

// Manager owns the set of live sessions.
type Manager struct {
	opts ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	hookMu   sync.RWMutex
	onUpdate func(Update)
	onClosed func(id string)

	created atomic.Uint64
	reaped  atomic.Uint64
	seedSeq atomic.Int64

	stopReap chan struct{}
	stopOnce sync.Once
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Width <= 0 {
		opts.Width = game.DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = game.DefaultHeight
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.GameOverTTL <= 0 {
		opts.GameOverTTL = DefaultGameOverTTL
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	m := &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		stopReap: make(chan struct{}),
	}

	go m.reapLoop()

	return m
}

// OnUpdate sets the hook every session publishes to.
func (m *Manager) OnUpdate(fn func(Update)) {
	m.hookMu.Lock()
	m.onUpdate = fn
	m.hookMu.Unlock()
}

func (m *Manager) publish(u Update) {
	m.hookMu.RLock()
	fn := m.onUpdate
	m.hookMu.RUnlock()
	if fn != nil {
		fn(u)
	}
}

// OnClosed sets the hook called with the ID of every removed session.
func (m *Manager) OnClosed(fn func(id string)) {
	m.hookMu.Lock()
	m.onClosed = fn
	m.hookMu.Unlock()
}

func (m *Manager) notifyClosed(id string) {
	m.hookMu.RLock()
	fn := m.onClosed
	m.hookMu.RUnlock()
	if fn != nil {
		fn(id)
	}
}

// nextSeed returns the configured seed or a fresh non-zero one.
func (m *Manager) nextSeed() int64 {
	if m.opts.Seed != 0 {
		return m.opts.Seed
	}
	seed := time.Now().UnixNano() + m.seedSeq.Add(1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Create starts a new session.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	s, err := New(Config{
		ID:         uuid.NewString(),
		Seed:       m.nextSeed(),
		Width:      m.opts.Width,
		Height:     m.opts.Height,
		HighScores: m.opts.HighScores,
		Events:     m.opts.Events,
		OnUpdate:   m.publish,
	})
	if err != nil {
		return nil, err
	}

	m.sessions[s.ID()] = s
	m.created.Add(1)
	if m.opts.Gravity {
		s.Start()
	}

	log.Printf("🎮 Session %s started (seed %d)", s.ID(), s.Seed())
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove stops and forgets a session. Returns false if it was not found.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.end(s)
	m.notifyClosed(id)
	log.Printf("👋 Session %s ended", id)
	return true
}

// reapLoop periodically removes abandoned and finished sessions
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopReap:
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// Reap removes sessions idle longer than IdleTTL and finished games idle
// longer than GameOverTTL, measured at now. Returns how many were removed.
func (m *Manager) Reap(now time.Time) int {
	idleCutoff := now.Add(-m.opts.IdleTTL)
	overCutoff := now.Add(-m.opts.GameOverTTL)

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		last := s.LastActive()
		if last.Before(idleCutoff) || (last.Before(overCutoff) && s.GameOver()) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if m.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		m.reaped.Add(uint64(removed))
		log.Printf("🧹 Reaped %d idle sessions", removed)
	}
	return removed
}

func (m *Manager) end(s *Session) {
	s.Stop()
	snap := s.Snapshot()
	s.emit(EventTypeSessionEnd, GameOverPayload{Score: snap.Score, Lines: snap.Lines, Level: snap.Level})
	if m.opts.Events != nil {
		m.opts.Events.Forget(s.ID())
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs lists live session IDs.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stats summarizes the manager for monitoring.
type Stats struct {
	Active      int    `json:"active"`
	Created     uint64 `json:"created"`
	Reaped      uint64 `json:"reaped"`
	MaxSessions int    `json:"maxSessions"`
	GameOver    int    `json:"gameOver"`
}

// Stats returns live counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	st := Stats{
		Active:      len(sessions),
		Created:     m.created.Load(),
		Reaped:      m.reaped.Load(),
		MaxSessions: m.opts.MaxSessions,
	}
	for _, s := range sessions {
		if s.GameOver() {
			st.GameOver++
		}
	}
	return st
}

// Close stops every session and the reaper, and rejects further Creates.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopReap) })

	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		m.end(s)
		m.notifyClosed(id)
	}
	if len(sessions) > 0 {
		log.Printf("🛑 Closed %d sessions", len(sessions))
	}
}
