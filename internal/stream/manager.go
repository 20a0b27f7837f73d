// Package stream tracks the caption extraction sessions running for live
// inputs, providing create/remove/list operations for the serve command.
package stream

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/ccextract/internal/pipeline"
)

// Session is one running extraction for a live stream.
type Session struct {
	Key       string
	StartedAt time.Time
	// Output is where the session's subtitles are written.
	Output string
	done   chan struct{}

	mu       sync.Mutex
	pipeline *pipeline.Pipeline
}

// Attach records the pipeline decoding this session.
func (s *Session) Attach(p *pipeline.Pipeline) {
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
}

// Stats returns the pipeline counters, or false before a pipeline is
// attached.
func (s *Session) Stats() (pipeline.Stats, bool) {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return pipeline.Stats{}, false
	}
	return p.Stats(), true
}

// Done is closed when the session is removed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Manager manages the lifecycle of extraction sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "stream-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. Returns the session and true if created,
// or nil and false if a session with this key already exists.
func (m *Manager) Create(key, output string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Session{
		Key:       key,
		StartedAt: time.Now(),
		Output:    output,
		done:      make(chan struct{}),
	}

	m.sessions[key] = s
	m.log.Info("session created", "key", key, "output", output)
	return s, true
}

// Get returns the session for key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove removes a session from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	close(s.done)
	if st, attached := s.Stats(); attached {
		m.log.Info("session removed", "key", key,
			"subtitles", st.Subtitles, "units", st.Units, "uptime_ms", st.UptimeMs)
		return
	}
	m.log.Info("session removed", "key", key)
}

// List returns all active sessions sorted by key.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Key < sessions[j].Key })
	return sessions
}
