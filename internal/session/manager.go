package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docassist/docassist/internal/note"
)

// HistoryEntry summarises one completed recording.
type HistoryEntry struct {
	SessionID     string    `json:"session_id"`
	ReportID      string    `json:"report_id,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
	Transcription string    `json:"transcription"`
	AlertCount    int       `json:"alert_count"`
}

// Manager creates and tracks sessions and keeps the history of completed
// recordings. All methods are safe for concurrent use.
type Manager struct {
	cfg  Config
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	history  []HistoryEntry
}

// NewManager returns a manager that builds sessions from cfg and deps.
func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		deps:     deps.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new idle session for patient, which may be nil.
func (m *Manager) Create(patient *note.Patient) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := New(uuid.NewString(), patient, m.cfg, m.deps)
	s.onComplete = m.record
	m.sessions[s.id] = s
	m.order = append(m.order, s.id)

	slog.Info("session created", "session_id", s.id)
	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// List returns all sessions in creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Delete closes and forgets a session. Its history entries remain.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	m.mu.Unlock()

	s.Close()
	slog.Info("session deleted", "session_id", id)
	return nil
}

// History returns completed recordings, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history)
}

// SetAlertWindow changes the dedup window for new and existing sessions.
func (m *Manager) SetAlertWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.AlertWindow = d
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.SetAlertWindow(d)
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id])
	}
	m.sessions = make(map[string]*Session)
	m.order = nil
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) record(e HistoryEntry) {
	m.mu.Lock()
	m.history = append(m.history, e)
	m.mu.Unlock()
}
