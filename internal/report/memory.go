package report

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-process Store. Contents are lost on restart.
type MemStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
	order   []string
	links   map[string]*Link
	now     func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		reports: make(map[string]*Report),
		links:   make(map[string]*Link),
		now:     time.Now,
	}
}

// Save stores a copy of r, filling in a missing ID or patient ID on r.
func (m *MemStore) Save(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(r)
	return nil
}

func (m *MemStore) putLocked(r *Report) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.PatientID == "" {
		r.PatientID = AnonymousPatient
	}
	if _, ok := m.reports[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.reports[r.ID] = r.Clone()
}

// Get returns a copy of the report with id.
func (m *MemStore) Get(_ context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: report %q", ErrNotFound, id)
	}
	return r.Clone(), nil
}

// List returns copies of the patient's reports in save order. An empty
// patientID lists all reports.
func (m *MemStore) List(_ context.Context, patientID string) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Report
	for _, id := range m.order {
		r := m.reports[id]
		if patientID == "" || r.PatientID == patientID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Share returns the report's active link, creating one when none exists.
func (m *MemStore) Share(_ context.Context, reportID string) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shareLocked(reportID)
}

func (m *MemStore) shareLocked(reportID string) (Link, error) {
	r, ok := m.reports[reportID]
	if !ok {
		return Link{}, fmt.Errorf("%w: report %q", ErrNotFound, reportID)
	}
	for _, l := range m.links {
		if l.ReportID == reportID && l.Active {
			return *l, nil
		}
	}
	l := &Link{
		Token:     newToken(),
		ReportID:  reportID,
		PatientID: r.PatientID,
		CreatedAt: m.now(),
		Active:    true,
	}
	m.links[l.Token] = l
	return *l, nil
}

// Revoke deactivates token. Revoking twice is not an error.
func (m *MemStore) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[token]
	if !ok {
		return fmt.Errorf("%w: link %q", ErrNotFound, token)
	}
	l.Active = false
	return nil
}

// Resolve returns the report behind token. A revoked token fails with
// [ErrLinkRevoked].
func (m *MemStore) Resolve(_ context.Context, token string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[token]
	if !ok {
		return nil, fmt.Errorf("%w: link %q", ErrNotFound, token)
	}
	if !l.Active {
		return nil, ErrLinkRevoked
	}
	r, ok := m.reports[l.ReportID]
	if !ok {
		return nil, fmt.Errorf("%w: report %q", ErrNotFound, l.ReportID)
	}
	return r.Clone(), nil
}

// Links returns every link, active or not, oldest first.
func (m *MemStore) Links() []Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, *l)
	}
	slices.SortFunc(out, func(a, b Link) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Ping always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }
