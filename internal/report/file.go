package report

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

var _ Store = (*FileStore)(nil)

// entry is one line of the store file. Exactly one of Report and Link is
// set; later lines supersede earlier ones with the same key.
type entry struct {
	Report *Report `json:"report,omitempty"`
	Link   *Link   `json:"link,omitempty"`
}

// FileStore persists reports and links as append-only JSON lines in a local
// file and serves reads from memory. Suitable for a single process.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemStore
}

// OpenFileStore replays path into memory. A missing file is created on the
// first write.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, mem: NewMemStore()}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) replay() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("report: open %s: %w", s.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("report: %s line %d: %w", s.path, line, err)
		}
		switch {
		case e.Report != nil:
			s.mem.putLocked(e.Report)
		case e.Link != nil:
			l := *e.Link
			s.mem.links[l.Token] = &l
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("report: read %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) append(e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("report: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// Save appends r to the file before it becomes visible to readers. A
// missing ID or patient ID is filled in on r.
func (s *FileStore) Save(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.PatientID == "" {
		r.PatientID = AnonymousPatient
	}
	if err := s.append(entry{Report: r}); err != nil {
		return err
	}
	return s.mem.Save(ctx, r)
}

// Get returns the report with id, or an error matching [ErrNotFound].
func (s *FileStore) Get(ctx context.Context, id string) (*Report, error) {
	return s.mem.Get(ctx, id)
}

// List returns the patient's reports in save order. An empty patientID
// lists all reports.
func (s *FileStore) List(ctx context.Context, patientID string) ([]*Report, error) {
	return s.mem.List(ctx, patientID)
}

// Share returns the report's active link, creating and persisting one when
// none exists. A link that cannot be written is not kept.
func (s *FileStore) Share(ctx context.Context, reportID string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.mem.Links())
	l, err := s.mem.Share(ctx, reportID)
	if err != nil {
		return Link{}, err
	}
	if len(s.mem.Links()) == before {
		return l, nil
	}
	if err := s.append(entry{Link: &l}); err != nil {
		s.mem.mu.Lock()
		delete(s.mem.links, l.Token)
		s.mem.mu.Unlock()
		return Link{}, err
	}
	return l, nil
}

// Revoke deactivates token and persists the change. If the write fails the
// link stays active.
func (s *FileStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.mu.RLock()
	prev, ok := s.mem.links[token]
	wasActive := ok && prev.Active
	s.mem.mu.RUnlock()

	if err := s.mem.Revoke(ctx, token); err != nil {
		return err
	}
	s.mem.mu.Lock()
	l := *s.mem.links[token]
	s.mem.mu.Unlock()
	if err := s.append(entry{Link: &l}); err != nil {
		s.mem.mu.Lock()
		s.mem.links[token].Active = wasActive
		s.mem.mu.Unlock()
		return err
	}
	return nil
}

// Resolve returns the report behind an active share token.
func (s *FileStore) Resolve(ctx context.Context, token string) (*Report, error) {
	return s.mem.Resolve(ctx, token)
}

// Ping checks that the directory holding the file is reachable.
func (s *FileStore) Ping(context.Context) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("report: ping: %w", err)
	}
	return f.Close()
}
