package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/report"
)

// Note returns a copy of the synthesised note. It fails with
// ErrNoteUnavailable while processing or before the first stop.
func (s *Session) Note() (*note.SessionNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateProcessing || s.note == nil {
		return nil, ErrNoteUnavailable
	}
	return s.note.Clone(), nil
}

func (s *Session) editorLocked() (*note.Editor, error) {
	if s.state == StateProcessing || s.editor == nil {
		return nil, ErrNoteUnavailable
	}
	return s.editor, nil
}

// OpenEdit starts the doctor's working copy of the note.
func (s *Session) OpenEdit() (note.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return note.Draft{}, err
	}
	return e.Open()
}

// Draft returns the working copy.
func (s *Session) Draft() (note.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return note.Draft{}, err
	}
	return e.Draft()
}

// EditAdd appends item to a list of the working copy and returns the value
// stored after canonicalisation.
func (s *Session) EditAdd(l note.List, item string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return "", err
	}
	return e.Add(l, item)
}

// EditRemove deletes the item at index i from a list of the working copy.
func (s *Session) EditRemove(l note.List, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return err
	}
	return e.Remove(l, i)
}

// EditText replaces the working copy's notes and/or summary.
func (s *Session) EditText(notes, summary *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return err
	}
	return e.SetText(notes, summary)
}

// CancelEdit discards the working copy.
func (s *Session) CancelEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.editorLocked()
	if err != nil {
		return err
	}
	return e.Cancel()
}

// SaveEdit commits the working copy into the note. When the note was
// handed to the report store, the stored report is replaced as well.
func (s *Session) SaveEdit(ctx context.Context) (*note.SessionNote, error) {
	s.mu.Lock()
	e, err := s.editorLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	n, err := e.Save(s.deps.Now())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	reportID := s.reportID
	s.publishLocked(Event{Type: EventNote, Note: n.Clone()})
	s.mu.Unlock()

	if reportID != "" && s.deps.Reports != nil {
		r := report.FromNote(n)
		r.ID = reportID
		if err := s.deps.Reports.Save(ctx, r); err != nil {
			return n, fmt.Errorf("session: save edited report: %w", err)
		}
	}
	slog.Info("note edited", "session_id", s.id, "report_id", reportID)
	return n, nil
}

// Alerts returns the session's alerts in admission order.
func (s *Session) Alerts() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts.Alerts()
}

// AcknowledgeAlert marks an alert as seen. It keeps suppressing duplicates.
func (s *Session) AcknowledgeAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.alerts.Acknowledge(id); err != nil {
		return fmt.Errorf("session: acknowledge alert: %w", err)
	}
	return nil
}

// OverrideAlert removes an alert, so an identical message may be raised
// again at once.
func (s *Session) OverrideAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.alerts.Override(id); err != nil {
		return fmt.Errorf("session: override alert: %w", err)
	}
	slog.Info("alert overridden", "session_id", s.id, "alert_id", id)
	return nil
}

// errNoReportStore is returned by Submit without a configured store.
var errNoReportStore = errors.New("session: no report store configured")

// Submit stores a report built from the session as it stands. Lists come
// from the note when one exists, so doctor edits are kept; otherwise from
// the live detections. It fails with ErrEmptySubmission when there is no
// transcript and no note.
func (s *Session) Submit(ctx context.Context) (*report.Report, error) {
	s.mu.Lock()
	if s.state == StateProcessing {
		s.mu.Unlock()
		return nil, ErrNoteUnavailable
	}
	segments := s.acc.Segments()
	if len(segments) == 0 && s.note == nil {
		s.mu.Unlock()
		return nil, ErrEmptySubmission
	}

	r := &report.Report{
		PatientID: report.PatientID(s.patient),
		SessionID: s.id,
		Origin:    report.OriginSubmission,
		Date:      s.deps.Now(),
		Alerts:    s.alerts.Alerts(),
	}
	if n := s.note; n != nil {
		r.Symptoms = slices.Clone(n.Symptoms)
		r.Medications = slices.Clone(n.Medications)
		r.Summary = n.Summary
		r.Notes = n.Record.ValueString
		r.Narrative = n.Narrative
	} else {
		r.Symptoms = slices.Clone(s.symptoms)
		r.Medications = slices.Clone(s.medications)
		r.Notes = note.ValueString(segments, s.medications, s.symptoms)
	}
	s.mu.Unlock()

	if s.deps.Reports == nil {
		return nil, errNoReportStore
	}
	if err := s.deps.Reports.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("session: submit: %w", err)
	}
	slog.Info("report submitted", "session_id", s.id, "report_id", r.ID, "patient_id", r.PatientID)
	return r, nil
}
