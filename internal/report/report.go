// Package report defines the persisted form of finished session notes and
// manual submissions, the Store interface that keeps them per patient, and
// revocable share links.
package report

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/note"
)

var (
	// ErrNotFound is returned for unknown report IDs and share tokens.
	ErrNotFound = errors.New("report: not found")

	// ErrLinkRevoked is returned when resolving a revoked share token.
	ErrLinkRevoked = errors.New("report: share link revoked")
)

// Origin records how a report was produced.
type Origin string

const (
	// OriginSession is a report handed over when a recording completes.
	OriginSession Origin = "session"

	// OriginSubmission is a report the doctor submitted by hand.
	OriginSubmission Origin = "submission"
)

// AnonymousPatient is the patient ID used when a session has no patient.
const AnonymousPatient = "anonymous"

// Report is one stored record for a patient.
type Report struct {
	ID          string        `json:"id"`
	PatientID   string        `json:"patient_id"`
	SessionID   string        `json:"session_id"`
	Origin      Origin        `json:"origin"`
	Date        time.Time     `json:"date"`
	Symptoms    []string      `json:"symptoms"`
	Medications []string      `json:"medications"`
	Alerts      []alert.Alert `json:"alerts"`
	Summary     string        `json:"summary,omitempty"`
	Notes       string        `json:"notes"`
	Narrative   string        `json:"narrative,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	c := *r
	c.Symptoms = slices.Clone(r.Symptoms)
	c.Medications = slices.Clone(r.Medications)
	c.Alerts = slices.Clone(r.Alerts)
	return &c
}

// Link is a share token for one report.
type Link struct {
	Token     string    `json:"token"`
	ReportID  string    `json:"report_id"`
	PatientID string    `json:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Store keeps reports and share links. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores r. An empty ID is assigned. An existing ID is replaced.
	Save(ctx context.Context, r *Report) error

	// Get returns the report with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Report, error)

	// List returns a patient's reports, oldest first. An empty patientID
	// lists every report.
	List(ctx context.Context, patientID string) ([]*Report, error)

	// Share returns the active link for a report, creating one if needed.
	Share(ctx context.Context, reportID string) (Link, error)

	// Revoke deactivates a link. Revoking twice is not an error.
	Revoke(ctx context.Context, token string) error

	// Resolve returns the report behind an active link.
	Resolve(ctx context.Context, token string) (*Report, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// FromNote converts a synthesized session note into a report. Notes carries
// the structured record text, as the report viewer shows it.
func FromNote(n *note.SessionNote) *Report {
	return &Report{
		PatientID:   PatientID(n.Patient),
		SessionID:   n.SessionID,
		Origin:      OriginSession,
		Date:        n.CreatedAt,
		Symptoms:    slices.Clone(n.Symptoms),
		Medications: slices.Clone(n.Medications),
		Alerts:      slices.Clone(n.Alerts),
		Summary:     n.Summary,
		Notes:       n.Record.ValueString,
		Narrative:   n.Narrative,
	}
}

// PatientID returns the store key for p.
func PatientID(p *note.Patient) string {
	if p == nil || p.ID == "" {
		return AnonymousPatient
	}
	return p.ID
}

func newID() string    { return uuid.NewString() }
func newToken() string { return uuid.NewString() }
