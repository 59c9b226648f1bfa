// Package note turns a finished recording into a clinical session note: a
// templated summary, a notes block, and a FHIR-style Observation record.
// It also provides the doctor's edit working copy ([Editor]) and an optional
// language-model narrative ([LLMNarrator]).
package note

import (
	"fmt"
	"slices"
	"time"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/transcript"
)

// Patient identifies who the session was about. All fields are optional.
type Patient struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Display renders "Name, Age N[, condition]".
func (p *Patient) Display() string {
	if p == nil {
		return "Unknown Patient"
	}
	s := fmt.Sprintf("%s, Age %d", p.Name, p.Age)
	if p.Condition != "" {
		s += ", " + p.Condition
	}
	return s
}

// SessionNote is the synthesized output of one recording.
type SessionNote struct {
	ID          string               `json:"id"`
	SessionID   string               `json:"session_id"`
	Patient     *Patient             `json:"patient,omitempty"`
	Segments    []transcript.Segment `json:"segments"`
	Medications []string             `json:"medications"`
	Symptoms    []string             `json:"symptoms"`
	Alerts      []alert.Alert        `json:"alerts"`
	Summary     string               `json:"summary"`
	Notes       string               `json:"notes"`
	Record      Observation          `json:"record"`

	// Narrative is an optional model-drafted paragraph. Summary stays the
	// authoritative text.
	Narrative string `json:"narrative,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	EditedAt  time.Time `json:"edited_at,omitzero"`
}

// Edited reports whether a doctor has saved edits to the note.
func (n *SessionNote) Edited() bool { return !n.EditedAt.IsZero() }

// Clone returns a deep copy of n.
func (n *SessionNote) Clone() *SessionNote {
	if n == nil {
		return nil
	}
	c := *n
	if n.Patient != nil {
		p := *n.Patient
		c.Patient = &p
	}
	c.Segments = slices.Clone(n.Segments)
	c.Medications = slices.Clone(n.Medications)
	c.Symptoms = slices.Clone(n.Symptoms)
	c.Alerts = slices.Clone(n.Alerts)
	c.Record = n.Record.clone()
	return &c
}
