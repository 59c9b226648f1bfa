package note

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/extract"
	"github.com/docassist/docassist/internal/transcript"
	"github.com/docassist/docassist/internal/vocab"
)

// NoFindingsSummary is used when nothing was detected.
const NoFindingsSummary = "No significant symptoms or medications reported during this session."

// NoFindingsNotes is used when no medications or tests were mentioned.
const NoFindingsNotes = "No medications or tests mentioned."

// Input is everything a note is synthesized from.
type Input struct {
	SessionID   string
	Segments    []transcript.Segment
	Medications []string
	Symptoms    []string
	Alerts      []alert.Alert
	Patient     *Patient
}

// Synthesizer builds session notes using the test keywords of the active
// vocabulary.
type Synthesizer struct {
	src *vocab.Source
	now func() time.Time
}

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SynthesizerOption {
	return func(s *Synthesizer) { s.now = now }
}

// NewSynthesizer returns a Synthesizer reading vocabulary from src.
func NewSynthesizer(src *vocab.Source, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{src: src, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize builds a note. The inputs are copied.
func (s *Synthesizer) Synthesize(in Input) *SessionNote {
	now := s.now()
	var name string
	if in.Patient != nil {
		name = in.Patient.Name
	}
	n := &SessionNote{
		ID:          uuid.NewString(),
		SessionID:   in.SessionID,
		Segments:    slices.Clone(in.Segments),
		Medications: slices.Clone(in.Medications),
		Symptoms:    slices.Clone(in.Symptoms),
		Alerts:      slices.Clone(in.Alerts),
		Summary:     Summary(name, in.Symptoms, in.Medications, in.Alerts),
		Notes:       Notes(in.Segments, in.Medications, s.src.Tables().TestKeywords),
		Record:      BuildRecord(in.Segments, in.Medications, in.Symptoms, in.Patient, now),
		CreatedAt:   now,
	}
	if in.Patient != nil {
		p := *in.Patient
		n.Patient = &p
	}
	return n
}

// Summary renders the templated summary sentence. Empty clauses are
// omitted; only critical-severity alerts are listed.
func Summary(patientName string, symptoms, medications []string, alerts []alert.Alert) string {
	if len(symptoms) == 0 && len(medications) == 0 && len(alerts) == 0 {
		return NoFindingsSummary
	}

	subject := patientName
	if subject == "" {
		subject = "The patient"
	}

	var sb strings.Builder
	sb.WriteString(subject)
	sb.WriteString(" is currently experiencing")
	if len(symptoms) > 0 {
		sb.WriteString(" symptoms such as ")
		sb.WriteString(strings.Join(symptoms, ", "))
	}
	if len(medications) > 0 {
		if len(symptoms) > 0 {
			sb.WriteString(", and is taking ")
		} else {
			sb.WriteString(" and is taking ")
		}
		sb.WriteString(strings.Join(medications, ", "))
	}

	var critical []string
	for _, a := range alerts {
		if a.Severity == alert.SeverityCritical {
			critical = append(critical, a.Message)
		}
	}
	if len(critical) > 0 {
		sb.WriteString(". Important alerts were detected: ")
		sb.WriteString(strings.Join(critical, "; "))
	}
	sb.WriteString(".")
	return sb.String()
}

// Notes renders the notes block: discussed medications and any segments
// that mention a test keyword.
func Notes(segments []transcript.Segment, medications, testKeywords []string) string {
	var parts []string
	if len(medications) > 0 {
		parts = append(parts, "Medications prescribed or discussed: "+strings.Join(medications, ", ")+".")
	}

	var tests []string
	for _, s := range segments {
		if extract.Mentions(s.Text, testKeywords) {
			tests = append(tests, s.Text)
		}
	}
	if len(tests) > 0 {
		parts = append(parts, "Tests or investigations mentioned: "+strings.Join(tests, "; "))
	}

	if len(parts) == 0 {
		return NoFindingsNotes
	}
	return strings.Join(parts, "\n")
}
