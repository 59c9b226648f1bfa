// Package extract detects medications, symptoms, and alert candidates in
// transcript text.
//
// Matching is a plain substring test on the lower-cased text, so a phrase is
// found even when embedded in a longer word ("ct" inside "actually"). Results
// follow vocabulary order, not position in the text.
package extract

import (
	"strings"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/vocab"
)

// DoseConflictMessage is raised when text mentions both a dose and a
// conflict.
const DoseConflictMessage = "Dose conflict detected - review medication dosage"

// Findings is what one utterance yielded.
type Findings struct {
	Medications []string
	Symptoms    []string
	Alerts      []alert.Candidate
}

// Empty reports whether nothing was found.
func (f Findings) Empty() bool {
	return len(f.Medications) == 0 && len(f.Symptoms) == 0 && len(f.Alerts) == 0
}

// Extract scans a finalized utterance. Candidates are ordered emergency,
// critical, medication, interaction, dose.
func Extract(t *vocab.Tables, text string) Findings {
	lower := strings.ToLower(text)

	f := Findings{
		Medications: matches(lower, t.Medications),
		Symptoms:    matches(lower, t.Symptoms),
	}
	f.Alerts = append(f.Alerts, phraseAlerts(lower, t.EmergencyAlerts, alert.TypeEmergency)...)
	f.Alerts = append(f.Alerts, phraseAlerts(lower, t.CriticalAlerts, alert.TypeCritical)...)
	f.Alerts = append(f.Alerts, phraseAlerts(lower, t.MedicationAlerts, alert.TypeMedication)...)

	if len(f.Medications) > 1 {
		f.Alerts = append(f.Alerts, alert.Candidate{
			Type:     alert.TypeInteraction,
			Message:  "Potential drug interaction: " + strings.Join(f.Medications, " + "),
			Severity: alert.SeverityHigh,
		})
	}
	if c, ok := doseConflict(lower); ok {
		f.Alerts = append(f.Alerts, c)
	}
	return f
}

// ScanInterim looks at not-yet-final text for emergencies and dose conflicts
// only. Messages match those of [Extract], so the later final-segment
// candidate is collapsed by deduplication.
func ScanInterim(t *vocab.Tables, text string) []alert.Candidate {
	lower := strings.ToLower(text)
	out := phraseAlerts(lower, t.EmergencyAlerts, alert.TypeEmergency)
	if c, ok := doseConflict(lower); ok {
		out = append(out, c)
	}
	return out
}

// Mentions reports whether text contains any of the phrases.
func Mentions(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func matches(lower string, phrases []string) []string {
	var out []string
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			out = append(out, p)
		}
	}
	return out
}

func phraseAlerts(lower string, phrases []string, typ alert.Type) []alert.Candidate {
	var out []alert.Candidate
	for _, p := range matches(lower, phrases) {
		out = append(out, candidateFor(typ, p))
	}
	return out
}

func candidateFor(typ alert.Type, phrase string) alert.Candidate {
	switch typ {
	case alert.TypeEmergency:
		return alert.Candidate{Type: typ, Message: "Emergency: " + phrase, Severity: alert.SeverityCritical}
	case alert.TypeCritical:
		return alert.Candidate{Type: typ, Message: "Critical: " + phrase, Severity: alert.SeverityHigh}
	default:
		return alert.Candidate{Type: typ, Message: "Medication Alert: " + phrase, Severity: alert.SeverityWarning}
	}
}

func doseConflict(lower string) (alert.Candidate, bool) {
	if strings.Contains(lower, "dose") && strings.Contains(lower, "conflict") {
		return alert.Candidate{
			Type:     alert.TypeDose,
			Message:  DoseConflictMessage,
			Severity: alert.SeverityHigh,
		}, true
	}
	return alert.Candidate{}, false
}
