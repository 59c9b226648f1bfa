// Package speaker attributes utterances to the doctor or the patient using
// cue phrases from the vocabulary.
package speaker

import (
	"strings"

	"github.com/docassist/docassist/internal/vocab"
)

// Speaker identifies who produced a transcript segment.
type Speaker int

const (
	// Doctor is the clinician. New sessions start attributed to the doctor.
	Doctor Speaker = iota

	// Patient is the person being seen.
	Patient
)

// String returns "Doctor" or "Patient".
func (s Speaker) String() string {
	if s == Patient {
		return "Patient"
	}
	return "Doctor"
}

// MarshalText encodes the speaker as its display name.
func (s Speaker) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "doctor" or "patient" in any case.
func (s *Speaker) UnmarshalText(b []byte) error {
	if strings.EqualFold(string(b), "patient") {
		*s = Patient
	} else {
		*s = Doctor
	}
	return nil
}

// Classify attributes text using t. A patient cue wins over a doctor cue in
// the same utterance; with neither, current is kept. Blank text returns
// current.
func Classify(t *vocab.Tables, text string, current Speaker) Speaker {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return current
	}
	if containsAny(lower, t.PatientCues) {
		return Patient
	}
	if containsAny(lower, t.DoctorCues) {
		return Doctor
	}
	return current
}

// Classifier classifies against the tables currently published by a
// [vocab.Source].
type Classifier struct {
	src *vocab.Source
}

// NewClassifier returns a Classifier reading from src.
func NewClassifier(src *vocab.Source) *Classifier {
	return &Classifier{src: src}
}

// Classify is [Classify] against the active tables.
func (c *Classifier) Classify(text string, current Speaker) Speaker {
	return Classify(c.src.Tables(), text, current)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
