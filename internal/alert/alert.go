// Package alert defines clinical alerts and the per-session log that
// suppresses repeats of the same message inside a short window.
package alert

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is how long an admitted message suppresses identical
// candidates.
const DefaultWindow = 10 * time.Second

// ErrNotFound is returned when an alert ID is not in the log.
var ErrNotFound = errors.New("alert: not found")

// Type classifies what raised an alert.
type Type string

const (
	TypeEmergency   Type = "emergency"
	TypeInteraction Type = "interaction"
	TypeDose        Type = "dose"
	TypeCritical    Type = "critical"
	TypeMedication  Type = "medication"
)

// Severity ranks alerts for display.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
)

// Candidate is an alert proposed by extraction, before deduplication.
type Candidate struct {
	Type     Type     `json:"type"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Alert is an admitted alert.
type Alert struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Message      string    `json:"message"`
	Severity     Severity  `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// Admit decides whether c becomes a new alert given the alerts already
// retained. A candidate is rejected when an existing alert carries the same
// message and was created less than window before now. Acknowledgement does
// not matter. A non-positive window uses [DefaultWindow].
func Admit(c Candidate, existing []Alert, now time.Time, window time.Duration) (Alert, bool) {
	if window <= 0 {
		window = DefaultWindow
	}
	for _, a := range existing {
		if a.Message == c.Message && now.Sub(a.Timestamp) < window {
			return Alert{}, false
		}
	}
	return Alert{
		ID:        uuid.NewString(),
		Type:      c.Type,
		Message:   c.Message,
		Severity:  c.Severity,
		Timestamp: now,
	}, true
}
