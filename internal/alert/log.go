package alert

import (
	"slices"
	"time"
)

// Log holds the alerts admitted for one session in admission order.
// It is not safe for concurrent use; the owning session serialises access.
type Log struct {
	window time.Duration
	alerts []Alert
}

// NewLog returns an empty log with the given dedup window.
func NewLog(window time.Duration) *Log {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Log{window: window}
}

// SetWindow changes the dedup window for subsequent admissions.
func (l *Log) SetWindow(window time.Duration) {
	if window > 0 {
		l.window = window
	}
}

// Admit runs [Admit] against the log and appends the result when admitted.
func (l *Log) Admit(c Candidate, now time.Time) (Alert, bool) {
	a, ok := Admit(c, l.alerts, now, l.window)
	if ok {
		l.alerts = append(l.alerts, a)
	}
	return a, ok
}

// Acknowledge marks the alert as seen. It stays in the log and keeps
// suppressing duplicates.
func (l *Log) Acknowledge(id string) error {
	i := l.index(id)
	if i < 0 {
		return ErrNotFound
	}
	l.alerts[i].Acknowledged = true
	return nil
}

// Override removes the alert entirely, so it no longer suppresses
// duplicates.
func (l *Log) Override(id string) error {
	i := l.index(id)
	if i < 0 {
		return ErrNotFound
	}
	l.alerts = slices.Delete(l.alerts, i, i+1)
	return nil
}

// Alerts returns a copy of the retained alerts.
func (l *Log) Alerts() []Alert {
	return slices.Clone(l.alerts)
}

// Len reports how many alerts are retained.
func (l *Log) Len() int { return len(l.alerts) }

// Reset drops every alert.
func (l *Log) Reset() { l.alerts = nil }

func (l *Log) index(id string) int {
	return slices.IndexFunc(l.alerts, func(a Alert) bool { return a.ID == id })
}
