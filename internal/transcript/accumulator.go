// Package transcript keeps the speaker-labelled transcript of a session:
// an append-only log of finalized segments plus one interim buffer holding
// the recognizer's latest partial hypothesis.
package transcript

import (
	"strings"
	"sync"

	"github.com/docassist/docassist/internal/speaker"
)

// Segment is one finalized utterance. Segments are never modified after
// they are appended.
type Segment struct {
	Speaker speaker.Speaker `json:"speaker"`
	Text    string          `json:"text"`
}

// Line renders the segment as "Speaker: text".
func (s Segment) Line() string {
	return s.Speaker.String() + ": " + s.Text
}

// Accumulator collects segments in finalize order.
//
// All methods are safe for concurrent use.
type Accumulator struct {
	mu       sync.RWMutex
	segments []Segment
	interim  string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// OnInterim replaces the interim buffer with text.
func (a *Accumulator) OnInterim(text string) {
	a.mu.Lock()
	a.interim = text
	a.mu.Unlock()
}

// OnFinal appends the trimmed text attributed to sp and clears the interim
// buffer. Blank text clears the buffer without appending. It returns the
// appended segment and whether one was appended.
func (a *Accumulator) OnFinal(text string, sp speaker.Speaker) (Segment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.interim = ""
	return a.appendLocked(text, sp)
}

// FlushPendingInterim finalizes whatever the interim buffer holds,
// attributing it to sp, and clears it. It is a no-op when the buffer is
// blank.
func (a *Accumulator) FlushPendingInterim(sp speaker.Speaker) (Segment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := a.interim
	a.interim = ""
	return a.appendLocked(text, sp)
}

// Reset clears all segments and the interim buffer.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.segments = nil
	a.interim = ""
	a.mu.Unlock()
}

// Segments returns a copy of the finalized segments in order.
func (a *Accumulator) Segments() []Segment {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

// Interim returns the current interim text.
func (a *Accumulator) Interim() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.interim
}

// Len returns the number of finalized segments.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.segments)
}

// Text joins all segment texts with single spaces.
func (a *Accumulator) Text() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	parts := make([]string, len(a.segments))
	for i, s := range a.segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

func (a *Accumulator) appendLocked(text string, sp speaker.Speaker) (Segment, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Segment{}, false
	}
	seg := Segment{Speaker: sp, Text: text}
	a.segments = append(a.segments, seg)
	return seg, true
}
