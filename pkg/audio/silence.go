package audio

import "time"

// Defaults for [SilenceDetector].
const (
	DefaultSilenceThreshold = 0.01
	DefaultSilenceHold      = 2 * time.Second
)

// SilenceDetector tracks how long the input has stayed quiet. A frame is
// quiet when its normalised RMS is below Threshold. Time is measured from
// audio duration, not wall clock, so results do not depend on delivery
// jitter.
//
// Not safe for concurrent use.
type SilenceDetector struct {
	threshold  float64
	hold       time.Duration
	sampleRate int
	channels   int

	quiet time.Duration
}

// NewSilenceDetector returns a detector for the given format. Non-positive
// threshold or hold use the defaults.
func NewSilenceDetector(sampleRate, channels int, threshold float64, hold time.Duration) *SilenceDetector {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	if hold <= 0 {
		hold = DefaultSilenceHold
	}
	if channels <= 0 {
		channels = 1
	}
	return &SilenceDetector{threshold: threshold, hold: hold, sampleRate: sampleRate, channels: channels}
}

// Feed consumes one frame and reports whether the quiet run has reached the
// hold duration. Any loud frame resets the run.
func (d *SilenceDetector) Feed(frame []byte) bool {
	if NormalizedRMS(frame) >= d.threshold {
		d.quiet = 0
		return false
	}
	d.quiet += Duration(frame, d.sampleRate, d.channels)
	return d.quiet >= d.hold
}

// Reset clears the quiet run.
func (d *SilenceDetector) Reset() { d.quiet = 0 }
