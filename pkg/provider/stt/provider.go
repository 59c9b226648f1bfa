// Package stt defines the speech-to-text interfaces used by live recording
// sessions and by the offline transcription proxy.
//
// A live recognizer is opened with [Provider.StartStream]. The returned
// [SessionHandle] accepts raw PCM audio and emits interim hypotheses and
// committed utterances, in recognition order, on one Results channel. A
// partial is always superseded by the final that follows it. When Results
// closes, Err tells the caller why the stream ended: nil for an ordinary end, an error
// matching [ErrNoSpeech] when the recognizer gave up for lack of speech, and
// any other error for a fatal failure.
//
// Offline, diarised transcription of a whole recording goes through
// [Transcriber].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNoSpeech reports that the recognizer stopped because it heard
	// nothing. Callers treat it as a normal end of stream.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrNotSupported is returned by optional operations a backend lacks.
	ErrNotSupported = errors.New("stt: not supported")

	// ErrClosed is returned by SendAudio after Close.
	ErrClosed = errors.New("stt: session closed")
)

// Transcript is a recognition result. Partials and finals share the type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal marks an authoritative result.
	IsFinal bool

	// Confidence in [0, 1]. Zero when the backend does not report one.
	Confidence float64

	// Words holds per-word detail when available.
	Words []Word
}

// Word is one recognised word.
type Word struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Confidence float64       `json:"confidence"`

	// Speaker is the diarisation label. Zero when diarisation is off.
	Speaker int `json:"speaker"`
}

// KeywordBoost raises recognition probability for a term.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// StreamConfig describes the audio format and recognition hints for a live
// stream.
type StreamConfig struct {
	// SampleRate in Hz. 16000 is typical for browser capture.
	SampleRate int

	// Channels is 1 for mono.
	Channels int

	// Language is a BCP-47 tag. Empty uses the provider default.
	Language string

	// Keywords are vocabulary hints such as medication names.
	Keywords []KeywordBoost
}

// SessionHandle is an open live recognition stream. Callers must call Close
// when done.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM audio. It returns ErrClosed after
	// Close.
	SendAudio(chunk []byte) error

	// Results emits partial and final results in the order the recognizer
	// produced them. Closed when the stream ends.
	Results() <-chan Transcript

	// SetKeywords replaces the keyword hints mid-stream. Backends that cannot
	// do this return ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Err reports why the stream ended. It is meaningful only after Results
	// has closed.
	Err() error

	// Close terminates the stream and releases its resources. It is safe to
	// call more than once.
	Close() error
}

// Provider opens live recognition streams.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// TranscribeOptions tunes an offline transcription request.
type TranscribeOptions struct {
	// Diarize asks the backend to label words by speaker.
	Diarize bool

	// Language is a BCP-47 tag. Empty uses the provider default.
	Language string
}

// Recording is the result of an offline transcription.
type Recording struct {
	Transcript string `json:"transcript"`
	Words      []Word `json:"words"`
}

// Transcriber transcribes a complete audio clip.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, contentType string, opts TranscribeOptions) (*Recording, error)
}

// Turn is a run of consecutive words by one speaker.
type Turn struct {
	Speaker int    `json:"speaker"`
	Text    string `json:"text"`
}

// GroupBySpeaker folds consecutive words with the same speaker label into
// turns, preserving order.
func GroupBySpeaker(words []Word) []Turn {
	var (
		turns []Turn
		cur   []string
	)
	for i, w := range words {
		if i > 0 && w.Speaker != words[i-1].Speaker {
			turns = append(turns, Turn{Speaker: words[i-1].Speaker, Text: strings.Join(cur, " ")})
			cur = cur[:0]
		}
		cur = append(cur, w.Word)
	}
	if len(cur) > 0 {
		turns = append(turns, Turn{Speaker: words[len(words)-1].Speaker, Text: strings.Join(cur, " ")})
	}
	return turns
}
