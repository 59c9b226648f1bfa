// Package mock provides scripted stand-ins for the stt interfaces.
//
//	sess := mock.NewSession()
//	rec := &mock.Provider{Sessions: []stt.SessionHandle{sess}}
//	sess.EmitFinal("my head hurts")
//	sess.End(stt.ErrNoSpeech)
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/docassist/docassist/pkg/provider/stt"
)

// StartStreamCall is one recorded StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider hands out Sessions in order and a fresh [NewSession] once they
// run out. StartStreamErr fails every call.
type Provider struct {
	Sessions       []stt.SessionHandle
	StartStreamErr error

	mu               sync.Mutex
	StartStreamCalls []StartStreamCall
	started          []stt.SessionHandle
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	var h stt.SessionHandle = NewSession()
	if len(p.Sessions) > 0 {
		h, p.Sessions = p.Sessions[0], p.Sessions[1:]
	}
	p.started = append(p.started, h)
	return h, nil
}

// SetStartStreamErr swaps the failure while streams may be starting.
func (p *Provider) SetStartStreamErr(err error) {
	p.mu.Lock()
	p.StartStreamErr = err
	p.mu.Unlock()
}

// CallCount is the number of StartStream calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Last is the most recently started handle, or nil.
func (p *Provider) Last() stt.SessionHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.started) == 0 {
		return nil
	}
	return p.started[len(p.started)-1]
}

// Session is a controllable stream. The test drives it with EmitPartial,
// EmitFinal and End; Close ends it with a nil error.
type Session struct {
	// SendAudioErr fails every SendAudio.
	SendAudioErr error

	// BeforeClose, when set, runs at the start of Close. Tests use it to hold
	// a closing stream open.
	BeforeClose func()

	results chan stt.Transcript
	ended   sync.Once

	mu       sync.Mutex
	err      error
	chunks   [][]byte
	keywords [][]stt.KeywordBoost
	closed   bool
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a session with room for 64 queued results.
func NewSession() *Session {
	return &Session{results: make(chan stt.Transcript, 64)}
}

// EmitPartial queues an interim result. Calling it after End panics.
func (s *Session) EmitPartial(text string) { s.results <- stt.Transcript{Text: text} }

// EmitFinal queues a committed result. Calling it after End panics.
func (s *Session) EmitFinal(text string) {
	s.results <- stt.Transcript{Text: text, IsFinal: true}
}

// End closes the results channel with err as the stream's outcome.
func (s *Session) End(err error) {
	s.ended.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.results)
	})
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, bytes.Clone(chunk))
	return s.SendAudioErr
}

func (s *Session) Results() <-chan stt.Transcript { return s.results }

func (s *Session) SetKeywords(kw []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), kw...))
	return nil
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Close() error {
	if s.BeforeClose != nil {
		s.BeforeClose()
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// SendAudioCallCount is the number of chunks received, failed sends included.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// TranscribeCall is one recorded Transcribe.
type TranscribeCall struct {
	Audio       []byte
	ContentType string
	Opts        stt.TranscribeOptions
}

// Transcriber returns Recording, or fails with Err, and records each call.
type Transcriber struct {
	Recording *stt.Recording
	Err       error

	mu    sync.Mutex
	Calls []TranscribeCall
}

var _ stt.Transcriber = (*Transcriber)(nil)

func (t *Transcriber) Transcribe(_ context.Context, r io.Reader, contentType string, opts stt.TranscribeOptions) (*stt.Recording, error) {
	clip, _ := io.ReadAll(r)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{Audio: clip, ContentType: contentType, Opts: opts})
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Recording, nil
}

// CallCount is the number of Transcribe calls so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
