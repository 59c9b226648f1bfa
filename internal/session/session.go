// Package session runs live recording sessions.
//
// A [Session] owns one recognizer stream at a time. Interim results update the
// transcript's interim buffer and are scanned for emergencies; final results
// are attributed to a speaker, appended to the transcript, and scanned for
// medications, symptoms and alerts. Stopping a session releases the stream and
// synthesises the clinical note in the background; the note is handed to the
// report store when synthesis completes.
//
// The lifecycle is Idle → Listening → (Paused ⇄ Listening)* → Processing →
// Completed. A fatal recognizer failure moves a listening session to Error.
// When the recognizer ends on its own (including "no speech" endings) while
// the session is listening, the stream is reopened under a [RestartPolicy].
//
// All exported methods are safe for concurrent use. Recognizer events for one
// session are handled one at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/docassist/docassist/internal/alert"
	"github.com/docassist/docassist/internal/extract"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/speaker"
	"github.com/docassist/docassist/internal/transcript"
	"github.com/docassist/docassist/internal/vocab"
	"github.com/docassist/docassist/pkg/audio"
	"github.com/docassist/docassist/pkg/provider/stt"
)

var (
	// ErrRecognitionUnavailable is returned by Start and Resume when no
	// recognizer is configured or the recognizer refused the stream.
	ErrRecognitionUnavailable = errors.New("session: speech recognition unavailable")

	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrNotListening is returned by SendAudio outside the listening state.
	ErrNotListening = errors.New("session: not listening")

	// ErrEmptySubmission is returned by Submit when there is no transcript
	// and no synthesised note.
	ErrEmptySubmission = errors.New("session: nothing to submit")

	// ErrNoteUnavailable is returned while the note is being synthesised or
	// before any note exists.
	ErrNoteUnavailable = errors.New("session: note not available")

	// ErrNotFound is returned by the [Manager] for unknown session IDs.
	ErrNotFound = errors.New("session: not found")
)

// Defaults applied by [Config].
const (
	defaultSampleRate     = 16000
	defaultKeywordBoost   = 1.5
	defaultNarrateTimeout = 30 * time.Second
	defaultDrainTimeout   = 5 * time.Second
)

// Config tunes a session.
type Config struct {
	// SampleRate and Channels describe the PCM16 audio passed to SendAudio.
	// Defaults are 16000 Hz mono.
	SampleRate int
	Channels   int

	// Language is passed to the recognizer. Empty uses the provider default.
	Language string

	// KeywordBoost is the weight given to medication names sent as
	// recognizer hints. Defaults to 1.5.
	KeywordBoost float64

	// FinalizeDelay is waited after the stream is released on stop, before
	// synthesis begins. Zero synthesises immediately.
	FinalizeDelay time.Duration

	// SilenceStop stops the session after SilenceHold of audio whose
	// normalised RMS stays below SilenceThreshold.
	SilenceStop      bool
	SilenceThreshold float64
	SilenceHold      time.Duration

	// AlertWindow is the alert deduplication window. Defaults to
	// [alert.DefaultWindow].
	AlertWindow time.Duration

	// Restart controls stream reopening.
	Restart RestartPolicy

	// NarrateTimeout bounds the optional narrative call. Defaults to 30s.
	NarrateTimeout time.Duration

	// DrainTimeout bounds the wait for a closed stream to deliver its last
	// results. Defaults to 5s.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.KeywordBoost <= 0 {
		c.KeywordBoost = defaultKeywordBoost
	}
	if c.FinalizeDelay < 0 {
		c.FinalizeDelay = 0
	}
	if c.AlertWindow <= 0 {
		c.AlertWindow = alert.DefaultWindow
	}
	if c.NarrateTimeout <= 0 {
		c.NarrateTimeout = defaultNarrateTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	c.Restart = c.Restart.withDefaults()
	return c
}

// Deps are the collaborators shared by every session of a [Manager].
type Deps struct {
	// Recognizer opens live streams. Nil makes Start fail with
	// ErrRecognitionUnavailable.
	Recognizer stt.Provider

	// Vocab supplies the active vocabulary. Nil uses the built-in tables.
	Vocab *vocab.Source

	// Synthesizer builds notes. Nil creates one over Vocab.
	Synthesizer *note.Synthesizer

	// Narrator optionally drafts a narrative after synthesis.
	Narrator note.Narrator

	// Canonicalizer maps names typed during editing onto known terms.
	Canonicalizer note.Canonicalizer

	// Reports receives completed notes and submissions. Nil skips storage.
	Reports report.Store

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Vocab == nil {
		d.Vocab = vocab.NewSource(nil)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Synthesizer == nil {
		d.Synthesizer = note.NewSynthesizer(d.Vocab, note.WithClock(d.Now))
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return d
}

// stream is one recording attempt. Its goroutine follows the recognizer
// across restarts until the stream is detached or fails.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	h      stt.SessionHandle // guarded by Session.mu
	done   chan struct{}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID          string               `json:"id"`
	State       State                `json:"state"`
	Patient     *note.Patient        `json:"patient,omitempty"`
	Speaker     speaker.Speaker      `json:"speaker"`
	Segments    []transcript.Segment `json:"segments"`
	Interim     string               `json:"interim,omitempty"`
	Medications []string             `json:"medications"`
	Symptoms    []string             `json:"symptoms"`
	Alerts      []alert.Alert        `json:"alerts"`
	HasNote     bool                 `json:"has_note"`
	Editing     bool                 `json:"editing"`
	ReportID    string               `json:"report_id,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   time.Time            `json:"started_at,omitzero"`
}

// Session is one doctor-patient recording.
type Session struct {
	id         string
	cfg        Config
	deps       Deps
	classifier *speaker.Classifier
	acc        *transcript.Accumulator
	hub        *hub
	createdAt  time.Time

	// pauseMu is held while a paused stream drains. Resume and finish take
	// it so their work never interleaves with the old stream's last results.
	// It is acquired before mu.
	pauseMu sync.Mutex

	mu          sync.Mutex
	state       State
	patient     *note.Patient
	current     speaker.Speaker
	medications []string
	symptoms    []string
	alerts      *alert.Log
	note        *note.SessionNote
	editor      *note.Editor
	reportID    string
	stream      *stream
	silence     *audio.SilenceDetector
	completed   chan struct{}
	lastErr     error
	startedAt   time.Time
	closed      bool
	onComplete  func(HistoryEntry)
}

// New returns an idle session. Most callers use [Manager.Create].
func New(id string, patient *note.Patient, cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	s := &Session{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		classifier: speaker.NewClassifier(deps.Vocab),
		acc:        transcript.NewAccumulator(),
		hub:        newHub(),
		createdAt:  deps.Now(),
		state:      StateIdle,
		patient:    clonePatient(patient),
		current:    speaker.Doctor,
		alerts:     alert.NewLog(cfg.AlertWindow),
	}
	if cfg.SilenceStop {
		s.silence = audio.NewSilenceDetector(cfg.SampleRate, cfg.Channels, cfg.SilenceThreshold, cfg.SilenceHold)
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the recognizer failure that moved the session to Error, or
// nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetPatient changes who the session is about. It affects notes
// synthesised afterwards.
func (s *Session) SetPatient(p *note.Patient) {
	s.mu.Lock()
	s.patient = clonePatient(p)
	s.mu.Unlock()
}

// SetAlertWindow changes the alert deduplication window.
func (s *Session) SetAlertWindow(d time.Duration) {
	s.mu.Lock()
	s.alerts.SetWindow(d)
	s.mu.Unlock()
}

// Subscribe returns a channel of session events and a function that ends
// the subscription. Slow subscribers miss events rather than block the
// session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.hub.subscribe()
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		State:       s.state,
		Patient:     clonePatient(s.patient),
		Speaker:     s.current,
		Segments:    s.acc.Segments(),
		Interim:     s.acc.Interim(),
		Medications: slices.Clone(s.medications),
		Symptoms:    slices.Clone(s.symptoms),
		Alerts:      s.alerts.Alerts(),
		HasNote:     s.note != nil && s.state != StateProcessing,
		Editing:     s.editor != nil && s.editor.Editing(),
		ReportID:    s.reportID,
		CreatedAt:   s.createdAt,
		StartedAt:   s.startedAt,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// Start begins a new recording. The transcript, entities, alerts and note
// of any previous recording are discarded and the speaker is reset to the
// doctor. Start is allowed from Idle, Completed and Error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state == StatePaused || !s.state.CanTransition(StateListening) {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}
	st, err := s.openStream(ctx)
	if err != nil {
		return err
	}

	s.acc.Reset()
	s.current = speaker.Doctor
	s.medications = nil
	s.symptoms = nil
	s.alerts.Reset()
	s.note = nil
	s.editor = nil
	s.reportID = ""
	s.lastErr = nil
	s.completed = nil
	s.startedAt = s.deps.Now()
	if s.silence != nil {
		s.silence.Reset()
	}

	s.stream = st
	s.setStateLocked(StateListening)
	s.deps.Metrics.SessionsStarted.Add(ctx, 1)
	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	go s.run(st)

	slog.Info("session started", "session_id", s.id, "patient_id", report.PatientID(s.patient))
	return nil
}

// Resume reopens the recognizer for a paused session, keeping the
// transcript.
func (s *Session) Resume(ctx context.Context) error {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	st, err := s.openStream(ctx)
	if err != nil {
		return err
	}
	if s.silence != nil {
		s.silence.Reset()
	}
	s.stream = st
	s.setStateLocked(StateListening)
	go s.run(st)
	return nil
}

// Pause releases the recognizer stream and keeps the transcript. Pending
// interim text is finalized. It returns once the stream has drained.
func (s *Session) Pause() error {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()

	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, state)
	}
	st := s.detachLocked()
	s.setStateLocked(StatePaused)
	s.mu.Unlock()

	s.release(st)

	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()
	return nil
}

// Stop ends the recording. The stream is released and the note is
// synthesised in the background; use [Session.WaitCompleted] to wait for
// it.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.Active() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, state)
	}
	st := s.detachLocked()
	done := make(chan struct{})
	s.completed = done
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()

	s.deps.Metrics.ActiveSessions.Add(ctx, -1)
	go s.finish(context.WithoutCancel(ctx), st, done)
	return nil
}

// WaitCompleted blocks until a pending stop has produced its note or ctx
// ends. It returns immediately when no stop is pending.
func (s *Session) WaitCompleted(ctx context.Context) error {
	s.mu.Lock()
	ch := s.completed
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendAudio forwards a PCM16 chunk to the recognizer. When silence stop is
// enabled and the chunk completes the quiet period, the session is stopped.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.state != StateListening || s.stream == nil {
		s.mu.Unlock()
		return ErrNotListening
	}
	h := s.stream.h
	quiet := s.silence != nil && s.silence.Feed(chunk)
	s.mu.Unlock()

	// A stream being reopened rejects audio; the chunk is dropped.
	if err := h.SendAudio(chunk); err != nil && !errors.Is(err, stt.ErrClosed) {
		return fmt.Errorf("session: send audio: %w", err)
	}
	if quiet {
		slog.Info("silence detected, stopping session", "session_id", s.id)
		if err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
	}
	return nil
}

// Close releases the recognizer stream and ends all subscriptions. The
// session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	st := s.detachLocked()
	if s.state.Active() {
		s.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
	s.mu.Unlock()

	s.release(st)
	s.hub.close()
}

func (s *Session) streamConfig() stt.StreamConfig {
	meds := s.deps.Vocab.Tables().Medications
	keywords := make([]stt.KeywordBoost, len(meds))
	for i, m := range meds {
		keywords[i] = stt.KeywordBoost{Keyword: m, Boost: s.cfg.KeywordBoost}
	}
	return stt.StreamConfig{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Language:   s.cfg.Language,
		Keywords:   keywords,
	}
}

// openStream starts a recognizer stream whose lifetime is independent of
// ctx's cancellation.
func (s *Session) openStream(ctx context.Context) (*stream, error) {
	if s.deps.Recognizer == nil {
		return nil, ErrRecognitionUnavailable
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h, err := s.deps.Recognizer.StartStream(sctx, s.streamConfig())
	if err != nil {
		cancel()
		s.deps.Metrics.RecordRecognizerError(ctx, "start")
		slog.Warn("recognizer unavailable", "session_id", s.id, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}
	return &stream{ctx: sctx, cancel: cancel, h: h, done: make(chan struct{})}, nil
}

func (s *Session) detachLocked() *stream {
	st := s.stream
	s.stream = nil
	if st != nil {
		st.cancel()
	}
	return st
}

// awaitPauseDrain blocks while a Pause is still draining its stream, so a
// stop issued during the pause sees all of its results.
func (s *Session) awaitPauseDrain() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
}

// release closes a detached stream's handle and waits for its goroutine to
// deliver the last results. The stream's goroutine no longer writes st.h
// once st is detached.
func (s *Session) release(st *stream) {
	if st == nil {
		return
	}
	_ = st.h.Close()
	select {
	case <-st.done:
	case <-time.After(s.cfg.DrainTimeout):
		slog.Warn("recognizer stream did not drain", "session_id", s.id, "timeout", s.cfg.DrainTimeout)
	}
}

// run reads the recognizer until the stream is detached or fails,
// reopening it when it ends on its own.
func (s *Session) run(st *stream) {
	defer close(st.done)

	h := st.h
	for {
		err := s.consume(h)
		_ = h.Close()
		if st.ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
		case errors.Is(err, stt.ErrNoSpeech):
			s.deps.Metrics.RecordRecognizerError(st.ctx, "no_speech")
			slog.Debug("recognizer heard no speech", "session_id", s.id)
		default:
			s.fail(st, "fatal", err)
			return
		}

		s.mu.Lock()
		s.flushLocked()
		listening := s.stream == st && s.state == StateListening
		s.mu.Unlock()
		if !listening {
			return
		}

		nh, err := reopen(st.ctx, s.id, s.cfg.Restart, func(ctx context.Context) (stt.SessionHandle, error) {
			return s.deps.Recognizer.StartStream(ctx, s.streamConfig())
		})
		if err != nil {
			if st.ctx.Err() == nil {
				s.fail(st, "start", err)
			}
			return
		}

		s.mu.Lock()
		if st.ctx.Err() != nil || s.stream != st {
			s.mu.Unlock()
			_ = nh.Close()
			return
		}
		st.h = nh
		s.mu.Unlock()

		s.deps.Metrics.RecognizerRestarts.Add(st.ctx, 1)
		h = nh
	}
}

// consume applies results in the order the recognizer produced them, so a
// partial never lands after the final that replaced it.
func (s *Session) consume(h stt.SessionHandle) error {
	for t := range h.Results() {
		if t.IsFinal {
			s.onFinal(t.Text)
		} else {
			s.onPartial(t.Text)
		}
	}
	return h.Err()
}

func (s *Session) fail(st *stream, kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != st {
		return
	}
	s.detachLocked()
	s.flushLocked()
	s.lastErr = err

	ctx := context.Background()
	s.deps.Metrics.RecordRecognizerError(ctx, kind)
	s.deps.Metrics.ActiveSessions.Add(ctx, -1)
	slog.Error("recognizer failed", "session_id", s.id, "kind", kind, "err", err)

	s.publishLocked(Event{Type: EventError, Error: err.Error()})
	s.setStateLocked(StateError)
}

func (s *Session) onPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acc.OnInterim(text)
	s.publishLocked(Event{Type: EventInterim, Text: text})
	for _, c := range extract.ScanInterim(s.deps.Vocab.Tables(), text) {
		s.admitLocked(c)
	}
}

func (s *Session) onFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.classifier.Classify(text, s.current)
	if seg, ok := s.acc.OnFinal(text, s.current); ok {
		s.segmentLocked(seg)
	}
}

// flushLocked finalizes pending interim text under the current speaker.
func (s *Session) flushLocked() {
	if seg, ok := s.acc.FlushPendingInterim(s.current); ok {
		s.segmentLocked(seg)
	}
}

func (s *Session) segmentLocked(seg transcript.Segment) {
	s.deps.Metrics.RecordSegment(context.Background(), seg.Speaker.String())
	s.publishLocked(Event{Type: EventSegment, Segment: &seg})

	f := extract.Extract(s.deps.Vocab.Tables(), seg.Text)
	for _, m := range f.Medications {
		s.entityLocked(&s.medications, EntityMedication, m)
	}
	for _, sy := range f.Symptoms {
		s.entityLocked(&s.symptoms, EntitySymptom, sy)
	}
	for _, c := range f.Alerts {
		s.admitLocked(c)
	}
}

func (s *Session) entityLocked(list *[]string, kind EntityKind, name string) {
	if slices.Contains(*list, name) {
		return
	}
	*list = append(*list, name)
	s.deps.Metrics.RecordEntity(context.Background(), string(kind))
	s.publishLocked(Event{Type: EventEntity, Entity: &Entity{Kind: kind, Name: name}})
}

func (s *Session) admitLocked(c alert.Candidate) {
	a, ok := s.alerts.Admit(c, s.deps.Now())
	s.deps.Metrics.RecordAlert(context.Background(), string(c.Type), ok)
	if ok {
		slog.Info("alert raised", "session_id", s.id, "type", a.Type, "severity", a.Severity, "message", a.Message)
		s.publishLocked(Event{Type: EventAlert, Alert: &a})
	}
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	s.state = to
	slog.Debug("session state changed", "session_id", s.id, "from", from, "to", to)
	s.publishLocked(Event{Type: EventState, State: to})
}

func (s *Session) publishLocked(e Event) {
	e.SessionID = s.id
	e.Time = s.deps.Now()
	s.hub.publish(e)
}

// finish waits for the released stream, synthesises the note, hands it to
// the report store and completes the session.
func (s *Session) finish(ctx context.Context, st *stream, done chan struct{}) {
	defer close(done)
	begin := time.Now()

	s.release(st)
	s.awaitPauseDrain()
	if d := s.cfg.FinalizeDelay; d > 0 {
		time.Sleep(d)
	}

	ctx, span := observe.StartSpan(ctx, "session.finish", observe.Attr("session_id", s.id))
	var saveErr error
	defer func() { observe.EndSpan(span, saveErr) }()

	s.mu.Lock()
	s.flushLocked()
	in := note.Input{
		SessionID:   s.id,
		Segments:    s.acc.Segments(),
		Medications: slices.Clone(s.medications),
		Symptoms:    slices.Clone(s.symptoms),
		Alerts:      s.alerts.Alerts(),
		Patient:     clonePatient(s.patient),
	}
	s.mu.Unlock()

	n := s.deps.Synthesizer.Synthesize(in)
	if s.deps.Narrator != nil {
		s.narrate(ctx, n)
	}

	var reportID string
	if s.deps.Reports != nil {
		r := report.FromNote(n)
		if saveErr = s.deps.Reports.Save(ctx, r); saveErr != nil {
			slog.Error("failed to store session report", "session_id", s.id, "err", saveErr)
		} else {
			reportID = r.ID
		}
	}

	s.mu.Lock()
	s.note = n
	s.editor = note.NewEditor(n, s.deps.Canonicalizer)
	s.reportID = reportID
	s.setStateLocked(StateCompleted)
	s.publishLocked(Event{Type: EventNote, Note: n.Clone()})
	entry := HistoryEntry{
		SessionID:     s.id,
		ReportID:      reportID,
		CompletedAt:   n.CreatedAt,
		Transcription: s.acc.Text(),
		AlertCount:    s.alerts.Len(),
	}
	hook := s.onComplete
	s.mu.Unlock()

	s.deps.Metrics.SynthesisDuration.Record(ctx, time.Since(begin).Seconds())
	slog.Info("session completed",
		"session_id", s.id,
		"segments", len(in.Segments),
		"medications", len(in.Medications),
		"symptoms", len(in.Symptoms),
		"alerts", len(in.Alerts),
		"report_id", reportID,
	)
	if hook != nil {
		hook(entry)
	}
}

func (s *Session) narrate(ctx context.Context, n *note.SessionNote) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.NarrateTimeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "note.narrate")
	begin := time.Now()
	text, err := s.deps.Narrator.Narrate(ctx, n.Clone())
	s.deps.Metrics.LLMDuration.Record(ctx, time.Since(begin).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		slog.Warn("narrative failed", "session_id", s.id, "err", err)
		return
	}
	n.Narrative = text
}

func clonePatient(p *note.Patient) *note.Patient {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
