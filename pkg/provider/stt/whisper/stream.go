package whisper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docassist/docassist/pkg/audio"
	"github.com/docassist/docassist/pkg/provider/stt"
)

// speechRMS is the 16-bit RMS at or above which a chunk counts as speech.
const speechRMS = 300.0

// segmenter buffers PCM and decides where utterances end. Leading silence is
// dropped; trailing silence up to the cut stays in the utterance.
type segmenter struct {
	sampleRate int
	channels   int
	silenceCut time.Duration
	maxLen     time.Duration

	buf     []byte
	speech  bool
	silence time.Duration
}

// add appends chunk and reports whether the utterance is complete.
func (g *segmenter) add(chunk []byte) bool {
	if audio.RMS(chunk) < speechRMS {
		if !g.speech {
			return false
		}
		g.buf = append(g.buf, chunk...)
		g.silence += audio.Duration(chunk, g.sampleRate, g.channels)
		return g.silence >= g.silenceCut
	}
	g.speech = true
	g.silence = 0
	g.buf = append(g.buf, chunk...)
	return g.maxLen > 0 && audio.Duration(g.buf, g.sampleRate, g.channels) >= g.maxLen
}

// take returns the buffered utterance as WAV and resets. It returns nil when
// nothing but silence was buffered.
func (g *segmenter) take() []byte {
	pcm, speech := g.buf, g.speech
	g.buf, g.speech, g.silence = nil, false, 0
	if !speech || len(pcm) == 0 {
		return nil
	}
	return audio.EncodeWAV(pcm, g.sampleRate, g.channels)
}

// stream is a segmented live session. Segmenter state belongs to the run
// goroutine.
type stream struct {
	p    *Provider
	lang string
	seg  segmenter

	pcm     chan []byte
	results chan stt.Transcript

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

var _ stt.SessionHandle = (*stream)(nil)

func openStream(p *Provider, lang string, seg segmenter) *stream {
	s := &stream{
		p:       p,
		lang:    lang,
		seg:     seg,
		pcm:     make(chan []byte, 256),
		results: make(chan stt.Transcript, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.closing:
		return fmt.Errorf("whisper: %w", stt.ErrClosed)
	default:
	}
	select {
	case s.pcm <- chunk:
		return nil
	case <-s.closing:
		return fmt.Errorf("whisper: %w", stt.ErrClosed)
	}
}

// Results carries finals only: each utterance is transcribed once, whole.
func (s *stream) Results() <-chan stt.Transcript { return s.results }

// SetKeywords fails: whisper.cpp has no keyword boosting.
func (s *stream) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("whisper: keywords: %w", stt.ErrNotSupported)
}

// Err is always nil; the stream only ends on Close.
func (s *stream) Err() error { return nil }

// Close transcribes any buffered speech, then closes Results. It blocks
// while Results is full.
func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done
	return nil
}

func (s *stream) run() {
	defer close(s.done)
	defer close(s.results)
	for {
		select {
		case <-s.closing:
			s.emit(s.seg.take())
			return
		case chunk := <-s.pcm:
			if s.seg.add(chunk) {
				s.emit(s.seg.take())
			}
		}
	}
}

// emit transcribes one utterance and waits for the reader to take it.
func (s *stream) emit(wav []byte) {
	if wav == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	text, err := s.p.infer(ctx, wav, "audio.wav", s.lang)
	if err != nil || text == "" {
		return
	}
	s.results <- stt.Transcript{Text: text, IsFinal: true}
}
