package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/docassist/docassist/pkg/provider/stt"
)

// idleCloseCode appears in the close reason when Deepgram hangs up on a
// stream that stopped sending audio.
const idleCloseCode = "NET-0001"

// flushTimeout bounds how long Close waits for queued audio to go out and for
// Deepgram to answer CloseStream with the last results.
const flushTimeout = 3 * time.Second

var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// stream is one live listen socket. A sender goroutine forwards audio and a
// receiver goroutine forwards results, in arrival order, to one channel.
type stream struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	loops    errgroup.Group
	pcm      chan []byte
	results  chan stt.Transcript
	sent     chan struct{}
	received chan struct{}

	closing   chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	ending error
}

var _ stt.SessionHandle = (*stream)(nil)

func openStream(parent context.Context, conn *websocket.Conn) *stream {
	ctx, cancel := context.WithCancel(parent)
	s := &stream{
		conn:     conn,
		cancel:   cancel,
		pcm:      make(chan []byte, 256),
		results:  make(chan stt.Transcript, 64),
		sent:     make(chan struct{}),
		received: make(chan struct{}),
		closing:  make(chan struct{}),
	}
	s.loops.Go(func() error { return s.send(ctx) })
	s.loops.Go(func() error { return s.receive(ctx) })
	return s
}

func (s *stream) SendAudio(chunk []byte) error {
	if s.isClosing() {
		return fmt.Errorf("deepgram: %w", stt.ErrClosed)
	}
	select {
	case s.pcm <- chunk:
		return nil
	case <-s.closing:
		return fmt.Errorf("deepgram: %w", stt.ErrClosed)
	}
}

func (s *stream) Results() <-chan stt.Transcript { return s.results }

// SetKeywords fails: Deepgram fixes keywords when the socket opens.
func (s *stream) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("deepgram: keywords: %w", stt.ErrNotSupported)
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending
}

// Close sends the queued audio and a CloseStream, then waits for Deepgram to
// deliver the remaining results and hang up before tearing the socket down.
// Results that arrive in that window are still emitted.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		deadline := time.NewTimer(flushTimeout)
		defer deadline.Stop()

		select {
		case <-s.sent:
			flushCtx, flushed := context.WithTimeout(context.Background(), time.Second)
			err := s.conn.Write(flushCtx, websocket.MessageText, closeStreamMsg)
			flushed()
			if err == nil {
				select {
				case <-s.received:
				case <-deadline.C:
					slog.Debug("deepgram: no close after CloseStream", "timeout", flushTimeout)
				}
			}
		case <-deadline.C:
		}

		s.cancel()
		_ = s.loops.Wait()
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *stream) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// send forwards audio until Close, then writes whatever is still queued.
func (s *stream) send(ctx context.Context) error {
	defer close(s.sent)
	for {
		select {
		case <-s.closing:
			for {
				select {
				case chunk := <-s.pcm:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return nil
					}
				default:
					return nil
				}
			}
		case chunk := <-s.pcm:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return nil
			}
		}
	}
}

// receive runs until the socket ends. The terminal error is stored before
// Results closes so a reader that drains Results sees it.
func (s *stream) receive(ctx context.Context) error {
	defer close(s.received)
	defer close(s.results)
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			s.ending = classifyReadErr(err, s.isClosing())
			s.mu.Unlock()
			return nil
		}
		t, ok := parseStreamResponse(msg)
		if !ok {
			continue
		}
		select {
		case s.results <- t:
		case <-ctx.Done():
			return nil
		}
	}
}

// classifyReadErr maps the read error that ended a stream onto the
// stt.SessionHandle contract: nil for a clean end, stt.ErrNoSpeech for an
// idle hang-up.
func classifyReadErr(err error, closedLocally bool) error {
	if closedLocally {
		return nil
	}
	var ce websocket.CloseError
	switch {
	case !errors.As(err, &ce):
		return fmt.Errorf("deepgram: read: %w", err)
	case strings.Contains(ce.Reason, idleCloseCode):
		return fmt.Errorf("deepgram: %w", stt.ErrNoSpeech)
	case ce.Code == websocket.StatusNormalClosure:
		return nil
	default:
		return fmt.Errorf("deepgram: read: %w", err)
	}
}

// result is a streaming "Results" message.
type result struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string      `json:"transcript"`
	Confidence float64     `json:"confidence"`
	Words      []wordStamp `json:"words"`
}

type wordStamp struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    int     `json:"speaker"`
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

func (a alternative) words() []stt.Word {
	out := make([]stt.Word, len(a.Words))
	for i, w := range a.Words {
		out[i] = stt.Word{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		}
	}
	return out
}

// parseStreamResponse decodes a Results message. Metadata, UtteranceEnd and
// malformed frames report false.
func parseStreamResponse(data []byte) (stt.Transcript, bool) {
	var r result
	if json.Unmarshal(data, &r) != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Words:      alt.words(),
	}, true
}
