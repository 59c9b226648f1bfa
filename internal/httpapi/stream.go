package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/docassist/docassist/internal/session"
)

// streamReadLimit bounds one inbound frame. Browser capture sends a few
// kilobytes of PCM per frame.
const streamReadLimit = 1 << 20

// Stream control actions sent as text frames.
const (
	actionStart  = "start"
	actionPause  = "pause"
	actionResume = "resume"
	actionStop   = "stop"
)

type controlMessage struct {
	Action string `json:"action"`
}

// handleStream upgrades to a WebSocket bound to one session. Binary frames
// are PCM16 audio for the recognizer and text frames are JSON control
// messages. Session events are written back as JSON text frames, starting
// with the current state.
//
// A socket that started, resumed or fed the session is its audio source.
// When that socket goes away while the session is listening, the session is
// paused so the recognizer stream is released.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	s, ok := r.session(w, req)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: r.deps.AllowedOrigins,
	})
	if err != nil {
		slog.Warn("stream upgrade failed", "session_id", s.ID(), "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(streamReadLimit)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	slog.Info("stream connected", "session_id", s.ID())
	var driving bool
	go func() {
		defer cancel()
		pump(ctx, conn, s, events)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("stream read ended", "session_id", s.ID(), "err", err)
			}
			break
		}
		switch typ {
		case websocket.MessageBinary:
			err := s.SendAudio(data)
			switch {
			case err == nil:
				driving = true
			case !errors.Is(err, session.ErrNotListening):
				sendError(ctx, conn, s, err)
			}
		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				sendError(ctx, conn, s, fmt.Errorf("invalid control message: %w", err))
				continue
			}
			if err := control(ctx, s, msg.Action); err != nil {
				sendError(ctx, conn, s, err)
			} else if msg.Action == actionStart || msg.Action == actionResume {
				driving = true
			}
		}
	}
	slog.Info("stream disconnected", "session_id", s.ID())
	if driving {
		releaseAbandoned(s)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// releaseAbandoned pauses a session whose audio source disconnected.
func releaseAbandoned(s *session.Session) {
	err := s.Pause()
	switch {
	case err == nil:
		slog.Info("audio source lost, session paused", "session_id", s.ID())
	case !errors.Is(err, session.ErrInvalidTransition):
		slog.Warn("failed to pause abandoned session", "session_id", s.ID(), "err", err)
	}
}

func control(ctx context.Context, s *session.Session, action string) error {
	switch action {
	case actionStart:
		return s.Start(ctx)
	case actionPause:
		return s.Pause()
	case actionResume:
		return s.Resume(ctx)
	case actionStop:
		return s.Stop(ctx)
	}
	return fmt.Errorf("unknown action %q", action)
}

// pump writes session events until ctx ends or the session closes.
func pump(ctx context.Context, conn *websocket.Conn, s *session.Session, events <-chan session.Event) {
	initial := session.Event{
		Type:      session.EventState,
		SessionID: s.ID(),
		Time:      time.Now(),
		State:     s.State(),
	}
	if err := wsjson.Write(ctx, conn, initial); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func sendError(ctx context.Context, conn *websocket.Conn, s *session.Session, err error) {
	_ = wsjson.Write(ctx, conn, session.Event{
		Type:      session.EventError,
		SessionID: s.ID(),
		Time:      time.Now(),
		Error:     err.Error(),
	})
}
