package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/docassist/docassist/internal/session"
	sttmock "github.com/docassist/docassist/pkg/provider/stt/mock"
)

func dialStream(t *testing.T, f *apiFixture, id string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/sessions/" + id + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(session.Event) bool) session.Event {
	t.Helper()
	for {
		var e session.Event
		if err := wsjson.Read(ctx, conn, &e); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if match(e) {
			return e
		}
	}
}

func stateEvent(want session.State) func(session.Event) bool {
	return func(e session.Event) bool { return e.Type == session.EventState && e.State == want }
}

func TestStream_ControlAudioAndEvents(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	conn, ctx := dialStream(t, f, id)

	readUntil(t, ctx, conn, stateEvent(session.StateIdle))

	if err := wsjson.Write(ctx, conn, controlMessage{Action: actionStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, ctx, conn, stateEvent(session.StateListening))

	h := f.rec.Last().(*sttmock.Session)
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 0, 2, 0}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	eventually(t, "audio forwarded", func() bool { return h.SendAudioCallCount() == 1 })

	h.EmitFinal("I have a sore throat")
	seg := readUntil(t, ctx, conn, func(e session.Event) bool { return e.Type == session.EventSegment })
	if seg.Segment == nil || seg.Segment.Text != "I have a sore throat" {
		t.Errorf("segment event = %+v", seg)
	}

	if err := wsjson.Write(ctx, conn, controlMessage{Action: "rewind"}); err != nil {
		t.Fatalf("write control: %v", err)
	}
	bad := readUntil(t, ctx, conn, func(e session.Event) bool { return e.Type == session.EventError })
	if !strings.Contains(bad.Error, "rewind") {
		t.Errorf("error event = %+v", bad)
	}

	if err := wsjson.Write(ctx, conn, controlMessage{Action: actionStop}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	readUntil(t, ctx, conn, stateEvent(session.StateCompleted))
}

func TestStream_InvalidTransitionReported(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	conn, ctx := dialStream(t, f, id)
	readUntil(t, ctx, conn, stateEvent(session.StateIdle))

	if err := wsjson.Write(ctx, conn, controlMessage{Action: actionPause}); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := readUntil(t, ctx, conn, func(e session.Event) bool { return e.Type == session.EventError })
	if !strings.Contains(e.Error, "invalid state transition") {
		t.Errorf("error = %q", e.Error)
	}
}

func TestStream_ClosedWhenSessionDeleted(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	conn, ctx := dialStream(t, f, id)
	readUntil(t, ctx, conn, stateEvent(session.StateIdle))

	if err := f.mgr.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var e session.Event
	err := wsjson.Read(ctx, conn, &e)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read after delete = %v, want going away close", err)
	}
}

func TestStream_UnknownSession(t *testing.T) {
	f := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/sessions/nope/stream"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("Dial succeeded for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("resp = %+v, want 404", resp)
	}
}

func TestStream_DisconnectPausesSession(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	conn, ctx := dialStream(t, f, id)
	readUntil(t, ctx, conn, stateEvent(session.StateIdle))

	if err := wsjson.Write(ctx, conn, controlMessage{Action: actionStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, ctx, conn, stateEvent(session.StateListening))
	h := f.rec.Last().(*sttmock.Session)

	conn.Close(websocket.StatusNormalClosure, "")

	s, err := f.mgr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	eventually(t, "session paused", func() bool { return s.State() == session.StatePaused })
	if !h.Closed() {
		t.Error("recognizer stream still open after the audio source left")
	}
	if n := f.rec.CallCount(); n != 1 {
		t.Errorf("recognizer streams opened = %d, want 1", n)
	}
}

func TestStream_WatcherDisconnectKeepsListening(t *testing.T) {
	f := newAPI(t)
	id := f.create(t)
	source, ctx := dialStream(t, f, id)
	readUntil(t, ctx, source, stateEvent(session.StateIdle))
	if err := wsjson.Write(ctx, source, controlMessage{Action: actionStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, ctx, source, stateEvent(session.StateListening))

	watcher, wctx := dialStream(t, f, id)
	readUntil(t, wctx, watcher, stateEvent(session.StateListening))
	watcher.Close(websocket.StatusNormalClosure, "")

	s, err := f.mgr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := s.State(); got != session.StateListening {
		t.Errorf("state = %s after a watcher left, want listening", got)
	}
}
