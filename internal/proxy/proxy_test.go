package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/pkg/provider/stt"
	sttmock "github.com/docassist/docassist/pkg/provider/stt/mock"
)

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func upload(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="visit.webm"`)
	hdr.Set("Content-Type", "audio/webm")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_GroupsTurns(t *testing.T) {
	t.Parallel()

	met, reader := newMetrics(t)
	tr := &sttmock.Transcriber{Recording: &stt.Recording{
		Transcript: "how are you I have a headache",
		Words: []stt.Word{
			{Word: "how", Speaker: 0},
			{Word: "are", Speaker: 0},
			{Word: "you", Speaker: 0},
			{Word: "I", Speaker: 1},
			{Word: "have", Speaker: 1},
			{Word: "a", Speaker: 1},
			{Word: "headache", Speaker: 1},
		},
	}}
	h := New(tr, "deepgram", WithLanguage("en"), WithMetrics(met))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "audio", []byte("RIFFDATA")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []stt.Turn{
		{Speaker: 0, Text: "how are you"},
		{Speaker: 1, Text: "I have a headache"},
	}
	if len(resp.Turns) != len(want) {
		t.Fatalf("turns = %+v, want %+v", resp.Turns, want)
	}
	for i := range want {
		if resp.Turns[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, resp.Turns[i], want[i])
		}
	}
	if len(resp.Words) != 7 {
		t.Errorf("words = %d, want 7", len(resp.Words))
	}

	if tr.CallCount() != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", tr.CallCount())
	}
	call := tr.Calls[0]
	if !call.Opts.Diarize || call.Opts.Language != "en" {
		t.Errorf("opts = %+v, want diarize in en", call.Opts)
	}
	if call.ContentType != "audio/webm" {
		t.Errorf("content type = %q", call.ContentType)
	}
	if string(call.Audio) != "RIFFDATA" {
		t.Errorf("audio = %q", call.Audio)
	}
	if got := counter(t, reader, "docassist.provider.requests"); got != 1 {
		t.Errorf("provider requests = %d, want 1", got)
	}
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tr       stt.Transcriber
		req      func(t *testing.T) *http.Request
		want     int
		wantErrs int64
	}{
		{
			name: "missing file",
			tr:   &sttmock.Transcriber{},
			req:  func(t *testing.T) *http.Request { return upload(t, "clip", []byte("x")) },
			want: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			tr:   &sttmock.Transcriber{},
			req: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/transcribe", bytes.NewBufferString("{}"))
			},
			want: http.StatusBadRequest,
		},
		{
			name:     "upstream failure",
			tr:       &sttmock.Transcriber{Err: errors.New("deepgram: 500")},
			req:      func(t *testing.T) *http.Request { return upload(t, "audio", []byte("x")) },
			want:     http.StatusBadGateway,
			wantErrs: 1,
		},
		{
			name: "no provider",
			req:  func(t *testing.T) *http.Request { return upload(t, "audio", []byte("x")) },
			want: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			met, reader := newMetrics(t)
			h := New(tt.tr, "deepgram", WithMetrics(met))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req(t))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("body = %s, want error JSON", rec.Body.String())
			}
			if got := counter(t, reader, "docassist.provider.errors"); got != tt.wantErrs {
				t.Errorf("provider errors = %d, want %d", got, tt.wantErrs)
			}
		})
	}
}

func TestHandler_TooLarge(t *testing.T) {
	t.Parallel()

	met, _ := newMetrics(t)
	tr := &sttmock.Transcriber{}
	h := New(tr, "deepgram", WithMetrics(met), WithMaxUpload(16))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "audio", bytes.Repeat([]byte("a"), 1024)))

	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", rec.Code)
	}
	if tr.CallCount() != 0 {
		t.Error("transcriber called for oversized upload")
	}
}

func TestHandler_EmptyRecording(t *testing.T) {
	t.Parallel()

	met, _ := newMetrics(t)
	h := New(&sttmock.Transcriber{Recording: &stt.Recording{}}, "whisper", WithMetrics(met))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "audio", []byte("x")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Words == nil || resp.Turns == nil {
		t.Errorf("resp = %+v, want empty non-nil lists", resp)
	}
}
