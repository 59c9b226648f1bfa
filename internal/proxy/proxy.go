// Package proxy forwards recorded consultation clips to an offline,
// diarising transcription backend and returns the words grouped into
// speaker turns.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/pkg/provider/stt"
)

// DefaultMaxUpload bounds the multipart body accepted by the handler.
const DefaultMaxUpload = 64 << 20

// Response is the JSON body returned for a successful transcription.
type Response struct {
	Transcript string     `json:"transcript"`
	Words      []stt.Word `json:"words"`
	Turns      []stt.Turn `json:"turns"`
}

// Handler serves POST requests carrying a multipart "audio" field.
type Handler struct {
	t         stt.Transcriber
	provider  string
	language  string
	maxUpload int64
	metrics   *observe.Metrics
}

// Option configures a [Handler].
type Option func(*Handler)

// WithLanguage sets the BCP-47 language passed to the backend.
func WithLanguage(lang string) Option {
	return func(h *Handler) { h.language = lang }
}

// WithMaxUpload overrides [DefaultMaxUpload].
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithMetrics records latency and provider outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New returns a handler that transcribes through t. provider labels metrics.
func New(t stt.Transcriber, provider string, opts ...Option) *Handler {
	h := &Handler{
		t:         t,
		provider:  provider,
		maxUpload: DefaultMaxUpload,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context(), "provider", h.provider)

	if h.t == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription provider not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	start := time.Now()
	ctx, span := observe.StartSpan(r.Context(), "proxy.transcribe",
		observe.Attr("provider", h.provider),
		attribute.Int64("clip.bytes", header.Size),
	)
	rec, err := h.t.Transcribe(ctx, file, contentType, stt.TranscribeOptions{
		Diarize:  true,
		Language: h.language,
	})
	observe.EndSpan(span, err)
	h.metrics.TranscriptionDuration.Record(r.Context(), time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", h.provider)))
	if err != nil {
		h.metrics.RecordProviderRequest(r.Context(), h.provider, "transcribe", "error")
		h.metrics.RecordProviderError(r.Context(), h.provider, "transcribe")
		log.Error("transcription failed", "file", header.Filename, "err", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	h.metrics.RecordProviderRequest(r.Context(), h.provider, "transcribe", "ok")

	resp := Response{Words: []stt.Word{}, Turns: []stt.Turn{}}
	if rec != nil {
		resp.Transcript = rec.Transcript
		if len(rec.Words) > 0 {
			resp.Words = rec.Words
			resp.Turns = stt.GroupBySpeaker(rec.Words)
		}
	}
	log.Info("clip transcribed",
		"bytes", header.Size,
		"words", len(resp.Words),
		"turns", len(resp.Turns),
		"duration", time.Since(start),
	)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
