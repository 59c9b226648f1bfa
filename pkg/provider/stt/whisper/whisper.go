// Package whisper runs the stt contracts against a whisper.cpp server
// (POST /inference), the local fallback when the hosted recognizer is down.
//
// whisper.cpp only transcribes whole files, so a live stream is cut into
// utterances on trailing silence and each utterance is sent as one WAV file.
// Every utterance yields a partial and a final carrying the same text.
package whisper

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/docassist/docassist/pkg/provider/stt"
)

const (
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Provider is one whisper.cpp server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.Transcriber = (*Provider)(nil)
)

// Option customises a [Provider].
type Option func(*Provider)

// WithModel forwards a model name. Empty leaves the server's loaded model.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a request names none.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithSampleRate sets the PCM rate assumed when a stream names none.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
func WithSilenceThresholdMs(ms int) Option { return func(p *Provider) { p.silenceThresholdMs = ms } }

// WithMaxBufferDurationMs cuts an utterance that runs this long without a pause.
func WithMaxBufferDurationMs(ms int) Option { return func(p *Provider) { p.maxBufferDurationMs = ms } }

// New returns a provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server url required")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a segmented live stream. Nothing is sent to the server
// until the first utterance ends.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	seg := segmenter{
		sampleRate: cmp.Or(max(cfg.SampleRate, 0), p.sampleRate),
		channels:   cmp.Or(max(cfg.Channels, 0), 1),
		silenceCut: time.Duration(p.silenceThresholdMs) * time.Millisecond,
		maxLen:     time.Duration(p.maxBufferDurationMs) * time.Millisecond,
	}
	return openStream(p, cmp.Or(cfg.Language, p.language), seg), nil
}

// Transcribe sends a whole clip. whisper.cpp does not diarise, so every word
// belongs to speaker 0.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader, contentType string, opts stt.TranscribeOptions) (*stt.Recording, error) {
	clip, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("whisper: read clip: %w", err)
	}
	text, err := p.infer(ctx, clip, "audio"+extFor(contentType), cmp.Or(opts.Language, p.language))
	if err != nil {
		return nil, err
	}
	rec := &stt.Recording{Transcript: text}
	for _, w := range strings.Fields(text) {
		rec.Words = append(rec.Words, stt.Word{Word: w})
	}
	return rec, nil
}

// extFor picks a filename extension whisper.cpp can sniff the container from.
func extFor(contentType string) string {
	for _, c := range []struct{ needle, ext string }{
		{"webm", ".webm"},
		{"ogg", ".ogg"},
		{"mpeg", ".mp3"},
		{"mp3", ".mp3"},
	} {
		if strings.Contains(contentType, c.needle) {
			return c.ext
		}
	}
	return ".wav"
}

// infer uploads one file to /inference and returns the trimmed text.
func (p *Provider) infer(ctx context.Context, file []byte, filename, lang string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err == nil {
		_, err = part.Write(file)
	}
	for _, f := range [][2]string{{"language", lang}, {"model", p.model}, {"response_format", "json"}} {
		if err == nil && f[1] != "" {
			err = form.WriteField(f[0], f[1])
		}
	}
	if err == nil {
		err = form.Close()
	}
	if err != nil {
		return "", fmt.Errorf("whisper: encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: inference: server returned %s", resp.Status)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode inference: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
