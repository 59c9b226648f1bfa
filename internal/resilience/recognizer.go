package resilience

import (
	"bytes"
	"context"
	"io"

	"github.com/docassist/docassist/pkg/provider/stt"
)

var (
	_ stt.Provider    = (*RecognizerFallback)(nil)
	_ stt.Transcriber = (*TranscriberFallback)(nil)
)

// RecognizerFallback is an [stt.Provider] that opens the live stream on the
// first healthy backend. Only stream start is guarded: once a stream is open,
// its failures are handled by the session's restart policy.
type RecognizerFallback struct {
	group *FallbackGroup[stt.Provider]
}

// NewRecognizerFallback returns a fallback with primary as the preferred
// backend.
func NewRecognizerFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *RecognizerFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Status reports breaker states for readiness output.
func (f *RecognizerFallback) Status() []BackendStatus { return f.group.Status() }

// StartStream opens a stream on the first backend that accepts it.
func (f *RecognizerFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TranscriberFallback is an [stt.Transcriber] with failover. The clip is
// buffered once so every backend sees the full body.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// NewTranscriberFallback returns a fallback with primary as the preferred
// backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Status reports breaker states for readiness output.
func (f *TranscriberFallback) Status() []BackendStatus { return f.group.Status() }

// Transcribe sends the clip to each backend in turn until one succeeds.
func (f *TranscriberFallback) Transcribe(ctx context.Context, r io.Reader, contentType string, opts stt.TranscribeOptions) (*stt.Recording, error) {
	clip, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (*stt.Recording, error) {
		return t.Transcribe(ctx, bytes.NewReader(clip), contentType, opts)
	})
}
