package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/resilience"
)

func pass(context.Context) error { return nil }

func TestProbes(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	tests := []struct {
		name       string
		path       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "healthz ignores checks",
			path:       "/healthz",
			checkers:   []Checker{{Name: "reports", Check: func(context.Context) error { return down }}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "readyz without checks",
			path:       "/readyz",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "readyz all pass",
			path:       "/readyz",
			checkers:   []Checker{{Name: "reports", Check: pass}, {Name: "recognizer", Check: pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"reports": "ok", "recognizer": "ok"},
		},
		{
			name: "readyz one fails",
			path: "/readyz",
			checkers: []Checker{
				{Name: "reports", Check: func(context.Context) error { return down }},
				{Name: "recognizer", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"reports": "fail: connection refused", "recognizer": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			New(tt.checkers...).Register(mux)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body result
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("checks[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	wait := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		<-started
		<-started
		close(release)
	}()

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		New(Checker{Name: "a", Check: wait}, Checker{Name: "b", Check: wait}).
			Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		done <- rec.Code
	}()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("checks ran one after another")
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestPingAndConfigured(t *testing.T) {
	code, body := readyz(t, New(
		Ping("reports", report.NewMemStore()),
		Configured("recognizer", false),
	))
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", code)
	}
	if body.Checks["reports"] != "ok" || body.Checks["recognizer"] != "fail: not configured" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestBackends(t *testing.T) {
	tests := []struct {
		name   string
		status []resilience.BackendStatus
		want   string
	}{
		{
			name:   "one healthy",
			status: []resilience.BackendStatus{{Name: "deepgram", State: "open"}, {Name: "whisper", State: "closed"}},
			want:   "ok",
		},
		{
			name:   "half-open counts as available",
			status: []resilience.BackendStatus{{Name: "deepgram", State: "half-open"}},
			want:   "ok",
		},
		{
			name:   "all open",
			status: []resilience.BackendStatus{{Name: "deepgram", State: "open"}, {Name: "whisper", State: "open"}},
			want:   "fail: all circuit breakers open: deepgram, whisper",
		},
		{
			name: "empty",
			want: "fail: no backends",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := readyz(t, New(Backends("stt", func() []resilience.BackendStatus { return tt.status })))
			if got := body.Checks["stt"]; got != tt.want {
				t.Errorf("check = %q, want %q", got, tt.want)
			}
		})
	}
}
