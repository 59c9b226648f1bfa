// Package app wires all DocAssist subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the vocabulary, report
// store, session manager and HTTP surface, Run serves until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithReportStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/health"
	"github.com/docassist/docassist/internal/httpapi"
	"github.com/docassist/docassist/internal/note"
	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/internal/proxy"
	"github.com/docassist/docassist/internal/report"
	"github.com/docassist/docassist/internal/report/postgres"
	"github.com/docassist/docassist/internal/resilience"
	"github.com/docassist/docassist/internal/session"
	"github.com/docassist/docassist/internal/vocab"
	"github.com/docassist/docassist/internal/vocab/phonetic"
	"github.com/docassist/docassist/pkg/provider/llm"
	"github.com/docassist/docassist/pkg/provider/stt"
)

const (
	defaultListenAddr = ":8080"

	// serverShutdownTimeout bounds the graceful HTTP drain once Run's
	// context is cancelled.
	serverShutdownTimeout = 10 * time.Second
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// STT opens live recognition streams. Usually a
	// [resilience.RecognizerFallback].
	STT stt.Provider

	// Transcriber serves offline diarised transcription for /api/transcribe.
	Transcriber stt.Transcriber

	// TranscriberName labels proxy metrics. Defaults to "transcriber".
	TranscriberName string

	// LLM drafts the optional narrative appended to notes.
	LLM llm.Provider
}

// statuser is implemented by the resilience fallback wrappers.
type statuser interface {
	Status() []resilience.BackendStatus
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	vocab    *vocab.Source
	reports  report.Store
	sessions *session.Manager
	metrics  *observe.Metrics
	handler  http.Handler

	metricsHandler http.Handler
	level          *slog.LevelVar
	watcher        *config.Watcher

	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithReportStore injects a report store instead of creating one from config.
func WithReportStore(s report.Store) Option {
	return func(a *App) { a.reports = s }
}

// WithMetrics injects the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler overrides the handler mounted at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads adjust the log level of the handler
// built in main.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWatcher runs w alongside the server. Its callback should call
// [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). A nil providers is
// treated as empty: sessions can still be created and edited, but cannot
// record.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Vocabulary ────────────────────────────────────────────────────
	tables, err := loadVocabulary(cfg.Vocabulary.File)
	if err != nil {
		return nil, fmt.Errorf("app: init vocabulary: %w", err)
	}
	a.vocab = vocab.NewSource(tables)

	// ── 2. Report store ──────────────────────────────────────────────────
	if err := a.initReports(ctx); err != nil {
		return nil, fmt.Errorf("app: init reports: %w", err)
	}

	// ── 3. Session manager ───────────────────────────────────────────────
	a.initSessions()

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	slog.Info("app initialised",
		"recognizer", providers.STT != nil,
		"transcriber", providers.Transcriber != nil,
		"narrator", providers.LLM != nil,
		"reports", backendName(cfg.Reports.Backend),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// loadVocabulary returns the built-in tables with the override file, if
// any, merged on top.
func loadVocabulary(path string) (*vocab.Tables, error) {
	if path == "" {
		return vocab.Default(), nil
	}
	t, err := vocab.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded vocabulary override", "path", path, "medications", len(t.Medications))
	return t, nil
}

// initReports opens the configured report store unless one was injected.
func (a *App) initReports(ctx context.Context) error {
	if a.reports != nil {
		return nil
	}

	rc := a.cfg.Reports
	switch rc.Backend {
	case config.ReportsFile:
		store, err := report.OpenFileStore(rc.Path)
		if err != nil {
			return err
		}
		a.reports = store
	case config.ReportsPostgres:
		store, err := postgres.New(ctx, rc.PostgresDSN)
		if err != nil {
			return err
		}
		a.reports = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		a.reports = report.NewMemStore()
	}
	return nil
}

func (a *App) initSessions() {
	sc := a.cfg.Session
	cfg := session.Config{
		SampleRate:       sc.SampleRate,
		Channels:         1,
		Language:         sc.Language,
		FinalizeDelay:    sc.FinalizeDelay,
		SilenceStop:      sc.SilenceStop,
		SilenceThreshold: sc.SilenceThreshold,
		SilenceHold:      sc.SilenceHold,
		AlertWindow:      a.cfg.Alerts.DedupWindow,
		Restart: session.RestartPolicy{
			MaxAttempts: sc.Restart.MaxAttempts,
			Backoff:     sc.Restart.Backoff,
			MaxBackoff:  sc.Restart.MaxBackoff,
		},
		NarrateTimeout: sc.NarrateTimeout,
	}

	deps := session.Deps{
		Recognizer:    a.providers.STT,
		Vocab:         a.vocab,
		Canonicalizer: note.VocabCanonicalizer{Source: a.vocab, Matcher: phonetic.New()},
		Reports:       a.reports,
		Metrics:       a.metrics,
	}
	if a.providers.LLM != nil {
		deps.Narrator = note.NewLLMNarrator(a.providers.LLM)
	}

	a.sessions = session.NewManager(cfg, deps)
	// Sessions close before the store they write to.
	a.closers = append([]func() error{func() error {
		a.sessions.Close()
		return nil
	}}, a.closers...)
}

func (a *App) initHTTP() {
	checks := []health.Checker{
		health.Ping("reports", a.reports),
		health.Configured("recognizer", a.providers.STT != nil),
	}
	if s, ok := a.providers.STT.(statuser); ok {
		checks = append(checks, health.Backends("recognizer_backends", s.Status))
	}

	deps := httpapi.Deps{
		Sessions:       a.sessions,
		Reports:        a.reports,
		Health:         health.New(checks...),
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}

	if t := a.providers.Transcriber; t != nil {
		name := a.providers.TranscriberName
		if name == "" {
			name = "transcriber"
		}
		deps.Transcribe = proxy.New(t, name,
			proxy.WithLanguage(a.cfg.Session.Language),
			proxy.WithMaxUpload(a.cfg.Server.MaxUploadBytes),
			proxy.WithMetrics(a.metrics),
		)
	}

	a.handler = httpapi.New(deps).Handler()
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Reports returns the report store.
func (a *App) Reports() report.Store { return a.reports }

// Vocabulary returns the active vocabulary source.
func (a *App) Vocabulary() *vocab.Source { return a.vocab }

// Addr returns the address the server is listening on, or nil before Run
// has bound it.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. It is the callback for
// [config.Watcher]. The vocabulary file is re-read on every call because the
// watcher also fires when only its contents changed.
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	tables, err := loadVocabulary(next.Vocabulary.File)
	if err != nil {
		slog.Warn("vocabulary reload failed, keeping previous tables",
			"path", next.Vocabulary.File, "err", err)
	} else {
		a.vocab.Replace(tables)
	}

	if d.DedupWindowChanged {
		a.sessions.SetAlertWindow(d.NewDedupWindow)
		slog.Info("alert dedup window changed", "window", d.NewDedupWindow)
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, and runs the config watcher if one was given, until ctx
// is cancelled. It returns nil after a clean drain.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("serving https", "addr", ln.Addr().String())
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("serving http", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every session and the report store. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func backendName(b config.ReportBackend) string {
	if b == "" {
		return string(config.ReportsMemory)
	}
	return string(b)
}
