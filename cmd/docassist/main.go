// Command docassist is the main entry point for the DocAssist clinical
// documentation server.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docassist/docassist/internal/app"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "docassist.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config or vocabulary file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher performs the initial load even when polling is disabled.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		application.Reload(old, next)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "docassist: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "docassist: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, level))

	slog.Info("docassist starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cmp.Or(cfg.Telemetry.ServiceVersion, version),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg)

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithLevelVar(level)}
	if *watch {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// SIGHUP forces a reload, with or without polling.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if _, err := watcher.Reload(); err != nil {
					slog.Warn("reload on SIGHUP failed", "err", err)
				}
			}
		}
	}()

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        DocAssist, startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Fprintf(w, "║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallback))
	printProvider(w, "Transcription", cfg.Providers.Transcription.Name, cfg.Providers.Transcription.Model)
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "Reports", string(cmp.Or(cfg.Reports.Backend, config.ReportsMemory)), "")
	if cfg.Vocabulary.File != "" {
		printProvider(w, "Vocabulary", cfg.Vocabulary.File, "")
	} else {
		printProvider(w, "Vocabulary", "(built-in)", "")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(w, "║  %-13s   : %-19s ║\n", kind, value)
}
