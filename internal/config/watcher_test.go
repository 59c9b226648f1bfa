package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docassist/docassist/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// change is one observed callback.
type change struct{ old, next *config.Config }

// watch creates a watcher over a config file holding initial and returns it
// with the file path and the callback channel.
func watch(t *testing.T, initial string, opts ...config.WatcherOption) (*config.Watcher, string, chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docassist.yaml")
	writeFile(t, path, initial)
	changes := make(chan change, 8)
	w, err := config.NewWatcher(path, func(old, next *config.Config) {
		changes <- change{old, next}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, changes
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	w, _, _ := watch(t, "server:\n  log_level: warn\n")
	if got := w.Current().Server.LogLevel; got != config.LogWarn {
		t.Errorf("log_level = %q, want warn", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "server:\n  log_level: loud\n")
	if _, err := config.NewWatcher(bad, nil); err == nil {
		t.Error("invalid initial config accepted")
	}
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("missing config accepted")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	w, path, changes := watch(t, "server:\n  log_level: info\nalerts:\n  dedup_window: 10s\n")

	// Rewriting identical bytes is not a change.
	writeFile(t, path, "server:\n  log_level: info\nalerts:\n  dedup_window: 10s\n")
	if changed, err := w.Reload(); changed || err != nil {
		t.Errorf("Reload() = %v, %v on identical content", changed, err)
	}

	writeFile(t, path, "server:\n  log_level: debug\nalerts:\n  dedup_window: 20s\n")
	changed, err := w.Reload()
	if !changed || err != nil {
		t.Fatalf("Reload() = %v, %v, want change", changed, err)
	}
	c := <-changes
	d := config.Diff(c.old, c.next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.DedupWindowChanged || d.NewDedupWindow != 20*time.Second {
		t.Errorf("dedup diff = %+v", d)
	}
	if w.Current() != c.next {
		t.Error("Current() is not the config handed to the callback")
	}

	// A broken edit keeps the previous config and fires nothing.
	writeFile(t, path, "server:\n  log_level: loud\n")
	if changed, err := w.Reload(); changed || err == nil {
		t.Errorf("Reload() = %v, %v on invalid content", changed, err)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q after invalid edit", w.Current().Server.LogLevel)
	}
	if len(changes) != 0 {
		t.Errorf("%d unexpected callbacks", len(changes))
	}
}

func TestWatcher_VocabularyEditIsAChange(t *testing.T) {
	t.Parallel()

	vocab := filepath.Join(t.TempDir(), "vocab.yaml")
	writeFile(t, vocab, "medications: [amoxicillin]\n")
	w, _, changes := watch(t, "vocabulary:\n  file: "+vocab+"\n")

	writeFile(t, vocab, "medications: [amoxicillin, metformin]\n")
	if changed, err := w.Reload(); !changed || err != nil {
		t.Fatalf("Reload() = %v, %v, want change", changed, err)
	}
	c := <-changes
	if c.old.Vocabulary.File != c.next.Vocabulary.File {
		t.Error("vocabulary path should be unchanged")
	}
}

func TestWatcher_RunPolls(t *testing.T) {
	t.Parallel()

	w, path, changes := watch(t, "server:\n  log_level: info\n", config.WithInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, "server:\n  log_level: error\n")
	select {
	case c := <-changes:
		if c.next.Server.LogLevel != config.LogError {
			t.Errorf("log_level = %q", c.next.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not pick up the edit")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}
