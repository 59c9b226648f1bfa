package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] polls.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps the current config in sync with the file on disk and with
// the vocabulary override it names. A change to either reloads the config
// and calls the change callback; an edit that fails validation is logged
// and the previous config stays current.
type Watcher struct {
	path   string
	every  time.Duration
	notify func(old, next *Config)

	mu  sync.Mutex
	cfg *Config
	sum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.every = d
		}
	}
}

// NewWatcher loads path once. notify may be nil. Polling starts with
// [Watcher.Run].
func NewWatcher(path string, notify func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, every: DefaultWatchInterval, notify: notify}
	for _, opt := range opts {
		opt(w)
	}
	cfg, sum, err := snapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	w.cfg, w.sum = cfg, sum
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// Run reloads on every tick until ctx is done, then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	tick := time.NewTicker(w.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload re-reads the files now and reports whether the config changed.
// The callback runs on the caller's goroutine, after the new config is
// visible through [Watcher.Current].
func (w *Watcher) Reload() (bool, error) {
	cfg, sum, err := snapshot(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if sum == w.sum {
		w.mu.Unlock()
		return false, nil
	}
	old := w.cfg
	w.cfg, w.sum = cfg, sum
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.notify != nil {
		w.notify(old, cfg)
	}
	return true, nil
}

// snapshot loads the config at path and fingerprints it together with its
// vocabulary file. An unreadable vocabulary file does not fail the snapshot;
// loading the vocabulary reports it.
func snapshot(path string) (*Config, [sha256.Size]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}

	fingerprint := raw
	if cfg.Vocabulary.File != "" {
		if vocab, err := os.ReadFile(cfg.Vocabulary.File); err == nil {
			fingerprint = append(append(bytes.Clone(raw), 0), vocab...)
		}
	}
	return cfg, sha256.Sum256(fingerprint), nil
}
