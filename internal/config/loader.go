package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":           {"deepgram", "whisper"},
	"transcription": {"deepgram", "whisper"},
	"llm":           {"openai"},
}

// envPrefix starts the environment variables that supply API keys.
const envPrefix = "DOCASSIST_"

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills API keys from the
// environment, and validates the result. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty api_key fields from DOCASSIST_<NAME>_API_KEY, where
// NAME is the upper-cased provider name with dashes turned to underscores.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	fill := func(e *ProviderEntry) {
		if e.Name == "" || e.APIKey != "" {
			return
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(e.Name, "-", "_")) + "_API_KEY"
		e.APIKey = getenv(key)
	}
	fill(&cfg.Providers.STT)
	for i := range cfg.Providers.STTFallback {
		fill(&cfg.Providers.STTFallback[i])
	}
	fill(&cfg.Providers.Transcription)
	fill(&cfg.Providers.LLM)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if len(cfg.Providers.STTFallback) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallback requires providers.stt"))
	}
	validateProviderName("transcription", cfg.Providers.Transcription.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; sessions will not be able to start")
	}
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Model == "" {
		slog.Warn("providers.llm.model is empty; the provider default will be used")
	}

	// Alerts
	if cfg.Alerts.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("alerts.dedup_window %s must not be negative", cfg.Alerts.DedupWindow))
	}

	// Session
	s := cfg.Session
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d must not be negative", s.SampleRate))
	}
	if s.FinalizeDelay < 0 {
		errs = append(errs, fmt.Errorf("session.finalize_delay %s must not be negative", s.FinalizeDelay))
	}
	if s.SilenceThreshold < 0 || s.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.silence_threshold %.3f is out of range [0, 1]", s.SilenceThreshold))
	}
	if s.SilenceHold < 0 {
		errs = append(errs, fmt.Errorf("session.silence_hold %s must not be negative", s.SilenceHold))
	}
	if s.Restart.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.restart.max_attempts %d must not be negative", s.Restart.MaxAttempts))
	}
	if s.Restart.Backoff < 0 || s.Restart.MaxBackoff < 0 {
		errs = append(errs, errors.New("session.restart backoff values must not be negative"))
	}

	// Reports
	switch cfg.Reports.Backend {
	case "", ReportsMemory:
		slog.Warn("reports.backend is memory; reports will be lost on restart")
	case ReportsFile:
		if cfg.Reports.Path == "" {
			errs = append(errs, errors.New("reports.path is required when backend is file"))
		}
	case ReportsPostgres:
		if cfg.Reports.PostgresDSN == "" {
			errs = append(errs, errors.New("reports.postgres_dsn is required when backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("reports.backend %q is invalid; valid values: memory, file, postgres", cfg.Reports.Backend))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
