package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docassist/docassist/internal/app"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/observe"
	"github.com/docassist/docassist/internal/resilience"
	"github.com/docassist/docassist/pkg/provider/llm"
	"github.com/docassist/docassist/pkg/provider/llm/openai"
	"github.com/docassist/docassist/pkg/provider/stt"
	"github.com/docassist/docassist/pkg/provider/stt/deepgram"
	"github.com/docassist/docassist/pkg/provider/stt/whisper"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────
	// deepgram and whisper serve both live streams and offline clips.

	newDeepgram := func(entry config.ProviderEntry) (*deepgram.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithRESTEndpoint(entry.BaseURL))
		}
		if u := optString(entry.Options, "stream_url"); u != "" {
			opts = append(opts, deepgram.WithStreamEndpoint(u))
		}
		return deepgram.New(entry.APIKey, opts...)
	}

	newWhisper := func(entry config.ProviderEntry) (*whisper.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(entry.Options, "max_buffer_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	}

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newDeepgram(entry)
	})
	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		return newDeepgram(entry)
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newWhisper(entry)
	})
	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		return newWhisper(entry)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, openai.WithMaxRetries(optInt(entry.Options, "max_retries")))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for kind, names := range reg.Names() {
		slog.Debug("providers registered", "kind", kind, "names", names)
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Recognizers and transcribers are wrapped in breaker-guarded fallback groups
// whose transitions are counted on m.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	// ── Live recognizer ───────────────────────────────────────────────────────
	var (
		primarySTT stt.Provider
		fallbacks  []namedProvider
	)
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		primarySTT = p
		rf := resilience.NewRecognizerFallback(p, name, fbCfg)
		for i, entry := range cfg.Providers.STTFallback {
			fp, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %d (%q): %w", i, entry.Name, err)
			}
			rf.AddFallback(fallbackName(entry.Name, i), fp)
			fallbacks = append(fallbacks, namedProvider{name: fallbackName(entry.Name, i), p: fp})
		}
		ps.STT = rf
		slog.Info("provider created", "kind", "stt", "name", name, "fallbacks", len(fallbacks))
	}

	// ── Offline transcription ─────────────────────────────────────────────────
	// An explicit transcription entry wins; otherwise the recognizers double
	// as transcribers when they support it.
	var (
		primary     stt.Transcriber
		primaryName string
	)
	if name := cfg.Providers.Transcription.Name; name != "" {
		t, err := reg.CreateTranscriber(cfg.Providers.Transcription)
		if err != nil {
			return nil, fmt.Errorf("create transcription provider %q: %w", name, err)
		}
		primary, primaryName = t, name
	} else if t, ok := primarySTT.(stt.Transcriber); ok {
		primary, primaryName = t, cfg.Providers.STT.Name
	}
	if primary != nil {
		tf := resilience.NewTranscriberFallback(primary, primaryName, fbCfg)
		for _, fb := range fallbacks {
			if t, ok := fb.p.(stt.Transcriber); ok {
				tf.AddFallback(fb.name, t)
			}
		}
		ps.Transcriber = tf
		ps.TranscriberName = primaryName
		slog.Info("provider created", "kind", "transcription", "name", primaryName)
	}

	return ps, nil
}

type namedProvider struct {
	name string
	p    stt.Provider
}

// fallbackName keeps breaker names unique when the same provider appears
// more than once.
func fallbackName(name string, i int) string {
	return fmt.Sprintf("%s#%d", name, i+1)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
