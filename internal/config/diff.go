package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is set when the override file path changed. The
	// watcher only sees the config file; callers re-read the vocabulary file
	// on every reload regardless.
	VocabularyChanged bool
	NewVocabularyFile string

	DedupWindowChanged bool
	NewDedupWindow     time.Duration

	// RestartRequired lists sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether anything hot-reloadable changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.DedupWindowChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Vocabulary.File != new.Vocabulary.File {
		d.VocabularyChanged = true
		d.NewVocabularyFile = new.Vocabulary.File
	}
	if old.Alerts.DedupWindow != new.Alerts.DedupWindow {
		d.DedupWindowChanged = true
		d.NewDedupWindow = new.Alerts.DedupWindow
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Reports != new.Reports {
		d.RestartRequired = append(d.RestartRequired, "reports")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.STT, b.STT) || !entryEqual(a.Transcription, b.Transcription) || !entryEqual(a.LLM, b.LLM) {
		return false
	}
	if len(a.STTFallback) != len(b.STTFallback) {
		return false
	}
	for i := range a.STTFallback {
		if !entryEqual(a.STTFallback[i], b.STTFallback[i]) {
			return false
		}
	}
	return true
}

// entryEqual ignores Options, which may hold uncomparable values.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
