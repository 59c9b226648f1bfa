package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/docassist/docassist/pkg/provider/llm"
	"github.com/docassist/docassist/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// with no registered factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name to factory table.
type factories[T any] struct {
	kind string
	byID map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, byID: map[string]Factory[T]{}}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	build, ok := f.byID[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return build(entry)
}

// Registry holds the provider factories the config can refer to by name.
// A later registration under the same name replaces the earlier one. It is
// safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers factories[stt.Provider]
	transcriber factories[stt.Transcriber]
	llms        factories[llm.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		recognizers: newFactories[stt.Provider]("stt"),
		transcriber: newFactories[stt.Transcriber]("transcription"),
		llms:        newFactories[llm.Provider]("llm"),
	}
}

// RegisterSTT registers a live recognizer.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	r.recognizers.byID[name] = f
	r.mu.Unlock()
}

// RegisterTranscriber registers an offline clip transcriber.
func (r *Registry) RegisterTranscriber(name string, f Factory[stt.Transcriber]) {
	r.mu.Lock()
	r.transcriber.byID[name] = f
	r.mu.Unlock()
}

// RegisterLLM registers a narrative model.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	r.llms.byID[name] = f
	r.mu.Unlock()
}

// CreateSTT builds the recognizer named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recognizers.create(entry)
}

// CreateTranscriber builds the transcriber named by entry.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcriber.create(entry)
}

// CreateLLM builds the model named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llms.create(entry)
}

// Names lists the registered names per provider kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.recognizers.kind: sortedKeys(r.recognizers.byID),
		r.transcriber.kind: sortedKeys(r.transcriber.byID),
		r.llms.kind:        sortedKeys(r.llms.byID),
	}
}

func sortedKeys[T any](m map[string]Factory[T]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
