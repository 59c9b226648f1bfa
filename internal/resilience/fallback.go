package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] failed or
// was skipped by an open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig is the breaker template applied to each backend.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// BackendStatus is a point-in-time view of one backend, used by readiness
// checks.
type BackendStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// FallbackGroup holds an ordered list of interchangeable backends, each with
// its own breaker. Backends must be registered before the group is shared.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, backend T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   backend,
		breaker: NewCircuitBreaker(cb),
	})
}

// Len returns the number of registered backends.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Status reports each backend's breaker state in registration order.
func (fg *FallbackGroup[T]) Status() []BackendStatus {
	out := make([]BackendStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = BackendStatus{Name: e.name, State: e.breaker.State().String()}
	}
	return out
}

// Execute calls fn on each backend in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a value.
// The name of the backend that answered is logged at debug level.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		var out R
		err := e.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(e.value)
			return callErr
		})
		if err == nil {
			if i > 0 {
				slog.Debug("fallback backend answered", "backend", e.name)
			}
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", e.name)
			continue
		}
		slog.Warn("backend failed, trying next", "backend", e.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
