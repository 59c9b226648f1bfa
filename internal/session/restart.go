package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docassist/docassist/pkg/provider/stt"
)

// Default restart parameters.
const (
	defaultRestartAttempts   = 5
	defaultRestartBackoff    = 250 * time.Millisecond
	defaultRestartMaxBackoff = 5 * time.Second
)

// RestartPolicy controls how a session reopens its recognizer stream after
// the recognizer ends on its own while the session is listening.
type RestartPolicy struct {
	// MaxAttempts is the number of reopen attempts before the session moves
	// to the error state. Defaults to 5.
	MaxAttempts int

	// Backoff is the wait after the first failed attempt. It doubles each
	// attempt up to MaxBackoff. Defaults to 250ms.
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts. Defaults to 5s.
	MaxBackoff time.Duration
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRestartAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRestartBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultRestartMaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// reopen calls start until it succeeds, the attempts run out, or ctx is
// cancelled. The first attempt is immediate.
func reopen(ctx context.Context, sessionID string, p RestartPolicy, start func(context.Context) (stt.SessionHandle, error)) (stt.SessionHandle, error) {
	p = p.withDefaults()
	wait := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h, err := start(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("recognizer reopened",
					"session_id", sessionID,
					"attempt", attempt,
				)
			}
			return h, nil
		}
		lastErr = err

		slog.Warn("recognizer reopen failed",
			"session_id", sessionID,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff", wait,
			"err", err,
		)
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, p.MaxBackoff)
	}

	return nil, fmt.Errorf("session: reopen recognizer after %d attempts: %w", p.MaxAttempts, lastErr)
}
