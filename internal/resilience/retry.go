package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy controls [Retry]. Zero-value fields are replaced with defaults.
type RetryPolicy struct {
	// Name labels log messages.
	Name string

	// Attempts is the total number of tries, the first included. Default: 3.
	Attempts int

	// BaseDelay is the wait after the first failure. Each further wait
	// doubles it. Default: 2s.
	BaseDelay time.Duration

	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool

	// OnRetry is called before each wait with the attempt that failed
	// (1-based) and the upcoming delay.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Logger receives a warning per retry. Defaults to slog.Default().
	Logger *slog.Logger
}

func (p *RetryPolicy) applyDefaults() {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
}

// Delay returns the wait after the given failed attempt: BaseDelay * 2^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p.applyDefaults()
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is used up. The last error is returned unwrapped so callers
// can still inspect it. A cancelled context aborts the wait.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p.applyDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, err
		}

		delay := p.Delay(attempt)
		p.Logger.Warn("resilience: retrying after failure",
			"name", p.Name,
			"attempt", attempt,
			"delay", delay,
			"err", err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("resilience: retry %s: %w", p.Name, serr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
