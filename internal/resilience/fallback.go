package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds interchangeable providers tried in registration order.
// Each member has its own [CircuitBreaker] built from the shared config.
// Members are added during setup; afterwards the group is safe for
// concurrent use.
type FallbackGroup[T any] struct {
	breaker CircuitBreakerConfig
	members []member[T]
}

// NewFallbackGroup creates a group with primary as its first member.
func NewFallbackGroup[T any](primary T, name string, breaker CircuitBreakerConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{breaker: breaker}
	g.Add(name, primary)
	return g
}

// Add appends a fallback member.
func (g *FallbackGroup[T]) Add(name string, value T) {
	cfg := g.breaker
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(cfg)})
}

// Names lists the members in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// Primary returns the first member.
func (g *FallbackGroup[T]) Primary() T {
	return g.members[0].value
}

// Try runs fn against each member until one succeeds. It returns
// [ErrAllFailed] wrapping the last error when none does.
func Try[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range g.members {
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
