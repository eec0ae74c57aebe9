// Package ratelimit implements a token bucket limiter keyed by search
// provider, plus a SearchProvider decorator that waits for a token before
// every search.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
)

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter manages per-provider rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// New creates a Limiter. A non-positive RPS means unlimited.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the given key, respecting the
// context. Non-trivial waits are recorded as rate limit delay.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, d)
	}
	return nil
}

// LimitedProvider wraps a SearchProvider so every search first acquires a
// token for that provider's key.
type LimitedProvider struct {
	inner   pick.SearchProvider
	limiter *Limiter
}

// Limit decorates the provider. A nil limiter returns the provider
// unchanged.
func Limit(inner pick.SearchProvider, limiter *Limiter) pick.SearchProvider {
	if limiter == nil {
		return inner
	}
	return &LimitedProvider{inner: inner, limiter: limiter}
}

// Name returns the wrapped provider's name.
func (p *LimitedProvider) Name() string { return p.inner.Name() }

// Search waits for a rate token, then delegates.
func (p *LimitedProvider) Search(ctx context.Context, query string, exclude pick.ExclusionSet, limit int) ([]string, error) {
	if err := p.limiter.Wait(ctx, p.inner.Name()); err != nil {
		return nil, err
	}
	return p.inner.Search(ctx, query, exclude, limit)
}
