// Package ratelimit implements per-client token buckets for the read API.
package ratelimit

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds how many client buckets are tracked at once.
const DefaultMaxClients = 4096

// Limiter manages per-client rate limits. Idle clients are evicted in LRU
// order once MaxClients buckets exist.
type Limiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// PerMinute is the sustained request rate; <= 0 disables limiting.
	PerMinute int
	// Burst defaults to PerMinute.
	Burst      int
	MaxClients int
}

// New creates a new Limiter.
func New(cfg Config) (*Limiter, error) {
	limit := rate.Inf
	if cfg.PerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.PerMinute))
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(cfg.PerMinute, 1)
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = DefaultMaxClients
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("create limiter cache: %w", err)
	}
	return &Limiter{limiters: cache, limit: limit, burst: burst}, nil
}

// Allow consumes one token for client and reports whether the request may proceed.
func (l *Limiter) Allow(client string) bool {
	if l.limit == rate.Inf {
		return true
	}
	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		if prev, found, _ := l.limiters.PeekOrAdd(client, limiter); found {
			limiter = prev
		}
	}
	return limiter.Allow()
}

// Clients returns the number of tracked client buckets.
func (l *Limiter) Clients() int {
	return l.limiters.Len()
}
