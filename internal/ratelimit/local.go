package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepInterval = 5 * time.Minute
	idleAfter     = 10 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in memory.
// It refills maxRequests tokens per window and allows bursts of maxRequests.
type LocalLimiter struct {
	mu          sync.Mutex
	clients     map[string]*client
	limit       rate.Limit
	maxRequests int
	now         func() time.Time
}

// NewLocalLimiter creates an in-process limiter
func NewLocalLimiter(maxRequests int, window time.Duration) *LocalLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &LocalLimiter{
		clients:     make(map[string]*client),
		limit:       rate.Limit(float64(maxRequests) / window.Seconds()),
		maxRequests: maxRequests,
		now:         time.Now,
	}
}

// Allow consumes a token for key. It never returns an error.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.maxRequests)}
		l.clients[key] = c
	}
	c.lastSeen = now

	allowed := c.limiter.AllowN(now, 1)

	tokens := c.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	// time until the next whole token is available
	var wait time.Duration
	if tokens < 1 && l.limit > 0 {
		wait = time.Duration((1 - tokens) / float64(l.limit) * float64(time.Second))
	}

	return allowed, remaining, now.Add(wait), nil
}

// MaxRequests returns the bucket size
func (l *LocalLimiter) MaxRequests() int {
	return l.maxRequests
}

// Run evicts idle buckets until ctx is cancelled
func (l *LocalLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *LocalLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleAfter)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
