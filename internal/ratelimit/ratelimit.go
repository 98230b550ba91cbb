// Package ratelimit protects the transaction intake from misbehaving
// producers. Limits are per source IP; a token bucket smooths legitimate
// bursts while holding the long-run rate.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the max requests per source per minute
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to drop idle sources
	CleanupInterval time.Duration
}

// DefaultConfig returns limits sized for event producers, which batch and
// retry, rather than interactive clients.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 600, // 10 events/sec average per source
		BurstSize:         50,
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks a token bucket per source.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	sources map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New creates a rate limiter and starts its janitor goroutine.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		sources: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup drops sources idle for more than two cleanup intervals.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.cfg.CleanupInterval)
			l.mu.Lock()
			for key, b := range l.sources {
				if b.lastSeen.Before(cutoff) {
					delete(l.sources, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the janitor goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow reports whether one more request from the source fits its budget.
func (l *Limiter) Allow(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.sources[source]
	if !exists {
		l.sources[source] = &bucket{
			tokens:   float64(l.cfg.BurstSize - 1),
			lastSeen: now,
		}
		return true
	}

	refill := now.Sub(b.lastSeen).Seconds() * float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens += refill
	if b.tokens > float64(l.cfg.BurstSize) {
		b.tokens = float64(l.cfg.BurstSize)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware returns a gin middleware that rate limits by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests from this source",
			})
			return
		}
		c.Next()
	}
}
