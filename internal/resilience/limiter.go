package resilience

import (
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter keyed by unit class. Agents that
// spawn other agents of the same class could otherwise recurse without
// bound; the limiter caps spawns per class without any process-wide
// singleton. It is injected into whichever layer needs the protection.
type Limiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64
	buckets map[string]*bucket
	now     func() time.Time // for testing
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a Limiter refilling ratePerMinute tokens per minute
// per class, with the given burst capacity.
func NewLimiter(ratePerMinute float64, burst int) *Limiter {
	return &Limiter{
		rate:    ratePerMinute / 60,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether one more spawn of the given class is permitted now,
// consuming a token when it is.
func (l *Limiter) Allow(class string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[class]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[class] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets idle longer than maxIdle, keeping state bounded.
func (l *Limiter) Prune(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	for class, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, class)
		}
	}
}
