package trial

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UnlockGuard throttles unlock attempts with a token bucket. A throttled
// attempt fails closed: Unlock returns false, it never errors. Wrong
// passwords are an expected outcome, so the guard exists only to keep a
// scripted guesser from hammering the comparison.
type UnlockGuard struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	failures    int64
	lastFailure time.Time
}

// NewUnlockGuard creates a guard refilling one attempt per refill interval
// with the given burst capacity.
func NewUnlockGuard(refill time.Duration, burst int) *UnlockGuard {
	return &UnlockGuard{
		limiter: rate.NewLimiter(rate.Every(refill), burst),
	}
}

// Allow reports whether another unlock attempt may proceed now.
func (g *UnlockGuard) Allow() bool {
	return g.limiter.Allow()
}

// RecordFailure counts a failed attempt.
func (g *UnlockGuard) RecordFailure(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.lastFailure = at
}

// Failures returns the total failed attempts and the time of the last one.
func (g *UnlockGuard) Failures() (int64, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures, g.lastFailure
}
