package httpapi

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window limiter keyed by caller address. Entries
// outside the window are dropped on each check.
type rateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	requests map[string][]time.Time
	clock    func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		window:   window,
		limit:    limit,
		requests: map[string][]time.Time{},
		clock:    time.Now,
	}
}

// allow reports whether the caller may proceed and records the attempt.
func (rl *rateLimiter) allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.clock()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.limit {
		rl.requests[key] = kept
		return false
	}
	rl.requests[key] = append(kept, now)
	return true
}
