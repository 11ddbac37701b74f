// Package ratelimit enforces the two stacked local limits from §4.6: a
// per-user sliding window, and a dedicated 1-request-per-second window for
// the search operation specifically.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SlidingWindowLimiter bounds requests per key over a rolling window,
// keeping a bounded list of timestamps per key (§4.6). A single mutex guards
// the lists of all keys; there is no per-key lock or striping.
type SlidingWindowLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewSlidingWindowLimiter creates a limiter allowing maxRequests per window,
// per key.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether key may make another request now, recording it if so.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	kept := l.requests[key][:0]
	for _, t := range l.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxRequests {
		l.requests[key] = kept
		return false
	}

	l.requests[key] = append(kept, now)
	return true
}

// Remaining returns how many requests key may still make in the current window.
func (l *SlidingWindowLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	count := 0
	for _, t := range l.requests[key] {
		if t.After(cutoff) {
			count++
		}
	}
	remaining := l.maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ResetAt returns when key's oldest in-window request will age out.
func (l *SlidingWindowLimiter) ResetAt(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	reqs := l.requests[key]
	if len(reqs) == 0 {
		return time.Now()
	}
	return reqs[0].Add(l.window)
}

// Reset clears key's window entirely.
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.requests, key)
}

// OperationLimiter gives every key its own dedicated rate.Limiter, used for
// the fixed 1-request-per-second search-operation window. Lazily created per
// key and never evicted: the key space is bounded by active users.
type OperationLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewOperationLimiter creates a per-key token-bucket limiter at the given
// requests-per-second rate.
func NewOperationLimiter(rps float64, burst int) *OperationLimiter {
	if burst < 1 {
		burst = 1
	}
	return &OperationLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may perform the operation now.
func (o *OperationLimiter) Allow(key string) bool {
	return o.limiterFor(key).Allow()
}

func (o *OperationLimiter) limiterFor(key string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.limiters[key]
	if !ok {
		l = rate.NewLimiter(o.rps, o.burst)
		o.limiters[key] = l
	}
	return l
}
