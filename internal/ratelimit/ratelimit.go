// Package ratelimit provides an in-memory token-bucket limiter keyed by
// caller subject. Tokens refill continuously at limit/window per second.
package ratelimit

import (
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single subject.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	limit   int
	done    chan struct{}
}

// New creates a limiter granting `limit` requests per window per subject.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		window:  window,
		limit:   limit,
		done:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for the subject and reports whether capacity
// remained. A non-positive limit disables limiting entirely.
func (l *Limiter) Allow(subject string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, exists := l.entries[subject]
	if !exists {
		l.entries[subject] = &entry{
			tokens:    float64(l.limit - 1),
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	rate := float64(l.limit) / l.window.Seconds()
	e.tokens += elapsed.Seconds() * rate
	if e.tokens > float64(l.limit) {
		e.tokens = float64(l.limit)
	}

	if e.tokens < 1 {
		return false
	}

	e.tokens--
	return true
}

// Reset clears the state for a specific subject.
func (l *Limiter) Reset(subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, subject)
}

// Close stops the background cleanup goroutine.
func (l *Limiter) Close() {
	close(l.done)
}

// cleanup periodically drops subjects idle for more than two windows.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * l.window)
			for subject, e := range l.entries {
				if e.lastCheck.Before(cutoff) {
					delete(l.entries, subject)
				}
			}
			l.mu.Unlock()
		}
	}
}
