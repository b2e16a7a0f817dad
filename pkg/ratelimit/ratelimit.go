// Package ratelimit provides a client-side sliding window rate limiter used
// to keep outbound calls to the hosted platform under its request quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures the sliding window limiter.
type Config struct {
	// Max is the maximum number of calls allowed per window. Zero or less
	// disables limiting.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
}

// Limiter is a sliding window limiter shared by concurrent callers.
//
// It tracks counts across two adjacent windows and weights the previous one
// by how much of it still overlaps the sliding window.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

// New creates a Limiter. A nil *Limiter allows everything.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, now: time.Now}
}

// Every returns a limiter allowing n calls per second.
func Every(n int) *Limiter {
	if n <= 0 {
		return nil
	}
	return New(Config{Max: n, Window: time.Second})
}

// reserve tries to take a slot at now. It reports whether the call is
// allowed, and if not, how long to wait before trying again.
func (l *Limiter) reserve(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currStart.IsZero() {
		l.currStart = now
	}

	// Rotate window if the current window has elapsed.
	if now.Sub(l.currStart) >= l.cfg.Window {
		l.prevCount = l.currCount
		l.prevStart = l.currStart
		l.currCount = 0
		l.currStart = now.Truncate(l.cfg.Window)
		if now.Sub(l.prevStart) >= 2*l.cfg.Window {
			l.prevCount = 0
		}
	}

	elapsed := now.Sub(l.currStart)
	overlapRatio := 1.0 - elapsed.Seconds()/l.cfg.Window.Seconds()
	if overlapRatio < 0 {
		overlapRatio = 0
	}
	effectiveCount := l.prevCount*overlapRatio + l.currCount

	if effectiveCount >= float64(l.cfg.Max) {
		wait := l.currStart.Add(l.cfg.Window).Sub(now)
		if l.currCount < float64(l.cfg.Max) && l.prevCount > 0 {
			// The previous window's weight decays linearly; wait until
			// enough of it has slid out to free one slot.
			excess := effectiveCount - float64(l.cfg.Max) + 1
			decay := time.Duration(excess / l.prevCount * float64(l.cfg.Window))
			if decay < wait {
				wait = decay
			}
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		return wait, false
	}

	l.currCount++
	return 0, true
}

// Allow reports whether a call may proceed now, consuming a slot if so.
func (l *Limiter) Allow() bool {
	if l == nil || l.cfg.Max <= 0 {
		return true
	}
	_, ok := l.reserve(l.now())
	return ok
}

// Wait blocks until a slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.cfg.Max <= 0 {
		return ctx.Err()
	}
	for {
		wait, ok := l.reserve(l.now())
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
