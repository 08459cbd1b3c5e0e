// Package ratelimit implements the per-connection sliding-window
// message limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so tests can drive the window deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Limiter keeps the timestamps of recently accepted messages for one
// session. Timestamps older than the window are pruned on every call;
// a message is accepted iff fewer than ceiling remain, and only
// accepted messages are recorded.
type Limiter struct {
	mu      sync.Mutex
	clock   Clock
	window  time.Duration
	ceiling int
	stamps  []time.Time
}

func New(clock Clock, ceiling int, window time.Duration) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &Limiter{
		clock:   clock,
		window:  window,
		ceiling: ceiling,
		stamps:  make([]time.Time, 0, ceiling),
	}
}

// Allow reports whether the current message fits in the window.
func (l *Limiter) Allow() bool {
	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	drop := 0
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			break
		}
		drop++
	}
	if drop > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[drop:]...)
	}

	if len(l.stamps) >= l.ceiling {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
