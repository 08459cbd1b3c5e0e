package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_CeilingWithinWindow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(clk, 30, time.Second)

	for i := 0; i < 30; i++ {
		clk.Advance(10 * time.Millisecond)
		if !l.Allow() {
			t.Fatalf("message %d rejected, want all 30 accepted", i+1)
		}
	}
	if l.Allow() {
		t.Fatalf("31st message within the window accepted, want rejected")
	}
	if l.Allow() {
		t.Fatalf("32nd message within the window accepted, want rejected")
	}
}

func TestLimiter_WindowClears(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(clk, 30, time.Second)

	for i := 0; i < 30; i++ {
		if !l.Allow() {
			t.Fatalf("message %d rejected during burst", i+1)
		}
	}
	if l.Allow() {
		t.Fatalf("over-ceiling message accepted")
	}

	clk.Advance(time.Second + time.Millisecond)
	if !l.Allow() {
		t.Fatalf("message after window elapsed rejected")
	}
}

func TestLimiter_RejectionsNotRecorded(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(clk, 2, time.Second)

	l.Allow()
	l.Allow()
	// Rejected attempts must not extend the window occupancy.
	for i := 0; i < 10; i++ {
		if l.Allow() {
			t.Fatalf("attempt %d accepted over ceiling", i)
		}
	}

	clk.Advance(time.Second + time.Millisecond)
	if !l.Allow() {
		t.Fatalf("window should have cleared despite rejected attempts")
	}
}
