package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestJoin_Capacity(t *testing.T) {
	r := New(20, nil)

	for i := 0; i < 20; i++ {
		if err := r.Join("demo"); err != nil {
			t.Fatalf("join %d: %v", i+1, err)
		}
	}
	if err := r.Join("demo"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("21st join err = %v, want ErrRoomFull", err)
	}
	if got := r.Count("demo"); got != 20 {
		t.Errorf("count after rejected join = %d, want 20", got)
	}
}

func TestLeave_FlooredAtZero(t *testing.T) {
	r := New(5, nil)
	ctx := context.Background()

	r.Leave(ctx, "demo")
	if got := r.Count("demo"); got != 0 {
		t.Fatalf("count = %d", got)
	}

	r.Join("demo")
	r.Leave(ctx, "demo")
	r.Leave(ctx, "demo")
	if got := r.Count("demo"); got != 0 {
		t.Errorf("count went negative: %d", got)
	}
}

func TestTeardown_RunsOnce(t *testing.T) {
	var teardowns atomic.Int32
	r := New(5, func(_ context.Context, room string) {
		if room != "demo" {
			t.Errorf("teardown room = %q", room)
		}
		teardowns.Add(1)
	})
	ctx := context.Background()

	r.Join("demo")
	r.Join("demo")
	r.Leave(ctx, "demo")
	if n := teardowns.Load(); n != 0 {
		t.Fatalf("teardown ran while room occupied (%d)", n)
	}
	r.Leave(ctx, "demo")
	r.Leave(ctx, "demo") // extra leave must not re-trigger
	if n := teardowns.Load(); n != 1 {
		t.Fatalf("teardown ran %d times, want 1", n)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := New(1000, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := r.Join("demo"); err == nil {
					r.Leave(ctx, "demo")
				}
			}
		}()
	}
	wg.Wait()

	if got := r.Count("demo"); got != 0 {
		t.Fatalf("count after balanced join/leave = %d, want 0", got)
	}
}

func TestRoomsIndependent(t *testing.T) {
	r := New(1, nil)

	if err := r.Join("a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := r.Join("b"); err != nil {
		t.Fatalf("join b should not be affected by a's capacity: %v", err)
	}
}
