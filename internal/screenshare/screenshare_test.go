package screenshare

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/collab-signaling/internal/store"
)

func newManager() *Manager {
	return NewManager(store.NewMemory(), time.Hour)
}

func TestStart_Exclusive(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	if _, err := m.Start(ctx, "demo", "alice"); err != nil {
		t.Fatalf("alice start: %v", err)
	}

	_, err := m.Start(ctx, "demo", "bob")
	var owned *AlreadyOwnedError
	if !errors.As(err, &owned) {
		t.Fatalf("bob start err = %v, want AlreadyOwnedError", err)
	}
	if owned.Owner != "alice" {
		t.Errorf("reported owner = %q, want alice", owned.Owner)
	}
}

func TestStart_IdempotentForOwner(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	if _, err := m.Start(ctx, "demo", "alice"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := m.Start(ctx, "demo", "alice"); err != nil {
		t.Fatalf("owner restart should refresh, got %v", err)
	}

	claim, err := m.State(ctx, "demo")
	if err != nil || claim == nil || claim.Owner != "alice" {
		t.Fatalf("state = %+v, %v", claim, err)
	}
}

func TestStop_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	if err := m.Stop(ctx, "demo", "alice"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("stop before start err = %v, want ErrNotActive", err)
	}

	m.Start(ctx, "demo", "alice")
	if err := m.Stop(ctx, "demo", "bob"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("bob stop err = %v, want ErrNotOwner", err)
	}
	if err := m.Stop(ctx, "demo", "alice"); err != nil {
		t.Fatalf("alice stop: %v", err)
	}

	claim, err := m.State(ctx, "demo")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if claim != nil {
		t.Errorf("claim still present after stop: %+v", claim)
	}
}

func TestForceStop(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	owner, err := m.ForceStop(ctx, "demo")
	if err != nil || owner != "" {
		t.Fatalf("force stop on idle room = %q, %v", owner, err)
	}

	m.Start(ctx, "demo", "alice")
	owner, err = m.ForceStop(ctx, "demo")
	if err != nil {
		t.Fatalf("force stop: %v", err)
	}
	if owner != "alice" {
		t.Errorf("evicted owner = %q, want alice", owner)
	}
	if claim, _ := m.State(ctx, "demo"); claim != nil {
		t.Errorf("claim survived force stop: %+v", claim)
	}
}

func TestStart_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < racers; i++ {
		uid := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Start(ctx, "demo", uid); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
