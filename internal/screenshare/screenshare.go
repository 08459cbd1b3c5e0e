// Package screenshare manages the single-owner-per-room screen share
// claim. Claims live in the TTL store so every server process sees the
// same owner; per-room mutexes make start/stop atomic within a process.
package screenshare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mossy-p/collab-signaling/internal/store"
)

var (
	ErrNotActive = errors.New("screen share is not active")
	ErrNotOwner  = errors.New("only the sharing user may stop the share")
)

// AlreadyOwnedError reports a start attempt while another user holds
// the claim.
type AlreadyOwnedError struct {
	Owner string
}

func (e *AlreadyOwnedError) Error() string {
	return fmt.Sprintf("screen share already owned by %s", e.Owner)
}

// Claim is the stored ownership record for one room.
type Claim struct {
	Owner     string    `json:"sharing_user_uid"`
	StartedAt time.Time `json:"started_at"`
}

type Manager struct {
	store store.Store
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(s store.Store, ttl time.Duration) *Manager {
	return &Manager{
		store: s,
		ttl:   ttl,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) roomLock(room string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[room]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[room] = lock
	}
	return lock
}

func claimKey(room string) string {
	return "screenshare:" + room
}

// Start claims the share for uid. A repeated start by the current
// owner refreshes the claim instead of failing, so a reconnecting
// sharer does not lock themselves out.
func (m *Manager) Start(ctx context.Context, room, uid string) (*Claim, error) {
	lock := m.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.load(ctx, room)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Owner != uid {
		return nil, &AlreadyOwnedError{Owner: current.Owner}
	}
	if current != nil {
		log.Printf("User %s already sharing in room %s, refreshing claim", uid, room)
	}

	claim := &Claim{Owner: uid, StartedAt: time.Now()}
	if err := m.save(ctx, room, claim); err != nil {
		return nil, err
	}
	log.Printf("User %s started screen share in room %s", uid, room)
	return claim, nil
}

// Stop releases the claim; only the current owner may do so.
func (m *Manager) Stop(ctx context.Context, room, uid string) error {
	lock := m.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.load(ctx, room)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotActive
	}
	if current.Owner != uid {
		return fmt.Errorf("%w (owner %s)", ErrNotOwner, current.Owner)
	}

	if err := m.store.Delete(ctx, claimKey(room)); err != nil {
		return err
	}
	log.Printf("User %s stopped screen share in room %s", uid, room)
	return nil
}

// ForceStop releases the claim unconditionally. It returns the evicted
// owner, or empty when nothing was active. Used when the sharing user
// disconnects and on room teardown.
func (m *Manager) ForceStop(ctx context.Context, room string) (string, error) {
	lock := m.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.load(ctx, room)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", nil
	}
	if err := m.store.Delete(ctx, claimKey(room)); err != nil {
		return "", err
	}
	log.Printf("Force-stopped screen share by %s in room %s", current.Owner, room)
	return current.Owner, nil
}

// State returns the current claim, or nil when the room has none.
func (m *Manager) State(ctx context.Context, room string) (*Claim, error) {
	lock := m.roomLock(room)
	lock.Lock()
	defer lock.Unlock()
	return m.load(ctx, room)
}

// Release drops the per-room lock bookkeeping for a torn-down room.
func (m *Manager) Release(room string) {
	m.mu.Lock()
	delete(m.locks, room)
	m.mu.Unlock()
}

func (m *Manager) load(ctx context.Context, room string) (*Claim, error) {
	data, err := m.store.Get(ctx, claimKey(room))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var claim Claim
	if err := json.Unmarshal([]byte(data), &claim); err != nil {
		return nil, fmt.Errorf("corrupt screen share claim for %s: %w", room, err)
	}
	return &claim, nil
}

func (m *Manager) save(ctx context.Context, room string, claim *Claim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, claimKey(room), string(data), m.ttl)
}
