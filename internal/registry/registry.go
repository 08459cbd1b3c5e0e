// Package registry tracks live membership per room and enforces the
// capacity ceiling. The last leave tears the room down: whiteboard and
// screen-share state are cleared and per-room uploaded assets deleted.
package registry

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrRoomFull rejects a join at capacity.
var ErrRoomFull = errors.New("room is full")

// TeardownFunc runs exactly once when a room's member count returns to
// zero.
type TeardownFunc func(ctx context.Context, room string)

type Registry struct {
	capacity int
	teardown TeardownFunc

	mu    sync.Mutex
	rooms map[string]int
}

func New(capacity int, teardown TeardownFunc) *Registry {
	return &Registry{
		capacity: capacity,
		teardown: teardown,
		rooms:    make(map[string]int),
	}
}

// Join admits a new member unless the room is at capacity.
func (r *Registry) Join(room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.rooms[room]
	if count >= r.capacity {
		return ErrRoomFull
	}
	r.rooms[room] = count + 1
	if count == 0 {
		log.Printf("Room %s opened", room)
	}
	return nil
}

// Leave removes a member, floored at zero. The teardown hook runs
// outside the registry lock once the count reaches zero, so slow
// cache cleanup never blocks joins to other rooms.
func (r *Registry) Leave(ctx context.Context, room string) {
	r.mu.Lock()
	count := r.rooms[room]
	if count == 0 {
		r.mu.Unlock()
		return
	}
	count--
	if count == 0 {
		delete(r.rooms, room)
	} else {
		r.rooms[room] = count
	}
	r.mu.Unlock()

	if count == 0 {
		log.Printf("Room %s empty, tearing down", room)
		if r.teardown != nil {
			r.teardown(ctx, room)
		}
	}
}

// Count returns the current member count for the room.
func (r *Registry) Count(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room]
}
