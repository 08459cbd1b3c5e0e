package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 256

// MemoryBus is a single-process Bus. Each subscriber drains a buffered
// channel on its own goroutine; a full buffer makes Publish report
// ErrCapacity after delivering to the remaining subscribers.
type MemoryBus struct {
	mu     sync.RWMutex
	groups map[string]map[string]*memorySub
}

type memorySub struct {
	frames chan []byte
	done   chan struct{}
}

func NewMemory() *MemoryBus {
	return &MemoryBus{groups: make(map[string]map[string]*memorySub)}
}

func (b *MemoryBus) JoinGroup(_ context.Context, groupID, subscriberID string, h Handler) error {
	sub := &memorySub{
		frames: make(chan []byte, subscriberBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	group, ok := b.groups[groupID]
	if !ok {
		group = make(map[string]*memorySub)
		b.groups[groupID] = group
	}
	if old, ok := group[subscriberID]; ok {
		close(old.done)
	}
	group[subscriberID] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case frame := <-sub.frames:
				h(frame)
			case <-sub.done:
				return
			}
		}
	}()
	return nil
}

func (b *MemoryBus) LeaveGroup(_ context.Context, groupID, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.groups[groupID]
	if !ok {
		return nil
	}
	sub, ok := group[subscriberID]
	if !ok {
		return nil
	}
	close(sub.done)
	delete(group, subscriberID)
	if len(group) == 0 {
		delete(b.groups, groupID)
	}
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, groupID string, frame []byte, excludeID string) error {
	b.mu.RLock()
	group := b.groups[groupID]
	subs := make([]*memorySub, 0, len(group))
	for id, sub := range group {
		if id == excludeID {
			continue
		}
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var dropped bool
	for _, sub := range subs {
		select {
		case sub.frames <- frame:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrCapacity
	}
	return nil
}
