package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis Pub/Sub. Each subscriber holds its
// own PubSub connection so a slow session never stalls another.
type RedisBus struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[subKey]*redis.PubSub
}

type subKey struct {
	group      string
	subscriber string
}

func NewRedis(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		subs:   make(map[subKey]*redis.PubSub),
	}
}

func channelName(groupID string) string {
	return "signal:" + groupID
}

func (b *RedisBus) JoinGroup(ctx context.Context, groupID, subscriberID string, h Handler) error {
	key := subKey{group: groupID, subscriber: subscriberID}

	pubsub := b.client.Subscribe(ctx, channelName(groupID))
	// Force the subscription onto the wire before reporting joined.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to group %s: %w", groupID, err)
	}

	b.mu.Lock()
	if old, ok := b.subs[key]; ok {
		old.Close()
	}
	b.subs[key] = pubsub
	b.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Dropping malformed bus frame on %s: %v", groupID, err)
				continue
			}
			if env.Exclude == subscriberID {
				continue
			}
			h(env.Frame)
		}
	}()
	return nil
}

func (b *RedisBus) LeaveGroup(_ context.Context, groupID, subscriberID string) error {
	key := subKey{group: groupID, subscriber: subscriberID}

	b.mu.Lock()
	pubsub, ok := b.subs[key]
	delete(b.subs, key)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	return pubsub.Close()
}

func (b *RedisBus) Publish(ctx context.Context, groupID string, frame []byte, excludeID string) error {
	payload, err := json.Marshal(envelope{Exclude: excludeID, Frame: frame})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelName(groupID), payload).Err()
}
