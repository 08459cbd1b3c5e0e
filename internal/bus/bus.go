// Package bus is the group broadcast fanout the signaling sessions
// publish through. A group is a room; every subscriber of the group
// receives every published frame except those addressed away from it.
//
// The bus has no per-recipient addressing: exclusion travels in an
// envelope and receivers drop frames excluded from them.
package bus

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCapacity reports that at least one subscriber could not accept
// the frame. Callers decide per message kind whether that is fatal.
var ErrCapacity = errors.New("bus: subscriber buffer full")

// Handler receives the raw frame published to the group.
type Handler func(frame []byte)

type Bus interface {
	// JoinGroup subscribes subscriberID to groupID; h runs for each
	// delivered frame until LeaveGroup.
	JoinGroup(ctx context.Context, groupID, subscriberID string, h Handler) error
	LeaveGroup(ctx context.Context, groupID, subscriberID string) error
	// Publish fans frame out to every subscriber of groupID except
	// excludeID (empty means no exclusion).
	Publish(ctx context.Context, groupID string, frame []byte, excludeID string) error
}

// envelope wraps published frames so exclusion survives transports
// that deliver to all subscribers, Redis Pub/Sub included.
type envelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}
