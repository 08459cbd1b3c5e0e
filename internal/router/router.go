// Package router owns the delivery policy for signaling frames: which
// kinds go out synchronously, which failures surface, and how ICE
// candidates batch. Swallow-vs-surface is decided here, per kind, not
// at call sites.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mossy-p/collab-signaling/config"
	"github.com/mossy-p/collab-signaling/internal/bus"
	"github.com/mossy-p/collab-signaling/internal/models"
)

// ErrMessageTooLarge rejects an oversized frame before processing.
var ErrMessageTooLarge = errors.New("message too large")

// Policy is the delivery class of a message kind.
type Policy int

const (
	// PolicyCritical routes synchronously; delivery failures surface
	// to the caller because a lost offer/answer breaks the call.
	PolicyCritical Policy = iota
	// PolicyBroadcast routes synchronously; bus backpressure is logged
	// and swallowed, these are best-effort presence signals.
	PolicyBroadcast
	// PolicyBatched queues the frame for interval/threshold flushing.
	PolicyBatched
)

// Classify maps a message kind to its delivery policy.
func Classify(t models.SignalType) Policy {
	switch t {
	case models.SignalTypeOffer, models.SignalTypeAnswer:
		return PolicyCritical
	case models.SignalTypeCandidate:
		return PolicyBatched
	default:
		return PolicyBroadcast
	}
}

type Router struct {
	bus    bus.Bus
	limits config.LimitConfig
}

func New(b bus.Bus, limits config.LimitConfig) *Router {
	return &Router{bus: b, limits: limits}
}

// CheckSize validates the wire size of a frame against its kind's
// ceiling. Whiteboard payloads get wider limits than plain signaling,
// and objects carrying an embedded image wider still.
func (r *Router) CheckSize(msg *models.SignalMessage, size int64) error {
	limit := r.limits.MaxMessage
	switch msg.Type {
	case models.SignalTypeWhiteboardDraw:
		limit = r.limits.MaxDraw
	case models.SignalTypeWhiteboardObject:
		if objectPayloadType(msg) == "image" {
			limit = r.limits.MaxImageObject
		} else {
			limit = r.limits.MaxObject
		}
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes (limit %d for %s)", ErrMessageTooLarge, size, limit, msg.Type)
	}
	return nil
}

func objectPayloadType(msg *models.SignalMessage) string {
	data, ok := msg.Raw["data"]
	if !ok {
		return ""
	}
	var payload struct {
		Object struct {
			Type string `json:"type"`
		} `json:"object"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Object.Type
}

// Dispatch publishes one frame to the room, excluding the sending
// subscriber. Unicast frames carry the target id so receivers can
// self-filter; the bus itself has no per-recipient addressing. The
// returned error follows the kind's policy: non-nil only when the
// failure must surface.
func (r *Router) Dispatch(ctx context.Context, room, subscriberID string, msg *models.SignalMessage) error {
	if !msg.Broadcast() {
		msg.Target = msg.To
	}
	frame, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msg.Type, err)
	}

	err = r.bus.Publish(ctx, room, frame, subscriberID)
	if err == nil {
		return nil
	}
	if Classify(msg.Type) == PolicyCritical {
		log.Printf("Delivery of %s in room %s failed: %v", msg.Type, room, err)
		return fmt.Errorf("deliver %s: %w", msg.Type, err)
	}
	log.Printf("Dropping %s in room %s: %v", msg.Type, room, err)
	return nil
}

// Flush drains up to the configured batch bound from the queue and
// dispatches each candidate under its own unicast/broadcast policy.
func (r *Router) Flush(ctx context.Context, room, subscriberID string, batch *Batch) {
	for _, msg := range batch.Drain() {
		// Candidates are PolicyBatched, never critical: Dispatch
		// swallows their delivery failures.
		if err := r.Dispatch(ctx, room, subscriberID, msg); err != nil {
			log.Printf("Flush dispatch failed in room %s: %v", room, err)
		}
	}
}

// Route applies the kind's policy to one accepted inbound frame. Any
// non-batched frame flushes the pending batch first so receivers never
// observe a candidate reordered after a later frame from the same
// sender.
func (r *Router) Route(ctx context.Context, room, subscriberID string, msg *models.SignalMessage, batch *Batch) error {
	switch Classify(msg.Type) {
	case PolicyBatched:
		if batch.Add(msg) {
			r.Flush(ctx, room, subscriberID, batch)
		}
		return nil
	case PolicyCritical:
		r.Flush(ctx, room, subscriberID, batch)
		return r.Dispatch(ctx, room, subscriberID, msg)
	default:
		r.Flush(ctx, room, subscriberID, batch)
		return r.Dispatch(ctx, room, subscriberID, msg)
	}
}
