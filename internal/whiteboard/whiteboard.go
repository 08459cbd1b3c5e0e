// Package whiteboard keeps the per-room drawing log: freeform path
// strokes (append-only) and identified objects (add/modify/remove).
// The log lives in the TTL store and is replayed to sessions joining
// a room that already has state.
package whiteboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mossy-p/collab-signaling/internal/models"
	"github.com/mossy-p/collab-signaling/internal/store"
)

type Log struct {
	store store.Store
	ttl   time.Duration
}

func NewLog(s store.Store, ttl time.Duration) *Log {
	return &Log{store: s, ttl: ttl}
}

func pathsKey(room string) string   { return "wb:paths:" + room }
func objectsKey(room string) string { return "wb:objects:" + room }

// Clear drops all whiteboard state for the room.
func (l *Log) Clear(ctx context.Context, room string) error {
	return l.store.Delete(ctx, pathsKey(room), objectsKey(room))
}

// AppendPath records a drawn stroke. The payload is the frame's data
// field and is stored verbatim.
func (l *Log) AppendPath(ctx context.Context, room string, data json.RawMessage) error {
	if err := l.store.ListPrepend(ctx, pathsKey(room), string(data)); err != nil {
		return err
	}
	return l.store.Expire(ctx, pathsKey(room), l.ttl)
}

// AddObject stores a new object after flattening. The stored form is
// what later replays deliver, so grouped images are normalized here,
// once, rather than on every replay.
func (l *Log) AddObject(ctx context.Context, room string, obj Object) error {
	flat := Flatten(obj)
	data, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("encode whiteboard object: %w", err)
	}
	if err := l.store.ListPrepend(ctx, objectsKey(room), string(data)); err != nil {
		return err
	}
	return l.store.Expire(ctx, objectsKey(room), l.ttl)
}

// UpdateObject replaces the stored object with the matching id in
// place, preserving list order. A missing id is a logged no-op: the
// object may simply have been removed or evicted already.
func (l *Log) UpdateObject(ctx context.Context, room, id string, newState Object) error {
	entries, err := l.store.ListRange(ctx, objectsKey(room), 0, -1)
	if err != nil {
		return err
	}
	index := findObject(entries, id)
	if index < 0 {
		log.Printf("Whiteboard update for unknown object %s in room %s, ignoring", id, room)
		return nil
	}
	data, err := json.Marshal(newState)
	if err != nil {
		return fmt.Errorf("encode whiteboard object: %w", err)
	}
	return l.store.ListSet(ctx, objectsKey(room), int64(index), string(data))
}

// RemoveObject deletes the stored object with the matching id; a
// missing id is a logged no-op.
func (l *Log) RemoveObject(ctx context.Context, room, id string) error {
	entries, err := l.store.ListRange(ctx, objectsKey(room), 0, -1)
	if err != nil {
		return err
	}
	index := findObject(entries, id)
	if index < 0 {
		log.Printf("Whiteboard remove for unknown object %s in room %s, ignoring", id, room)
		return nil
	}
	return l.store.ListDelete(ctx, objectsKey(room), entries[index])
}

func findObject(entries []string, id string) int {
	for i, entry := range entries {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(entry), &obj); err != nil {
			continue
		}
		if obj.ID == id {
			return i
		}
	}
	return -1
}

// Replay returns the frames reconstructing the room's whiteboard for a
// late joiner: paths oldest-first, then objects oldest-first wrapped
// as add events, then the restoration-complete marker with counts.
func (l *Log) Replay(ctx context.Context, room string) ([]*models.SignalMessage, error) {
	paths, err := l.store.ListRange(ctx, pathsKey(room), 0, -1)
	if err != nil {
		return nil, err
	}
	objects, err := l.store.ListRange(ctx, objectsKey(room), 0, -1)
	if err != nil {
		return nil, err
	}

	frames := make([]*models.SignalMessage, 0, len(paths)+len(objects)+1)

	// Lists store newest-first; replay runs oldest-first.
	for i := len(paths) - 1; i >= 0; i-- {
		frames = append(frames, models.New(models.SignalTypeWhiteboardDraw, "system", map[string]any{
			"data": json.RawMessage(paths[i]),
		}))
	}
	for i := len(objects) - 1; i >= 0; i-- {
		frames = append(frames, models.New(models.SignalTypeWhiteboardObject, "system", map[string]any{
			"data": map[string]any{
				"eventType": "object-added",
				"object":    json.RawMessage(objects[i]),
			},
		}))
	}
	frames = append(frames, models.New(models.SignalTypeRestorationComplete, "system", map[string]any{
		"paths":   len(paths),
		"objects": len(objects),
	}))
	return frames, nil
}
