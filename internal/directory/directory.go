// Package directory is the persistent room/member record keeper the
// signaling core consults for existence checks and teardown, and the
// HTTP management API reads and writes.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/collab-signaling/internal/store"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrMemberNotFound = errors.New("member not found")

// RoomRecord is the stored metadata for a named room.
type RoomRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creatorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is one registered participant of a room.
type Member struct {
	Name string `json:"name"`
	UID  string `json:"uid"`
	Room string `json:"room_name"`
}

type Directory struct {
	store store.Store
	ttl   time.Duration
}

func New(s store.Store, ttl time.Duration) *Directory {
	return &Directory{store: s, ttl: ttl}
}

func roomKey(name string) string    { return "room:" + name }
func membersKey(name string) string { return "members:" + name }
func assetsKey(name string) string  { return "assets:" + name }

// GetOrCreateRoom returns the record for name, creating it on first
// reference.
func (d *Directory) GetOrCreateRoom(ctx context.Context, name, creatorID string) (*RoomRecord, error) {
	record, err := d.GetRoom(ctx, name)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}

	record = &RoomRecord{
		ID:        uuid.New().String(),
		Name:      name,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := d.store.Set(ctx, roomKey(name), string(data), d.ttl); err != nil {
		return nil, fmt.Errorf("store room %s: %w", name, err)
	}
	return record, nil
}

func (d *Directory) GetRoom(ctx context.Context, name string) (*RoomRecord, error) {
	data, err := d.store.Get(ctx, roomKey(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var record RoomRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("corrupt room record %s: %w", name, err)
	}
	return &record, nil
}

func (d *Directory) RoomExists(ctx context.Context, name string) (bool, error) {
	_, err := d.GetRoom(ctx, name)
	if errors.Is(err, ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Directory) DeleteRoom(ctx context.Context, name string) error {
	return d.store.Delete(ctx, roomKey(name), membersKey(name), assetsKey(name))
}

// CreateMember registers a participant; repeated registration with the
// same uid replaces the stale record.
func (d *Directory) CreateMember(ctx context.Context, m Member) error {
	if err := d.removeMember(ctx, m.Room, m.UID); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := d.store.ListPrepend(ctx, membersKey(m.Room), string(data)); err != nil {
		return err
	}
	return d.store.Expire(ctx, membersKey(m.Room), d.ttl)
}

func (d *Directory) GetMember(ctx context.Context, room, uid string) (*Member, error) {
	members, err := d.Members(ctx, room)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].UID == uid {
			return &members[i], nil
		}
	}
	return nil, ErrMemberNotFound
}

func (d *Directory) DeleteMember(ctx context.Context, room, uid string) error {
	if _, err := d.GetMember(ctx, room, uid); err != nil {
		return err
	}
	return d.removeMember(ctx, room, uid)
}

func (d *Directory) Members(ctx context.Context, room string) ([]Member, error) {
	entries, err := d.store.ListRange(ctx, membersKey(room), 0, -1)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(entries))
	for _, entry := range entries {
		var m Member
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func (d *Directory) removeMember(ctx context.Context, room, uid string) error {
	entries, err := d.store.ListRange(ctx, membersKey(room), 0, -1)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		var m Member
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			continue
		}
		if m.UID == uid {
			if err := d.store.ListDelete(ctx, membersKey(room), entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAsset remembers an uploaded asset reference for the room so
// teardown can delete everything the room accumulated.
func (d *Directory) RecordAsset(ctx context.Context, room, ref string) error {
	if err := d.store.ListPrepend(ctx, assetsKey(room), ref); err != nil {
		return err
	}
	return d.store.Expire(ctx, assetsKey(room), d.ttl)
}

// DeleteRoomAssets drops every asset reference recorded for the room
// and returns the references so the caller can remove the bytes.
func (d *Directory) DeleteRoomAssets(ctx context.Context, room string) ([]string, error) {
	refs, err := d.store.ListRange(ctx, assetsKey(room), 0, -1)
	if err != nil {
		return nil, err
	}
	if err := d.store.Delete(ctx, assetsKey(room)); err != nil {
		return refs, err
	}
	return refs, nil
}
