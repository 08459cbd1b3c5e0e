package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mossy-p/collab-signaling/internal/models"
	"github.com/mossy-p/collab-signaling/internal/screenshare"
	"github.com/mossy-p/collab-signaling/internal/validate"
	"github.com/mossy-p/collab-signaling/internal/whiteboard"
)

// handleFrame validates and dispatches one inbound frame. Validation
// failures reply to this sender only and never close the connection.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	if !s.limiter.Allow() {
		s.sendMessage(models.ErrorReply(s.UserID(), "rate limit exceeded"))
		return
	}

	msg, err := models.Parse(data)
	if err != nil {
		log.Printf("Rejecting frame in room %s: %v", s.Room, err)
		s.sendMessage(models.ErrorReply(s.UserID(), "invalid message type"))
		return
	}

	sender := msg.Sender()
	if sender != "" && !validate.UserID(sender) {
		s.sendMessage(models.ErrorReply(s.UserID(), "invalid user identifier"))
		return
	}
	if msg.To != "" && !validate.UserID(msg.To) {
		s.sendMessage(models.ErrorReply(s.UserID(), "invalid target identifier"))
		return
	}

	if err := s.deps.Router.CheckSize(msg, int64(len(data))); err != nil {
		log.Printf("Oversized %s frame in room %s: %v", msg.Type, s.Room, err)
		s.sendMessage(models.ErrorReply(sender, "message too large"))
		return
	}

	msg.Room = s.Room

	switch msg.Type {
	case models.SignalTypeJoin:
		s.handleJoin(ctx, msg)
	case models.SignalTypeScreenShareStart:
		s.handleScreenShareStart(ctx, msg)
	case models.SignalTypeScreenShareStop:
		s.handleScreenShareStop(ctx, msg)
	case models.SignalTypeScreenShareRequestState:
		s.handleScreenShareRequestState(ctx, msg)
	case models.SignalTypeWhiteboardDraw:
		s.handleWhiteboardDraw(ctx, msg)
	case models.SignalTypeWhiteboardObject:
		s.handleWhiteboardObject(ctx, msg)
	case models.SignalTypeWhiteboardClear:
		s.handleWhiteboardClear(ctx, msg)
	default:
		s.route(ctx, msg)
	}
}

// route hands the frame to the router; surfaced critical failures are
// reported back to the sender so the client can retry the negotiation.
func (s *Session) route(ctx context.Context, msg *models.SignalMessage) {
	if err := s.deps.Router.Route(ctx, s.Room, s.ID, msg, s.batch); err != nil {
		log.Printf("Critical delivery failed in room %s: %v", s.Room, err)
		s.sendMessage(models.ErrorReply(msg.Sender(), "delivery failed, please retry"))
	}
}

// handleJoin assigns the session identity and announces the newcomer.
// First-write-wins: repeated joins relay presence but keep the uid.
func (s *Session) handleJoin(ctx context.Context, msg *models.SignalMessage) {
	uid := msg.Sender()
	if uid == "" {
		s.sendMessage(models.ErrorReply("", "join message has no uid"))
		return
	}
	first := s.assignUserID(uid)

	joined := models.New(models.SignalTypeUserJoined, uid, map[string]any{
		"uid":  uid,
		"room": s.Room,
	})
	s.route(ctx, joined)

	if first {
		log.Printf("User %s joined room %s as session %s", uid, s.Room, s.ID)
		go s.replayState(ctx)
	}
}

// replayState streams the room's whiteboard log and screen-share state
// to this session alone, paced so a large board does not flood the
// fresh connection. Only runs when the room already has other members.
func (s *Session) replayState(ctx context.Context) {
	if s.deps.Registry.Count(s.Room) <= 1 {
		return
	}

	frames, err := s.deps.Whiteboard.Replay(ctx, s.Room)
	if err != nil {
		log.Printf("Whiteboard replay for room %s failed: %v", s.Room, err)
		return
	}
	for _, frame := range frames {
		if s.State() != StateJoined {
			return
		}
		s.sendMessage(frame)
		time.Sleep(s.deps.Batch.ReplayPace)
	}

	claim, err := s.deps.ScreenShare.State(ctx, s.Room)
	if err != nil {
		log.Printf("Screen share state for room %s failed: %v", s.Room, err)
		return
	}
	if claim != nil {
		state := models.New(models.SignalTypeScreenShareState, "system", map[string]any{
			"is_active":    true,
			"sharing_user": claim.Owner,
		})
		state.To = s.UserID()
		s.sendMessage(state)
	}
}

func (s *Session) handleScreenShareStart(ctx context.Context, msg *models.SignalMessage) {
	uid := msg.Sender()
	claim, err := s.deps.ScreenShare.Start(ctx, s.Room, uid)
	if err != nil {
		var owned *screenshare.AlreadyOwnedError
		if errors.As(err, &owned) {
			reply := models.New(models.SignalTypeScreenShareError, "system", map[string]any{
				"message":              "screen share already in progress",
				"current_sharing_user": owned.Owner,
			})
			reply.To = uid
			s.sendMessage(reply)
			return
		}
		log.Printf("Screen share start in room %s failed: %v", s.Room, err)
		s.sendMessage(models.ErrorReply(uid, "screen share unavailable"))
		return
	}

	started := models.New(models.SignalTypeScreenShareStarted, uid, map[string]any{
		"room":         s.Room,
		"sharing_user": claim.Owner,
	})
	s.route(ctx, started)
}

func (s *Session) handleScreenShareStop(ctx context.Context, msg *models.SignalMessage) {
	uid := msg.Sender()
	if err := s.deps.ScreenShare.Stop(ctx, s.Room, uid); err != nil {
		if errors.Is(err, screenshare.ErrNotActive) || errors.Is(err, screenshare.ErrNotOwner) {
			reply := models.New(models.SignalTypeScreenShareError, "system", map[string]any{
				"message": err.Error(),
			})
			reply.To = uid
			s.sendMessage(reply)
			return
		}
		log.Printf("Screen share stop in room %s failed: %v", s.Room, err)
		s.sendMessage(models.ErrorReply(uid, "screen share unavailable"))
		return
	}

	stopped := models.New(models.SignalTypeScreenShareStopped, uid, map[string]any{
		"room":         s.Room,
		"sharing_user": uid,
	})
	s.route(ctx, stopped)
}

func (s *Session) handleScreenShareRequestState(ctx context.Context, msg *models.SignalMessage) {
	uid := msg.Sender()
	claim, err := s.deps.ScreenShare.State(ctx, s.Room)
	if err != nil {
		log.Printf("Screen share state in room %s failed: %v", s.Room, err)
		s.sendMessage(models.ErrorReply(uid, "screen share unavailable"))
		return
	}

	fields := map[string]any{"is_active": false, "sharing_user": nil}
	if claim != nil {
		fields["is_active"] = true
		fields["sharing_user"] = claim.Owner
	}
	reply := models.New(models.SignalTypeScreenShareState, "system", fields)
	reply.To = uid
	s.sendMessage(reply)
}

func (s *Session) handleWhiteboardDraw(ctx context.Context, msg *models.SignalMessage) {
	if data, ok := msg.Raw["data"]; ok {
		if err := s.deps.Whiteboard.AppendPath(ctx, s.Room, data); err != nil {
			log.Printf("Whiteboard append in room %s failed: %v", s.Room, err)
		}
	}
	s.route(ctx, msg)
}

func (s *Session) handleWhiteboardObject(ctx context.Context, msg *models.SignalMessage) {
	data, ok := msg.Raw["data"]
	if ok {
		var payload struct {
			EventType string            `json:"eventType"`
			Object    whiteboard.Object `json:"object"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.sendMessage(models.ErrorReply(msg.Sender(), "malformed whiteboard object"))
			return
		}
		id, _ := payload.Object["id"].(string)

		var err error
		switch payload.EventType {
		case "object-added":
			err = s.deps.Whiteboard.AddObject(ctx, s.Room, payload.Object)
		case "object-modified":
			err = s.deps.Whiteboard.UpdateObject(ctx, s.Room, id, payload.Object)
		case "object-removed":
			err = s.deps.Whiteboard.RemoveObject(ctx, s.Room, id)
		default:
			// Transient events (moving, scaling) relay without storage.
		}
		if err != nil {
			log.Printf("Whiteboard %s in room %s failed: %v", payload.EventType, s.Room, err)
		}
	}
	s.route(ctx, msg)
}

func (s *Session) handleWhiteboardClear(ctx context.Context, msg *models.SignalMessage) {
	if err := s.deps.Whiteboard.Clear(ctx, s.Room); err != nil {
		log.Printf("Whiteboard clear in room %s failed: %v", s.Room, err)
	}
	s.route(ctx, msg)
}
