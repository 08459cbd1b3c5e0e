// Package session runs one WebSocket connection through its lifetime:
// admission, message handling, state replay for late joiners, and the
// bounded disconnect cleanup.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/collab-signaling/config"
	"github.com/mossy-p/collab-signaling/internal/bus"
	"github.com/mossy-p/collab-signaling/internal/models"
	"github.com/mossy-p/collab-signaling/internal/ratelimit"
	"github.com/mossy-p/collab-signaling/internal/registry"
	"github.com/mossy-p/collab-signaling/internal/router"
	"github.com/mossy-p/collab-signaling/internal/screenshare"
	"github.com/mossy-p/collab-signaling/internal/whiteboard"
)

// Close codes distinguishing why the server ended the connection.
const (
	CloseInvalidRoomName = 4001
	CloseRoomFull        = 4002
)

const (
	readWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// State is the session lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosing
	StateClosed
)

// Deps bundles everything a session consumes.
type Deps struct {
	Bus         bus.Bus
	Router      *router.Router
	Registry    *registry.Registry
	Whiteboard  *whiteboard.Log
	ScreenShare *screenshare.Manager

	Limits         config.LimitConfig
	Batch          config.BatchConfig
	CleanupTimeout time.Duration
}

// Session is one live connection. The connection handler owns it
// exclusively; shared room state is reached only through the deps.
type Session struct {
	ID   string
	Room string

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	deps    Deps
	batch   *router.Batch
	limiter *ratelimit.Limiter

	state atomic.Int32

	uidMu sync.Mutex
	uid   string

	closeOnce sync.Once
}

// New creates a session for an already admitted connection.
func New(conn *websocket.Conn, room string, deps Deps) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Room:    room,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		deps:    deps,
		batch:   router.NewBatch(deps.Batch),
		limiter: ratelimit.New(nil, deps.Limits.RateCeiling, deps.Limits.RateWindow),
	}
}

// UserID returns the identifier assigned by the join message, empty
// until then.
func (s *Session) UserID() string {
	s.uidMu.Lock()
	defer s.uidMu.Unlock()
	return s.uid
}

// assignUserID is first-write-wins: later join messages cannot rename
// the session.
func (s *Session) assignUserID(uid string) bool {
	s.uidMu.Lock()
	defer s.uidMu.Unlock()
	if s.uid != "" {
		return false
	}
	s.uid = uid
	return true
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run subscribes the session to its room group and drives the pumps.
// It blocks until the connection is gone and cleanup has finished.
func (s *Session) Run(ctx context.Context) error {
	if err := s.deps.Bus.JoinGroup(ctx, s.Room, s.ID, s.deliver); err != nil {
		// Still owes the registry a leave for the connection-level join.
		s.shutdown()
		return err
	}
	s.state.Store(int32(StateJoined))

	go s.writePump()
	go s.flushLoop(ctx)
	s.readPump(ctx)
	s.shutdown()
	return nil
}

// deliver receives a frame from the bus and forwards it to the socket
// unless the frame is unicast-addressed to someone else.
func (s *Session) deliver(frame []byte) {
	if s.State() != StateJoined {
		return
	}
	var addr struct {
		Target string `json:"_target"`
	}
	if err := json.Unmarshal(frame, &addr); err != nil {
		return
	}
	if addr.Target != "" && addr.Target != s.UserID() {
		return
	}
	select {
	case s.send <- frame:
	default:
		log.Printf("Send buffer full for session %s, dropping frame", s.ID)
	}
}

// sendMessage queues a server-originated frame for this socket only.
func (s *Session) sendMessage(msg *models.SignalMessage) {
	data, err := msg.Encode()
	if err != nil {
		log.Printf("Failed to encode %s frame: %v", msg.Type, err)
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("Send buffer full for session %s, dropping %s", s.ID, msg.Type)
	}
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.deps.Limits.MaxImageObject + 64*1024)
	s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error in room %s: %v", s.Room, err)
			}
			return
		}
		if s.State() != StateJoined {
			return
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// flushLoop drives the interval side of the batching contract.
func (s *Session) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.deps.Batch.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if s.State() != StateJoined {
				return
			}
			if s.batch.Due(now) {
				s.deps.Router.Flush(ctx, s.Room, s.ID, s.batch)
			}
		case <-s.done:
			return
		}
	}
}
