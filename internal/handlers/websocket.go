package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/collab-signaling/internal/directory"
	"github.com/mossy-p/collab-signaling/internal/registry"
	"github.com/mossy-p/collab-signaling/internal/session"
	"github.com/mossy-p/collab-signaling/internal/validate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// HandleSignaling upgrades the connection and runs a signaling session
// for the named room. Admission failures close the socket with a
// distinguished code so clients can tell "bad room" from "room full".
func HandleSignaling(deps session.Deps, dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.Param("roomName")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}

		if !validate.RoomName(roomName) {
			closeWith(conn, session.CloseInvalidRoomName, "invalid room name")
			return
		}

		if err := deps.Registry.Join(roomName); err != nil {
			if err == registry.ErrRoomFull {
				closeWith(conn, session.CloseRoomFull, "room full")
			} else {
				closeWith(conn, websocket.CloseInternalServerErr, "admission failed")
			}
			return
		}

		// Make sure the directory knows the room; signaling-first
		// clients may connect before any management API call.
		if _, err := dir.GetOrCreateRoom(context.Background(), roomName, ""); err != nil {
			log.Printf("Directory record for room %s failed (non-fatal): %v", roomName, err)
		}

		s := session.New(conn, roomName, deps)
		log.Printf("Session %s connected to room %s (%d members)", s.ID, roomName, deps.Registry.Count(roomName))

		// The connection is hijacked; run to completion here rather
		// than on the request context, which dies with this handler.
		if err := s.Run(context.Background()); err != nil {
			log.Printf("Session %s in room %s ended with error: %v", s.ID, roomName, err)
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
