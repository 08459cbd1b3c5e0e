package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/collab-signaling/internal/directory"
	"github.com/mossy-p/collab-signaling/internal/registry"
	"github.com/mossy-p/collab-signaling/internal/validate"
)

type createRoomRequest struct {
	RoomName string `json:"room_name" binding:"required"`
}

type memberRequest struct {
	Name     string `json:"name" binding:"required"`
	UID      string `json:"uid" binding:"required"`
	RoomName string `json:"room_name" binding:"required"`
}

// CreateRoom creates (or returns) the directory record for a room.
// Requires authentication; the creator owns deletion rights.
func CreateRoom(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !validate.RoomName(req.RoomName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room name"})
			return
		}

		record, err := dir.GetRoom(c.Request.Context(), req.RoomName)
		created := false
		if errors.Is(err, directory.ErrRoomNotFound) {
			record, err = dir.GetOrCreateRoom(c.Request.Context(), req.RoomName, userID.(string))
			created = true
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}

		log.Printf("Room %s requested by user %s (created=%v)", req.RoomName, userID, created)
		c.JSON(http.StatusCreated, gin.H{
			"room_id":   record.ID,
			"room_name": record.Name,
			"created":   created,
		})
	}
}

// GetRoom returns a room's directory record and live occupancy.
func GetRoom(dir *directory.Directory, reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.Param("roomName")
		if !validate.RoomName(roomName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room name"})
			return
		}

		record, err := dir.GetRoom(c.Request.Context(), roomName)
		if errors.Is(err, directory.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"room":         record,
			"member_count": reg.Count(roomName),
		})
	}
}

// DeleteRoom removes a room's directory record. Creator only.
func DeleteRoom(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		roomName := c.Param("roomName")
		record, err := dir.GetRoom(c.Request.Context(), roomName)
		if errors.Is(err, directory.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
			return
		}
		if record.CreatorID != userID.(string) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
			return
		}

		if err := dir.DeleteRoom(c.Request.Context(), roomName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
			return
		}
		log.Printf("Room %s deleted by user %s", roomName, userID)
		c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
	}
}

// CreateMember registers a participant record for a room.
func CreateMember(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req memberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !validate.RoomName(req.RoomName) || !validate.UserID(req.UID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid identifier"})
			return
		}

		if _, err := dir.GetOrCreateRoom(c.Request.Context(), req.RoomName, ""); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create member"})
			return
		}
		member := directory.Member{Name: req.Name, UID: req.UID, Room: req.RoomName}
		if err := dir.CreateMember(c.Request.Context(), member); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create member"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": req.Name})
	}
}

// GetMember looks a member up by room and uid.
func GetMember(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.Query("room_name")
		uid := c.Query("uid")

		member, err := dir.GetMember(c.Request.Context(), roomName, uid)
		if errors.Is(err, directory.ErrMemberNotFound) {
			c.JSON(http.StatusOK, gin.H{"name": ""})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load member"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": member.Name})
	}
}

// DeleteMember removes a participant record.
func DeleteMember(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UID      string `json:"uid" binding:"required"`
			RoomName string `json:"room_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := dir.DeleteMember(c.Request.Context(), req.RoomName, req.UID)
		if errors.Is(err, directory.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete member"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Member deleted"})
	}
}

// GetRoomMembers lists the registered members of a room.
func GetRoomMembers(dir *directory.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomName := c.Param("roomName")
		members, err := dir.Members(c.Request.Context(), roomName)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"members": []any{}, "error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(members))
		for _, m := range members {
			out = append(out, gin.H{"uid": m.UID, "name": m.Name})
		}
		c.JSON(http.StatusOK, gin.H{"members": out})
	}
}
