package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/relay"
)

// MemberSource answers room membership from a store shared across processes.
type MemberSource interface {
	Members(ctx context.Context, roomID string) ([]models.Member, error)
}

// Health reports liveness and presence counts
func Health(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       stats.Rooms,
			"users":       stats.Users,
			"connections": stats.Connections,
		})
	}
}

// GetRoom lists the members currently present in a room. With a shared member
// source configured it is consulted instead of local presence.
func GetRoom(hub *relay.Hub, source MemberSource, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		room := hub.RoomPresence(roomID)
		if source != nil {
			members, err := source.Members(c.Request.Context(), roomID)
			if err != nil {
				logger.Warn("shared presence lookup failed, using local presence",
					zap.String("room", roomID), zap.Error(err))
			} else {
				room = models.RoomPresence{RoomID: roomID, Members: members, Count: len(members)}
			}
		}

		if room.Count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

// GetUser reports whether a user is connected to this server
func GetUser(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.UserPresence(c.Param("userId")))
	}
}
