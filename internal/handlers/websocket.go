package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// SocketOptions tunes per-connection limits.
type SocketOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
}

// Client represents a WebSocket client connection
type Client struct {
	ID     presence.ConnID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

var _ relay.Sender = (*Client)(nil)

// Send queues a frame for the write pump without blocking.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close asks the write pump to send a close frame and hang up.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// HandshakeMeta reads the connection parameters from the query string. A user
// id verified by the JWT middleware takes precedence over the query.
func HandshakeMeta(c *gin.Context) (relay.Meta, error) {
	userType, ok := models.ParseUserType(c.Query("userType"))
	if !ok {
		return relay.Meta{}, errors.New("userType must be doctor, patient or unknown")
	}
	meta := relay.Meta{
		UserID:   c.Query("userId"),
		UserType: userType,
		RoomID:   c.Query("roomId"),
	}
	if verified := c.GetString(middleware.ContextUserID); verified != "" {
		meta.UserID = verified
	}
	return meta, nil
}

// Signaling handles WebSocket connections for call signaling
func Signaling(hub *relay.Hub, opts SocketOptions, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta, err := HandshakeMeta(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", zap.Error(err))
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan []byte, opts.SendBuffer),
			done:   make(chan struct{}),
			logger: logger,
		}
		client.ID = hub.Attach(meta, client)

		go client.writePump()
		go client.readPump(hub, opts.MaxMessageBytes)
	}
}

func (c *Client) readPump(hub *relay.Hub, maxMessageBytes int64) {
	defer func() {
		hub.Detach(c.ID)
		c.Close()
		c.conn.Close()
	}()

	if maxMessageBytes > 0 {
		c.conn.SetReadLimit(maxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket error", zap.String("conn", string(c.ID)), zap.Error(err))
			}
			return
		}

		hub.Receive(c.ID, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("failed to write message", zap.String("conn", string(c.ID)), zap.Error(err))
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued before the close frame.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
