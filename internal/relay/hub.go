package relay

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/signal"
)

// Sender is the transport side of a connection. Send must not block; a
// transport that cannot queue the frame returns an error and the hub evicts
// the connection. Close must be safe to call more than once.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// Hub serializes all relay calls under one lock, so each frame is handled to
// completion before the next one, and delivers the resulting outboxes.
type Hub struct {
	mu      sync.Mutex
	relay   *Relay
	senders map[presence.ConnID]Sender
	logger  *zap.Logger
}

// NewHub wraps relay.
func NewHub(relay *Relay, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		relay:   relay,
		senders: make(map[presence.ConnID]Sender),
		logger:  logger,
	}
}

// Attach registers a new connection and returns its id.
func (h *Hub) Attach(meta Meta, s Sender) presence.ConnID {
	id := presence.ConnID(uuid.New().String())

	h.mu.Lock()
	defer h.mu.Unlock()

	h.senders[id] = s
	h.deliver(h.relay.Open(id, meta))
	return id
}

// Receive handles one inbound frame from id.
func (h *Hub) Receive(id presence.ConnID, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Outbound
	func() {
		defer func() {
			if p := recover(); p != nil {
				h.logger.Error("panic handling frame",
					zap.String("conn", string(id)), zap.Any("panic", p))
				out = []Outbound{{To: id, Frame: signal.ErrorFrame(signal.ErrInternal)}}
			}
		}()
		out = h.relay.HandleFrame(id, raw)
	}()
	h.deliver(out)
}

// Detach runs the cleanup pass for id. Transports call it from both their
// close and error paths; repeated calls are no-ops.
func (h *Hub) Detach(id presence.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(h.detach(id))
}

func (h *Hub) detach(id presence.ConnID) []Outbound {
	delete(h.senders, id)
	return h.relay.Close(id)
}

// deliver sends every outbound frame. A failed send evicts that recipient and
// the remaining frames still go out.
func (h *Hub) deliver(out []Outbound) {
	for i := 0; i < len(out); i++ {
		o := out[i]
		s, ok := h.senders[o.To]
		if !ok {
			continue
		}
		if o.Frame != nil {
			if err := s.Send(o.Frame); err != nil {
				h.logger.Info("send failed, evicting connection",
					zap.String("conn", string(o.To)), zap.Error(err))
				_ = s.Close()
				out = append(out, h.detach(o.To)...)
				continue
			}
		}
		if o.Close {
			delete(h.senders, o.To)
			_ = s.Close()
		}
	}
}

// Stats reports registry and connection counts.
func (h *Hub) Stats() models.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := h.relay.Registry().Stats()
	stats.Connections = h.relay.Len()
	return stats
}

// RoomPresence returns the current members of roomID.
func (h *Hub) RoomPresence(roomID string) models.RoomPresence {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := presence.Members(h.relay.Registry(), roomID)
	return models.RoomPresence{RoomID: roomID, Members: members, Count: len(members)}
}

// UserPresence reports whether userID is connected and where.
func (h *Hub) UserPresence(userID string) models.UserPresence {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.relay.Registry().LookupUser(userID)
	if !ok {
		return models.UserPresence{UserID: userID}
	}
	return models.UserPresence{UserID: userID, Online: true, UserType: c.UserType, RoomID: c.RoomID}
}

// Shutdown closes every connection and clears the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.senders {
		_ = s.Close()
		h.detach(id)
	}
}
