// Package relay routes signaling frames between connections. Relay holds the
// routing and lifecycle rules and returns an outbox of frames to send; Hub
// owns the transport senders and delivers that outbox.
package relay

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/signal"
)

// Outbound is one frame to deliver. When Close is set the transport closes the
// connection after sending Frame (which may be nil).
type Outbound struct {
	To    presence.ConnID
	Frame []byte
	Close bool
}

// Meta is the connection metadata supplied at handshake time.
type Meta struct {
	UserID   string
	UserType models.UserType
	RoomID   string
}

// Options configures a Relay.
type Options struct {
	Registry  presence.Registry
	Mirror    presence.Mirror
	Logger    *zap.Logger
	DebugEcho bool
}

// Relay is not safe for concurrent use; Hub serializes every call.
type Relay struct {
	registry  presence.Registry
	mirror    presence.Mirror
	logger    *zap.Logger
	debugEcho bool
	conns     map[presence.ConnID]*presence.Conn
}

// New creates a relay. Nil options fall back to an in-memory registry, no
// mirror and a no-op logger.
func New(opts Options) *Relay {
	r := &Relay{
		registry:  opts.Registry,
		mirror:    opts.Mirror,
		logger:    opts.Logger,
		debugEcho: opts.DebugEcho,
		conns:     make(map[presence.ConnID]*presence.Conn),
	}
	if r.registry == nil {
		r.registry = presence.NewMemory()
	}
	if r.mirror == nil {
		r.mirror = presence.NopMirror{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Registry exposes the presence store for read-only queries.
func (r *Relay) Registry() presence.Registry {
	return r.registry
}

// Conn returns the metadata bound to id.
func (r *Relay) Conn(id presence.ConnID) (*presence.Conn, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Len reports the number of open connections.
func (r *Relay) Len() int {
	return len(r.conns)
}

// Open registers a freshly upgraded connection. A user id binds it in the
// registry; a room id joins it to that room as if it had sent a join.
func (r *Relay) Open(id presence.ConnID, meta Meta) []Outbound {
	c := &presence.Conn{ID: id, UserType: meta.UserType}
	if c.UserType == "" {
		c.UserType = models.UserTypeUnknown
	}
	r.conns[id] = c

	var out []Outbound
	if meta.UserID != "" {
		out = append(out, r.bindUser(c, meta.UserID)...)
	}
	if meta.RoomID != "" {
		out = append(out, r.enterRoom(c, meta.RoomID)...)
	}

	r.logger.Info("connection opened",
		zap.String("conn", string(id)), zap.String("user", c.UserID), zap.String("room", c.RoomID))
	return out
}

// Close runs the cleanup pass for id. Only the first call has any effect.
func (r *Relay) Close(id presence.ConnID) []Outbound {
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)

	roomID := c.RoomID
	r.registry.Unregister(c)
	r.logger.Info("connection closed",
		zap.String("conn", string(id)), zap.String("user", c.UserID), zap.String("room", roomID))

	if roomID == "" {
		return nil
	}
	return r.announceLeft(c, roomID)
}

// HandleFrame validates one inbound text frame and routes it.
func (r *Relay) HandleFrame(id presence.ConnID, raw []byte) []Outbound {
	c, ok := r.conns[id]
	if !ok {
		return nil
	}

	msg, err := signal.Parse(raw, signal.Sender{UserID: c.UserID, RoomID: c.RoomID})
	if err != nil {
		r.logger.Debug("rejected frame",
			zap.String("conn", string(id)), zap.String("user", c.UserID), zap.Error(err))
		return []Outbound{{To: id, Frame: signal.ErrorFrame(err)}}
	}
	return r.route(c, msg)
}

// route is the dispatch table from message type to outbound sends.
func (r *Relay) route(c *presence.Conn, msg models.Message) []Outbound {
	switch m := msg.(type) {
	case models.Join:
		return r.join(c, m)
	case models.Leave:
		return r.leave(c)
	case models.Signal:
		return r.broadcast(m.RoomID, c, forward(m.Envelope(), c.UserID))
	case models.Direct:
		return r.direct(c, m)
	default:
		// Notices and anything added later never leave the sender.
		if !r.debugEcho {
			return nil
		}
		return []Outbound{{To: c.ID, Frame: encode(*msg.Envelope())}}
	}
}

func (r *Relay) join(c *presence.Conn, m models.Join) []Outbound {
	var out []Outbound
	bound := false
	if c.UserID == "" {
		out = append(out, r.bindUser(c, m.UserID)...)
		bound = true
	}
	if m.UserType != models.UserTypeUnknown {
		c.UserType = m.UserType
	}

	// Rejoining the current room is silent unless this join is what bound
	// the user id; anonymous members were never announced.
	if c.RoomID == m.RoomID {
		if bound {
			return append(out, r.announceJoined(c, m.RoomID)...)
		}
		r.mirror.Joined(m.RoomID, c.Member())
		return out
	}

	if c.RoomID != "" {
		out = append(out, r.leave(c)...)
	}
	return append(out, r.enterRoom(c, m.RoomID)...)
}

func (r *Relay) leave(c *presence.Conn) []Outbound {
	roomID := c.RoomID
	if roomID == "" {
		return nil
	}
	r.registry.LeaveRoom(c)
	return r.announceLeft(c, roomID)
}

func (r *Relay) direct(c *presence.Conn, m models.Direct) []Outbound {
	target, ok := r.registry.LookupUser(m.ToUserID)
	if !ok {
		r.logger.Debug("recipient offline, dropping",
			zap.String("type", string(m.Kind())), zap.String("user", c.UserID), zap.String("to", m.ToUserID))
		return nil
	}
	return []Outbound{{To: target.ID, Frame: forward(m.Envelope(), c.UserID)}}
}

// bindUser registers c under userID. A connection already holding that id is
// told it was replaced, cleaned up and closed.
func (r *Relay) bindUser(c *presence.Conn, userID string) []Outbound {
	replaced := r.registry.RegisterUser(userID, c)
	if replaced == nil {
		return nil
	}
	r.logger.Info("user reconnected, closing previous connection",
		zap.String("user", userID), zap.String("conn", string(replaced.ID)))

	out := []Outbound{{To: replaced.ID, Frame: signal.ErrorFrame(signal.ErrReplaced), Close: true}}
	return append(out, r.Close(replaced.ID)...)
}

func (r *Relay) enterRoom(c *presence.Conn, roomID string) []Outbound {
	r.registry.RegisterRoomMember(roomID, c)
	return r.announceJoined(c, roomID)
}

func (r *Relay) announceJoined(c *presence.Conn, roomID string) []Outbound {
	if c.UserID == "" {
		return nil
	}
	r.mirror.Joined(roomID, c.Member())
	return r.broadcast(roomID, c, encode(models.Envelope{
		Type:     models.SignalTypeUserJoined,
		UserID:   c.UserID,
		UserType: string(c.UserType),
		RoomID:   roomID,
	}))
}

func (r *Relay) announceLeft(c *presence.Conn, roomID string) []Outbound {
	if c.UserID == "" {
		return nil
	}
	r.mirror.Left(roomID, c.UserID)
	return r.broadcast(roomID, c, encode(models.Envelope{
		Type:   models.SignalTypeUserLeft,
		UserID: c.UserID,
		RoomID: roomID,
	}))
}

// broadcast addresses frame to every member of roomID except sender.
func (r *Relay) broadcast(roomID string, sender *presence.Conn, frame []byte) []Outbound {
	var out []Outbound
	for _, member := range r.registry.LookupRoom(roomID) {
		if member == sender {
			continue
		}
		out = append(out, Outbound{To: member.ID, Frame: frame})
	}
	return out
}

// forward stamps the sender's id on env and re-encodes it; the payload and
// any unrecognised fields pass through as received.
func forward(env *models.Envelope, fromUserID string) []byte {
	out := *env
	out.From = ""
	out.FromUserID = fromUserID
	return encode(out)
}

func encode(env models.Envelope) []byte {
	b, err := json.Marshal(env)
	if err != nil {
		return signal.ErrorFrame(signal.ErrInternal)
	}
	return b
}
