package models

// Message is a validated signaling message. The concrete types below are the
// only implementations; routing switches over them.
type Message interface {
	Kind() SignalType
	Envelope() *Envelope
	message()
}

type base struct {
	env *Envelope
}

func (b base) Kind() SignalType    { return b.env.Type }
func (b base) Envelope() *Envelope { return b.env }
func (base) message()              {}

// Join binds the sender to a room.
type Join struct {
	base
	RoomID   string
	UserID   string
	UserType UserType
}

// Leave removes the sender from its room.
type Leave struct {
	base
	RoomID string
}

// Signal is an offer, answer or ICE candidate broadcast to the sender's room.
type Signal struct {
	base
	RoomID string
}

// Direct is a 1:1 call control message addressed to a single user.
type Direct struct {
	base
	ToUserID string
	CallID   string
}

// Notice is a server-originated type (user-joined, user-left, error) sent by a
// client. It is never forwarded to other connections.
type Notice struct {
	base
}

// NewJoin and friends wrap a validated envelope.
func NewJoin(env *Envelope, roomID, userID string, userType UserType) Join {
	return Join{base: base{env}, RoomID: roomID, UserID: userID, UserType: userType}
}

func NewLeave(env *Envelope, roomID string) Leave {
	return Leave{base: base{env}, RoomID: roomID}
}

func NewSignal(env *Envelope, roomID string) Signal {
	return Signal{base: base{env}, RoomID: roomID}
}

func NewDirect(env *Envelope, toUserID, callID string) Direct {
	return Direct{base: base{env}, ToUserID: toUserID, CallID: callID}
}

func NewNotice(env *Envelope) Notice {
	return Notice{base: base{env}}
}
