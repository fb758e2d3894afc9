package models

import (
	"encoding/json"
	"errors"
)

// SignalType represents the type of a signaling message
type SignalType string

const (
	SignalTypeJoin      SignalType = "join"
	SignalTypeLeave     SignalType = "leave"
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "ice-candidate"
	// SignalTypeCandidateShort is the edge clients' spelling of ice-candidate.
	SignalTypeCandidateShort SignalType = "candidate"

	SignalTypeCallInit SignalType = "call-init"
	SignalTypeCallEnd  SignalType = "call-end"
	SignalTypeInvite   SignalType = "invite"
	SignalTypeAccept   SignalType = "accept"
	SignalTypeDecline  SignalType = "decline"
	SignalTypeCancel   SignalType = "cancel"
	SignalTypeEnd      SignalType = "end"

	SignalTypeUserJoined SignalType = "user-joined"
	SignalTypeUserLeft   SignalType = "user-left"
	SignalTypeError      SignalType = "error"
)

// UserType is the informational role a connection announces.
type UserType string

const (
	UserTypeDoctor  UserType = "doctor"
	UserTypePatient UserType = "patient"
	UserTypeUnknown UserType = "unknown"
)

// ParseUserType maps a wire value to a UserType. An empty value is unknown.
func ParseUserType(s string) (UserType, bool) {
	switch UserType(s) {
	case "":
		return UserTypeUnknown, true
	case UserTypeDoctor, UserTypePatient, UserTypeUnknown:
		return UserType(s), true
	}
	return UserTypeUnknown, false
}

// Envelope is a signaling message as it appears on the wire. Known fields are
// decoded into the typed members; anything else is kept in Extra and written
// back untouched when the envelope is forwarded.
type Envelope struct {
	Type       SignalType
	From       string
	FromUserID string
	To         string
	ToUserID   string
	RoomID     string
	UserID     string
	UserType   string
	CallID     string
	Error      string
	Reason     string
	Data       json.RawMessage
	Extra      map[string]json.RawMessage
}

// Envelope keys with typed members.
const (
	KeyType       = "type"
	KeyFrom       = "from"
	KeyFromUserID = "fromUserId"
	KeyTo         = "to"
	KeyToUserID   = "toUserId"
	KeyRoomID     = "roomId"
	KeyUserID     = "userId"
	KeyUserType   = "userType"
	KeyCallID     = "callId"
	KeyError      = "error"
	KeyReason     = "reason"
	KeyData       = "data"
)

func (e *Envelope) stringFields() map[string]*string {
	return map[string]*string{
		KeyFrom:       &e.From,
		KeyFromUserID: &e.FromUserID,
		KeyTo:         &e.To,
		KeyToUserID:   &e.ToUserID,
		KeyRoomID:     &e.RoomID,
		KeyUserID:     &e.UserID,
		KeyUserType:   &e.UserType,
		KeyCallID:     &e.CallID,
		KeyError:      &e.Error,
		KeyReason:     &e.Reason,
	}
}

// MarshalJSON writes the typed members over the preserved extra fields.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+4)
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.Type != "" {
		b, _ := json.Marshal(string(e.Type))
		out[KeyType] = b
	}
	for k, p := range e.stringFields() {
		if *p == "" {
			continue
		}
		b, _ := json.Marshal(*p)
		out[k] = b
	}
	if len(e.Data) > 0 {
		out[KeyData] = e.Data
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON object. Known keys must hold strings (data may
// hold anything); other keys land in Extra.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if fields == nil {
		return ErrNotObject
	}
	*e = Envelope{}
	typed := e.stringFields()
	for k, v := range fields {
		switch {
		case k == KeyType:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return &FieldError{Field: k, Err: err}
			}
			e.Type = SignalType(s)
		case k == KeyData:
			if string(v) != "null" {
				e.Data = v
			}
		case typed[k] != nil:
			if string(v) == "null" {
				continue
			}
			if err := json.Unmarshal(v, typed[k]); err != nil {
				return &FieldError{Field: k, Err: err}
			}
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]json.RawMessage)
			}
			e.Extra[k] = v
		}
	}
	return nil
}

// ErrNotObject is returned when a frame decodes to JSON null.
var ErrNotObject = errors.New("envelope must be a JSON object")

// FieldError reports an envelope key holding a value of the wrong shape.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return "field " + e.Field + ": " + e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }
