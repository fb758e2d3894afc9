package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mossy-p/call-signaling/internal/models"
)

// Sender is the metadata bound to the connection a frame arrived on.
type Sender struct {
	UserID string
	RoomID string
}

// Class groups message types by how they are routed.
type Class int

const (
	ClassUnknown Class = iota
	ClassJoin
	ClassLeave
	ClassRoom
	ClassDirect
	ClassNotice
)

// Classify reports the routing class of t.
func Classify(t models.SignalType) Class {
	switch t {
	case models.SignalTypeJoin:
		return ClassJoin
	case models.SignalTypeLeave:
		return ClassLeave
	case models.SignalTypeOffer, models.SignalTypeAnswer,
		models.SignalTypeCandidate, models.SignalTypeCandidateShort:
		return ClassRoom
	case models.SignalTypeInvite, models.SignalTypeAccept, models.SignalTypeDecline,
		models.SignalTypeCancel, models.SignalTypeEnd,
		models.SignalTypeCallInit, models.SignalTypeCallEnd:
		return ClassDirect
	case models.SignalTypeUserJoined, models.SignalTypeUserLeft, models.SignalTypeError:
		return ClassNotice
	}
	return ClassUnknown
}

// Decode parses a raw text frame into an envelope.
func Decode(raw []byte) (*models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	return &env, nil
}

// Stamp overwrites the identity fields a client cannot be trusted with. The
// sender id always comes from the connection. Room traffic is pinned to the
// connection's room; a join may name a new room.
func Stamp(env *models.Envelope, s Sender) {
	env.From = s.UserID
	env.FromUserID = ""
	switch Classify(env.Type) {
	case ClassJoin:
		if env.RoomID == "" {
			env.RoomID = s.RoomID
		}
	case ClassLeave, ClassRoom:
		env.RoomID = s.RoomID
	}
}

// Validate checks a candidate envelope and returns the typed message it
// carries. It never panics; every failure is one of the package's errors.
func Validate(env *models.Envelope) (models.Message, error) {
	if env == nil {
		return nil, ErrBadJSON
	}
	class := Classify(env.Type)
	if class == ClassUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if class == ClassJoin {
		return validateJoin(env)
	}
	if env.From == "" {
		return nil, ErrMissingSender
	}

	switch class {
	case ClassLeave:
		if env.RoomID == "" {
			return nil, ErrMissingRoom
		}
		return models.NewLeave(env, env.RoomID), nil
	case ClassRoom:
		if env.RoomID == "" {
			return nil, ErrMissingRoom
		}
		return models.NewSignal(env, env.RoomID), nil
	case ClassDirect:
		to := env.ToUserID
		if to == "" {
			to = env.To
		}
		if to == "" {
			return nil, fmt.Errorf("%w: toUserId is required for %s", ErrMissingRecipient, env.Type)
		}
		return models.NewDirect(env, to, env.CallID), nil
	default:
		return models.NewNotice(env), nil
	}
}

// joinData is the shape accepted in a join's data payload.
type joinData struct {
	UserID   *string `json:"userId"`
	UserType *string `json:"userType"`
}

func validateJoin(env *models.Envelope) (models.Message, error) {
	var data joinData
	if len(env.Data) > 0 {
		if !bytes.HasPrefix(bytes.TrimSpace(env.Data), []byte("{")) {
			return nil, fmt.Errorf("%w: join data must be an object", ErrInvalidData)
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field == "userType" {
				return nil, fmt.Errorf("%w: %v", ErrInvalidUserType, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	}

	userID := env.From
	if userID == "" {
		userID = env.UserID
	}
	if userID == "" && data.UserID != nil {
		userID = *data.UserID
	}
	if userID == "" {
		return nil, ErrMissingSender
	}
	if env.RoomID == "" {
		return nil, ErrMissingRoom
	}

	raw := env.UserType
	if data.UserType != nil {
		raw = *data.UserType
	}
	userType, ok := models.ParseUserType(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserType, raw)
	}
	return models.NewJoin(env, env.RoomID, userID, userType), nil
}

// Parse decodes, stamps and validates a raw frame from s.
func Parse(raw []byte, s Sender) (models.Message, error) {
	env, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	Stamp(env, s)
	return Validate(env)
}
