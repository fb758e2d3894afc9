package signal

import (
	"encoding/json"
	"errors"

	"github.com/mossy-p/call-signaling/internal/models"
)

// Rejections reported back to the sender. Each maps to a wire code via Code.
var (
	ErrBadJSON          = errors.New("frame is not a JSON object")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMissingSender    = errors.New("sender has no user id")
	ErrMissingRoom      = errors.New("message requires a room")
	ErrMissingRecipient = errors.New("message requires a recipient")
	ErrInvalidUserType  = errors.New("invalid user type")
	ErrInvalidData      = errors.New("invalid data payload")
	ErrInternal         = errors.New("internal error")
	ErrReplaced         = errors.New("user connected from another socket")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrBadJSON, "bad-json"},
	{ErrUnknownType, "unknown-type"},
	{ErrMissingSender, "missing-sender"},
	{ErrMissingRoom, "missing-room"},
	{ErrMissingRecipient, "missing-recipient"},
	{ErrInvalidUserType, "invalid-user-type"},
	{ErrInvalidData, "invalid-data"},
	{ErrInternal, "internal"},
	{ErrReplaced, "replaced"},
}

// Code returns the wire error code for err. Errors outside the rejection set
// report as "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorFrame encodes err as the error reply sent to the offending connection.
func ErrorFrame(err error) []byte {
	env := models.Envelope{
		Type:   models.SignalTypeError,
		Error:  Code(err),
		Reason: err.Error(),
	}
	b, merr := json.Marshal(env)
	if merr != nil {
		return []byte(`{"type":"error","error":"internal"}`)
	}
	return b
}
