package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mossy-p/call-signaling/internal/models"
)

type mockSender struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func (m *mockSender) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, frame)
	return nil
}

func (m *mockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSender) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func (m *mockSender) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockSender) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
}

// frames decodes everything the sender received.
func (m *mockSender) frames(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range m.getReceived() {
		var f map[string]any
		require.NoError(t, json.Unmarshal(raw, &f), string(raw))
		out = append(out, f)
	}
	return out
}

// types lists the type field of each received frame.
func (m *mockSender) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range m.frames(t) {
		typ, _ := f["type"].(string)
		out = append(out, typ)
	}
	return out
}

func meta(userID string, userType models.UserType, roomID string) Meta {
	return Meta{UserID: userID, UserType: userType, RoomID: roomID}
}
