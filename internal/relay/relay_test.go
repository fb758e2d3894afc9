package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/presence"
)

type recordingMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMirror) Joined(roomID string, member models.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "join "+roomID+" "+member.UserID+" "+string(member.UserType))
}

func (m *recordingMirror) Left(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "leave "+roomID+" "+userID)
}

func recipients(out []Outbound) []presence.ConnID {
	var ids []presence.ConnID
	for _, o := range out {
		ids = append(ids, o.To)
	}
	return ids
}

func TestRelay_OutboxAddressesRoomPeers(t *testing.T) {
	r := New(Options{})

	assert.Empty(t, r.Open("doc", meta("doc1", models.UserTypeDoctor, "room-42")))
	assert.Equal(t, []presence.ConnID{"doc"}, recipients(r.Open("pat", meta("pat1", models.UserTypePatient, "room-42"))))

	out := r.HandleFrame("pat", []byte(`{"type":"answer","data":{"sdp":"v=0"}}`))
	require.Len(t, out, 1)
	assert.Equal(t, presence.ConnID("doc"), out[0].To)
	assert.False(t, out[0].Close)
	assert.JSONEq(t, `{"type":"answer","fromUserId":"pat1","roomId":"room-42","data":{"sdp":"v=0"}}`, string(out[0].Frame))
}

func TestRelay_CloseRunsOnce(t *testing.T) {
	r := New(Options{})
	r.Open("doc", meta("doc1", models.UserTypeDoctor, "room-42"))
	r.Open("pat", meta("pat1", models.UserTypePatient, "room-42"))

	first := r.Close("pat")
	assert.Equal(t, []presence.ConnID{"doc"}, recipients(first))
	assert.Empty(t, r.Close("pat"))
	assert.Empty(t, r.HandleFrame("pat", []byte(`{"type":"offer"}`)))

	_, ok := r.Conn("pat")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRelay_RejectionHasNoSideEffects(t *testing.T) {
	r := New(Options{})
	r.Open("doc", meta("doc1", models.UserTypeDoctor, "room-42"))
	r.Open("pat", meta("pat1", models.UserTypePatient, "room-42"))
	before := r.Registry().Stats()

	out := r.HandleFrame("doc", []byte(`{"type":"join","roomId":"room-7","data":{"userType":"surgeon"}}`))

	require.Len(t, out, 1)
	assert.Equal(t, presence.ConnID("doc"), out[0].To)
	assert.JSONEq(t, `{"type":"error","error":"invalid-user-type","reason":"invalid user type: \"surgeon\""}`, string(out[0].Frame))
	assert.Equal(t, before, r.Registry().Stats())
	c, _ := r.Conn("doc")
	assert.Equal(t, "room-42", c.RoomID)
}

func TestRelay_MirrorFollowsMembership(t *testing.T) {
	mirror := &recordingMirror{}
	r := New(Options{Mirror: mirror})

	r.Open("doc", meta("doc1", models.UserTypeDoctor, "room-42"))
	r.Open("anon", Meta{RoomID: "room-42"})
	r.HandleFrame("doc", []byte(`{"type":"join","roomId":"room-43"}`))
	r.Close("doc")

	assert.Equal(t, []string{
		"join room-42 doc1 doctor",
		"leave room-42 doc1",
		"join room-43 doc1 doctor",
		"leave room-43 doc1",
	}, mirror.events)
}

func TestRelay_ReplacedConnectionIsClosed(t *testing.T) {
	r := New(Options{})
	r.Open("old", meta("doc1", models.UserTypeDoctor, ""))

	out := r.Open("new", meta("doc1", models.UserTypeDoctor, ""))

	require.Len(t, out, 1)
	assert.Equal(t, presence.ConnID("old"), out[0].To)
	assert.True(t, out[0].Close)

	c, ok := r.Registry().LookupUser("doc1")
	require.True(t, ok)
	assert.Equal(t, presence.ConnID("new"), c.ID)
}
