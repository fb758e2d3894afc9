package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/models"
)

func newTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisMirror(client, time.Hour, zap.NewNop()), mr
}

func TestRedisMirror_JoinAndLeave(t *testing.T) {
	m, mr := newTestMirror(t)

	m.Joined("room-42", models.Member{UserID: "doc1", UserType: models.UserTypeDoctor})
	m.Joined("room-42", models.Member{UserID: "pat1", UserType: models.UserTypePatient})
	m.Left("room-42", "pat1")
	m.Close()

	members, err := m.Members(context.Background(), "room-42")
	require.NoError(t, err)
	assert.Equal(t, []models.Member{{UserID: "doc1", UserType: models.UserTypeDoctor}}, members)
	assert.Equal(t, time.Hour, mr.TTL("room:room-42:members"))
}

func TestRedisMirror_EmptyRoom(t *testing.T) {
	m, _ := newTestMirror(t)
	defer m.Close()

	members, err := m.Members(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisMirror_UpdatesAfterCloseAreDropped(t *testing.T) {
	m, mr := newTestMirror(t)
	m.Close()

	assert.NotPanics(t, func() {
		m.Joined("room-42", models.Member{UserID: "doc1"})
		m.Close()
	})
	assert.False(t, mr.Exists("room:room-42:members"))
}

func TestNopMirror(t *testing.T) {
	var m Mirror = NopMirror{}
	assert.NotPanics(t, func() {
		m.Joined("r", models.Member{UserID: "u"})
		m.Left("r", "u")
	})
}
