package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/internal/models"
)

// Mirror receives room membership changes so they can be published to a
// store shared with other processes. The in-memory Registry stays
// authoritative for routing.
type Mirror interface {
	Joined(roomID string, m models.Member)
	Left(roomID, userID string)
}

// NopMirror discards every change.
type NopMirror struct{}

func (NopMirror) Joined(string, models.Member) {}
func (NopMirror) Left(string, string)          {}

const (
	opJoined = iota
	opLeft
)

type mirrorOp struct {
	kind   int
	roomID string
	member models.Member
}

// RedisMirror keeps one hash per room (userId -> userType) in Redis. Writes
// happen on a background goroutine so routing never waits on the network.
type RedisMirror struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	ops    chan mirrorOp
	wg     sync.WaitGroup
}

var _ Mirror = (*RedisMirror)(nil)

// NewRedisMirror starts the writer goroutine. Call Close to drain it.
func NewRedisMirror(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	m := &RedisMirror{
		client:  client,
		ttl:     ttl,
		timeout: 2 * time.Second,
		logger:  logger,
		ops:     make(chan mirrorOp, 1024),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func roomKey(roomID string) string {
	return "room:" + roomID + ":members"
}

func (m *RedisMirror) Joined(roomID string, member models.Member) {
	m.enqueue(mirrorOp{kind: opJoined, roomID: roomID, member: member})
}

func (m *RedisMirror) Left(roomID, userID string) {
	m.enqueue(mirrorOp{kind: opLeft, roomID: roomID, member: models.Member{UserID: userID}})
}

func (m *RedisMirror) enqueue(op mirrorOp) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.ops <- op:
	default:
		m.logger.Warn("presence mirror queue full, dropping update",
			zap.String("room", op.roomID), zap.String("user", op.member.UserID))
	}
}

func (m *RedisMirror) run() {
	defer m.wg.Done()
	for op := range m.ops {
		if err := m.apply(op); err != nil {
			m.logger.Warn("presence mirror write failed",
				zap.String("room", op.roomID), zap.String("user", op.member.UserID), zap.Error(err))
		}
	}
}

func (m *RedisMirror) apply(op mirrorOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	key := roomKey(op.roomID)
	switch op.kind {
	case opJoined:
		pipe := m.client.TxPipeline()
		pipe.HSet(ctx, key, op.member.UserID, string(op.member.UserType))
		pipe.Expire(ctx, key, m.ttl)
		_, err := pipe.Exec(ctx)
		return err
	default:
		return m.client.HDel(ctx, key, op.member.UserID).Err()
	}
}

// Members reads a room's mirrored membership, sorted by user id.
func (m *RedisMirror) Members(ctx context.Context, roomID string) ([]models.Member, error) {
	entries, err := m.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Member, 0, len(entries))
	for userID, userType := range entries {
		out = append(out, models.Member{UserID: userID, UserType: models.UserType(userType)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Close stops accepting updates and waits for queued writes to finish.
func (m *RedisMirror) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.ops)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
