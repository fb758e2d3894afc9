// Package presence tracks which connections are live and which room each one
// belongs to.
package presence

import (
	"sort"
	"sync"

	"github.com/mossy-p/call-signaling/internal/models"
)

// ConnID identifies a live connection. Transports own the socket behind it.
type ConnID string

// Conn is the metadata bound to one live connection.
type Conn struct {
	ID       ConnID
	UserID   string
	UserType models.UserType
	RoomID   string
}

// Member returns the public view of c.
func (c *Conn) Member() models.Member {
	return models.Member{UserID: c.UserID, UserType: c.UserType}
}

// Registry is the presence store the router reads and the lifecycle manager
// writes. Connections are compared by pointer.
type Registry interface {
	// RegisterUser binds userID to c, replacing any other connection
	// registered under the same id. The replaced connection is returned.
	RegisterUser(userID string, c *Conn) (replaced *Conn)
	// RegisterRoomMember adds c to roomID, leaving any room it was in.
	RegisterRoomMember(roomID string, c *Conn)
	// LeaveRoom removes c from its room and clears c.RoomID.
	LeaveRoom(c *Conn)
	// Unregister removes every entry referencing c. Safe to call repeatedly.
	Unregister(c *Conn)
	LookupUser(userID string) (*Conn, bool)
	// LookupRoom returns a snapshot of the room's members.
	LookupRoom(roomID string) []*Conn
	Stats() models.Stats
}

var _ Registry = (*Memory)(nil)

// Memory is the in-process Registry.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*Conn
	rooms map[string]map[*Conn]struct{}
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*Conn),
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

func (m *Memory) RegisterUser(userID string, c *Conn) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.UserID != "" && c.UserID != userID && m.users[c.UserID] == c {
		delete(m.users, c.UserID)
	}
	c.UserID = userID

	prev, ok := m.users[userID]
	m.users[userID] = c
	if ok && prev != c {
		return prev
	}
	return nil
}

func (m *Memory) RegisterRoomMember(roomID string, c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.RoomID != "" && c.RoomID != roomID {
		m.removeFromRoom(c)
	}
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[*Conn]struct{})
		m.rooms[roomID] = members
	}
	members[c] = struct{}{}
	c.RoomID = roomID
}

func (m *Memory) LeaveRoom(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeFromRoom(c)
	c.RoomID = ""
}

func (m *Memory) Unregister(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A newer connection for the same user keeps its entry.
	if c.UserID != "" && m.users[c.UserID] == c {
		delete(m.users, c.UserID)
	}
	m.removeFromRoom(c)
}

// removeFromRoom drops c from its room set and the set itself once empty.
func (m *Memory) removeFromRoom(c *Conn) {
	members, ok := m.rooms[c.RoomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(m.rooms, c.RoomID)
	}
}

func (m *Memory) LookupUser(userID string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.users[userID]
	return c, ok
}

func (m *Memory) LookupRoom(roomID string) []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[roomID]
	out := make([]*Conn, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func (m *Memory) Stats() models.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[*Conn]struct{}, len(m.users))
	for _, c := range m.users {
		seen[c] = struct{}{}
	}
	for _, members := range m.rooms {
		for c := range members {
			seen[c] = struct{}{}
		}
	}
	return models.Stats{Rooms: len(m.rooms), Users: len(m.users), Connections: len(seen)}
}

// Members returns the room's members sorted by user id.
func Members(r Registry, roomID string) []models.Member {
	conns := r.LookupRoom(roomID)
	out := make([]models.Member, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Member())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
