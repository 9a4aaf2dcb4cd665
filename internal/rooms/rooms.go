// Package rooms tracks which sessions are joined to which difficulty room.
//
// Rooms are addressed everywhere by ID, a string form of the difficulty
// level ("0".."3"). The transport layer treats a zero integer key as "all
// connections", so a raw int must never reach a fan-out call site; the
// distinct string type makes that unrepresentable.
package rooms

import (
	"strconv"
	"sync"
)

// ID is the wire-level room key.
type ID string

// FromLevel renders a difficulty level as a room key.
func FromLevel(level int) ID {
	return ID(strconv.Itoa(level))
}

// Manager holds per-room membership. There is a fixed set of rooms, created
// up front; sessions join and leave but rooms never come or go.
type Manager struct {
	mu      sync.Mutex
	members map[ID]map[string]struct{}
	ids     []ID
}

func NewManager(minRoom, numRooms int) *Manager {
	m := &Manager{
		members: make(map[ID]map[string]struct{}, numRooms),
		ids:     make([]ID, 0, numRooms),
	}
	for level := minRoom; level < minRoom+numRooms; level++ {
		id := FromLevel(level)
		m.members[id] = make(map[string]struct{})
		m.ids = append(m.ids, id)
	}
	return m
}

// IDs lists every room in level order.
func (m *Manager) IDs() []ID {
	return m.ids
}

// Join adds a session to a room.
func (m *Manager) Join(sessionID string, room ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.members[room]; ok {
		set[sessionID] = struct{}{}
	}
}

// Leave removes a session from a room.
func (m *Manager) Leave(sessionID string, room ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.members[room]; ok {
		delete(set, sessionID)
	}
}

// Occupancy reports how many sessions are joined to a room.
func (m *Manager) Occupancy(room ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[room])
}

// Members snapshots the sessions currently joined to a room.
func (m *Manager) Members(room ID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.members[room]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
