// Package players holds the authoritative player record for every confirmed
// session. There is exactly one record per session id; the transport layer
// looks players up here rather than keeping its own copy.
package players

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
)

// Validation errors for the difficulty level carried in a profile. The
// messages are the error_str sent back to the client, checked in this order.
var (
	ErrMissingRequest = errors.New("Missing request data")
	ErrMissingProfile = errors.New("Missing profile")
	ErrMissingRoom    = errors.New("Missing difficulty level")
	ErrNotInteger     = errors.New("Difficulty level is not a number")
	ErrOutOfRange     = errors.New("Difficulty level is out of range")
)

// Player is the per-session record. RefCount counts live transport
// endpoints (browser tabs) bound to the session; the record exists only
// while it is positive.
type Player struct {
	Tag             string
	Room            rooms.ID
	Points          int
	IncompleteRound bool
	RefCount        int
}

// Registry maps session ids to player records.
type Registry struct {
	minRoom  int
	numRooms int

	mu       sync.Mutex
	players  map[string]*Player
	guestSeq int
}

func NewRegistry(minRoom, numRooms int) *Registry {
	return &Registry{
		minRoom:  minRoom,
		numRooms: numRooms,
		players:  make(map[string]*Player),
	}
}

// DetermineRoom validates the difficulty level in a profile and returns it
// as an integer level. The profile's room may arrive as a JSON string or
// number; anything that does not parse to an in-range integer is rejected.
func (r *Registry) DetermineRoom(p *protocol.Profile) (int, error) {
	if p == nil {
		return 0, ErrMissingProfile
	}
	if p.Room == nil {
		return 0, ErrMissingRoom
	}

	var level int
	switch v := p.Room.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, ErrNotInteger
		}
		level = n
	case float64:
		if v != float64(int(v)) {
			return 0, ErrNotInteger
		}
		level = int(v)
	default:
		return 0, ErrNotInteger
	}

	if level < r.minRoom || level >= r.minRoom+r.numRooms {
		return 0, ErrOutOfRange
	}
	return level, nil
}

// ResolveTag returns the display tag for a profile, synthesizing a guest
// name when the client supplied none. The guest counter advances on every
// synthesis.
func (r *Registry) ResolveTag(tag string) string {
	if strings.TrimSpace(tag) != "" {
		return tag
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guestSeq++
	return fmt.Sprintf("Guest %d", r.guestSeq)
}

// Attach binds one more endpoint to a session. An existing record just
// gains a reference; otherwise a fresh player is created with the given tag
// and room. Reports whether the session was already connected.
func (r *Registry) Attach(sessionID, tag string, room rooms.ID, incompleteRound bool) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.RefCount++
		return p, true
	}
	p := &Player{
		Tag:             tag,
		Room:            room,
		IncompleteRound: incompleteRound,
		RefCount:        1,
	}
	r.players[sessionID] = p
	return p, false
}

// Detach drops one endpoint reference. The record is removed at the
// decrement that takes it to zero; the removed player is returned so the
// caller can announce the exit. Absent sessions are a no-op.
func (r *Registry) Detach(sessionID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[sessionID]
	if !ok {
		return nil, false
	}
	p.RefCount--
	if p.RefCount > 0 {
		return p, false
	}
	delete(r.players, sessionID)
	return p, true
}

// Get looks up the player bound to a session, if any.
func (r *Registry) Get(sessionID string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[sessionID]
}

// SetRoom moves a player's room field. Membership is the room manager's
// concern; this only updates the record.
func (r *Registry) SetRoom(sessionID string, room rooms.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.Room = room
	}
}

// SetPoints overwrites a player's score with the client-reported total.
func (r *Registry) SetPoints(sessionID string, points int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.Points = points
	}
}

// MarkIncomplete flags a player as not having experienced the full round.
func (r *Registry) MarkIncomplete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[sessionID]; ok {
		p.IncompleteRound = true
	}
}

// ResetForPlay zeroes every score and clears every incomplete-round flag,
// performed at the instant a round begins.
func (r *Registry) ResetForPlay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		p.Points = 0
		p.IncompleteRound = false
	}
}

// Scoreboard snapshots (tag, points) for every player currently in a room.
// Order is unspecified; callers sort.
func (r *Registry) Scoreboard(room rooms.ID) []protocol.Score {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Score
	for _, p := range r.players {
		if p.Room == room {
			out = append(out, protocol.Score{Tag: p.Tag, Points: p.Points})
		}
	}
	return out
}

// Count reports the number of registered players.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}
