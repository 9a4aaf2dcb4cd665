package game

import (
	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
)

// delivery is one message observed at one session.
type delivery struct {
	Session string
	Event   string
	Payload any
}

// recorderBus resolves room fan-out against the real membership manager, so
// tests observe exactly what a session would receive; global broadcasts are
// recorded once.
type recorderBus struct {
	rm     *rooms.Manager
	sent   []delivery
	global []delivery
}

func (b *recorderBus) EmitTo(sessionID, event string, payload any) {
	b.sent = append(b.sent, delivery{sessionID, event, payload})
}

func (b *recorderBus) ToRoom(room rooms.ID, event string, payload any) {
	for _, id := range b.rm.Members(room) {
		b.sent = append(b.sent, delivery{id, event, payload})
	}
}

func (b *recorderBus) ToRoomExcept(room rooms.ID, senderID, event string, payload any) {
	for _, id := range b.rm.Members(room) {
		if id != senderID {
			b.sent = append(b.sent, delivery{id, event, payload})
		}
	}
}

func (b *recorderBus) All(event string, payload any) {
	b.global = append(b.global, delivery{"", event, payload})
}

func (b *recorderBus) reset() {
	b.sent = nil
	b.global = nil
}

// eventsAt lists the events delivered to one session, in order.
func (b *recorderBus) eventsAt(sessionID string) []string {
	var out []string
	for _, d := range b.sent {
		if d.Session == sessionID {
			out = append(out, d.Event)
		}
	}
	return out
}

// payloadAt finds the first payload of an event at a session.
func (b *recorderBus) payloadAt(sessionID, event string) (any, bool) {
	for _, d := range b.sent {
		if d.Session == sessionID && d.Event == event {
			return d.Payload, true
		}
	}
	return nil, false
}

// globalEvent finds the first global broadcast of an event.
func (b *recorderBus) globalEvent(event string) (any, bool) {
	for _, d := range b.global {
		if d.Event == event {
			return d.Payload, true
		}
	}
	return nil, false
}

// countEvent counts per-session deliveries of an event across all sessions.
func (b *recorderBus) countEvent(event string) int {
	n := 0
	for _, d := range b.sent {
		if d.Event == event {
			n++
		}
	}
	return n
}

// leadersOf extracts the scoreboard rows from a recorded payload.
func leadersOf(payload any) []protocol.Score {
	switch p := payload.(type) {
	case protocol.PlayTimerUpdate:
		return p.Leaders
	case protocol.GamersInRoom:
		return p.Leaders
	case []protocol.Score:
		return p
	default:
		return nil
	}
}
