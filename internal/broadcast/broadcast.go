// Package broadcast is the targeted fan-out layer: unicast to a session,
// to a room, to a room minus the sender, or to everyone. Room membership is
// snapshotted before any writes and empty rooms are suppressed outright, so
// fan-out never reaches further than the membership said it should.
package broadcast

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
	"quizsync/internal/wshub"
)

type Bus struct {
	hub   *wshub.Hub
	rooms *rooms.Manager
}

func NewBus(hub *wshub.Hub, rm *rooms.Manager) *Bus {
	return &Bus{hub: hub, rooms: rm}
}

// EmitTo sends one event to a single session.
func (b *Bus) EmitTo(sessionID, event string, payload any) {
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	b.hub.Send([]string{sessionID}, data)
}

// ToRoom sends to every session joined to the room. Empty rooms send
// nothing.
func (b *Bus) ToRoom(room rooms.ID, event string, payload any) {
	members := b.rooms.Members(room)
	if len(members) == 0 {
		return
	}
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	b.hub.Send(members, data)
}

// ToRoomExcept sends to every session in the room but the originator.
func (b *Bus) ToRoomExcept(room rooms.ID, senderID, event string, payload any) {
	members := b.rooms.Members(room)
	targets := members[:0]
	for _, id := range members {
		if id != senderID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return
	}
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	b.hub.Send(targets, data)
}

// All sends to every connected session.
func (b *Bus) All(event string, payload any) {
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	b.hub.SendAll(data)
}

func encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(protocol.Outbound{Event: event, Data: payload})
	if err != nil {
		log.Error().Str("event", event).Err(err).Msg("marshal failed")
		return nil, false
	}
	return data, true
}
