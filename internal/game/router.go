package game

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"quizsync/internal/players"
	"quizsync/internal/protocol"
	"quizsync/internal/rooms"
)

// Dispatch routes one inbound message. All validation happens before any
// state change, and every error is answered on the originating session
// only; nothing a client sends can take the server down.
func (c *Core) Dispatch(sessionID string, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventClientReady:
		c.handleClientReady(sessionID, env.Data)
	case protocol.EventChangeRoom:
		c.handleChangeRoom(sessionID, env.Data)
	case protocol.EventPlayerScored:
		c.handlePlayerScored(sessionID, env.Data)
	case protocol.EventRequestFinalScore:
		c.handleRequestFinalScore(sessionID)
	case protocol.EventDisconnect:
		c.HandleDisconnect(sessionID)
	default:
		log.Warn().Str("session", sessionID).Str("event", env.Event).Msg("unknown event")
	}
}

func (c *Core) handleClientReady(sessionID string, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, profile, err := decodeProfile(raw)
	var level int
	if err == nil {
		level, err = c.registry.DetermineRoom(profile)
	}
	if err != nil {
		c.bus.EmitTo(sessionID, protocol.EventErrClientReady, protocol.ErrorInfo{
			ErrorStr:  err.Error(),
			UserInput: req,
		})
		return
	}

	// Another tab on a live session: one more reference, nothing else.
	if c.registry.Get(sessionID) != nil {
		c.registry.Attach(sessionID, "", "", false)
		log.Debug().Str("session", sessionID).Msg("additional endpoint on existing session")
		return
	}

	tag := c.registry.ResolveTag(profile.Tag)
	room := rooms.FromLevel(level)
	player, _ := c.registry.Attach(sessionID, tag, room, c.roundInProgress)

	c.bus.EmitTo(sessionID, protocol.EventClientConfirmed, protocol.ClientConfirmed{
		Tag:             player.Tag,
		Points:          player.Points,
		Room:            player.Room,
		IncompleteRound: player.IncompleteRound,
		RefCount:        player.RefCount,
	})

	c.rooms.Join(sessionID, room)
	c.bus.ToRoomExcept(room, sessionID, protocol.EventGamerEnteredRoom,
		protocol.Score{Tag: player.Tag, Points: player.Points})
	c.bus.EmitTo(sessionID, protocol.EventGamersAlreadyInRoom,
		protocol.GamersInRoom{Leaders: c.scoreboard(room)})
	c.syncRound(sessionID, room)

	log.Info().Str("session", sessionID).Str("tag", tag).Str("room", string(room)).Msg("player joined")
}

func (c *Core) handleChangeRoom(sessionID string, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	player := c.registry.Get(sessionID)
	if player == nil {
		c.unrecognized(sessionID)
		return
	}

	req, profile, err := decodeProfile(raw)
	var level int
	if err == nil {
		level, err = c.registry.DetermineRoom(profile)
	}
	if err != nil {
		c.bus.EmitTo(sessionID, protocol.EventErrClientReady, protocol.ErrorInfo{
			ErrorStr:  err.Error(),
			UserInput: req,
		})
		return
	}

	newRoom := rooms.FromLevel(level)
	oldRoom := player.Room
	if newRoom == oldRoom {
		return
	}

	c.rooms.Leave(sessionID, oldRoom)
	c.bus.ToRoom(oldRoom, protocol.EventGamerExitedRoom, protocol.GamerExited{Tag: player.Tag})

	c.registry.SetRoom(sessionID, newRoom)
	c.rooms.Join(sessionID, newRoom)
	c.bus.ToRoomExcept(newRoom, sessionID, protocol.EventGamerEnteredRoom,
		protocol.Score{Tag: player.Tag, Points: player.Points})
	c.bus.EmitTo(sessionID, protocol.EventGamersAlreadyInRoom,
		protocol.GamersInRoom{Leaders: c.scoreboard(newRoom)})

	// Same bundle a disconnect-then-rejoin would see: the results shown are
	// the room just left, a last look before the next round overwrites them.
	c.syncRound(sessionID, oldRoom)

	log.Info().Str("session", sessionID).Str("from", string(oldRoom)).Str("to", string(newRoom)).Msg("player changed room")
}

// HandleDisconnect is fed by the transport when an endpoint goes away.
// Sessions with no attached player return silently.
func (c *Core) HandleDisconnect(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.Get(sessionID) == nil {
		return
	}
	player, removed := c.registry.Detach(sessionID)
	if !removed {
		log.Debug().Str("session", sessionID).Int("ref_count", player.RefCount).Msg("endpoint closed, session still live")
		return
	}

	c.rooms.Leave(sessionID, player.Room)
	c.bus.ToRoom(player.Room, protocol.EventGamerExitedRoom, protocol.GamerExited{Tag: player.Tag})
	log.Info().Str("session", sessionID).Str("tag", player.Tag).Msg("player left")
}

func (c *Core) handlePlayerScored(sessionID string, raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registry.Get(sessionID) == nil {
		c.unrecognized(sessionID)
		return
	}

	var req protocol.PlayerScored
	if len(raw) == 0 || json.Unmarshal(raw, &req) != nil || req.Points == nil {
		var userInput any
		_ = json.Unmarshal(raw, &userInput)
		c.bus.EmitTo(sessionID, protocol.EventErrPlayerScored, protocol.ErrorInfo{
			ErrorStr:  "Missing points",
			UserInput: userInput,
		})
		return
	}

	if !c.roundInProgress {
		// Scores are frozen between rounds.
		log.Debug().Str("session", sessionID).Int("points", *req.Points).Msg("score ignored in lobby")
		return
	}
	c.registry.SetPoints(sessionID, *req.Points)
}

func (c *Core) handleRequestFinalScore(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	player := c.registry.Get(sessionID)
	if player == nil {
		c.unrecognized(sessionID)
		return
	}
	if c.roundInProgress {
		// Asking mid-round forfeits round completion.
		c.registry.MarkIncomplete(sessionID)
	}
	c.bus.EmitTo(sessionID, protocol.EventFinalRoundScore, protocol.FinalRoundScore{
		Points:        player.Points,
		RoundComplete: !player.IncompleteRound,
	})
}

func (c *Core) unrecognized(sessionID string) {
	c.bus.EmitTo(sessionID, protocol.EventErrUnrecognized, protocol.ErrorInfo{
		ErrorStr: "Unrecognized player",
	})
}

// decodeProfile unwraps the { profile: {...} } request body. The decoded
// request is returned for error echoes even when validation fails.
func decodeProfile(raw json.RawMessage) (any, *protocol.Profile, error) {
	if len(raw) == 0 {
		return nil, nil, players.ErrMissingRequest
	}
	var userInput any
	_ = json.Unmarshal(raw, &userInput)

	var req protocol.ClientReady
	if err := json.Unmarshal(raw, &req); err != nil {
		return userInput, nil, players.ErrMissingRequest
	}
	return userInput, req.Profile, nil
}
