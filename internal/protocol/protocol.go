// Package protocol defines the wire vocabulary: event names and the JSON
// payload shapes exchanged with clients. Every message travels inside an
// Envelope.
package protocol

import (
	"encoding/json"

	"quizsync/internal/rooms"
)

// Inbound event names (client to server). Disconnect is synthesized by the
// transport when an endpoint goes away.
const (
	EventClientReady       = "client_ready"
	EventChangeRoom        = "change_room"
	EventPlayerScored      = "player_scored"
	EventRequestFinalScore = "request_final_score"
	EventDisconnect        = "disconnect"
)

// Outbound event names (server to client).
const (
	EventClientConfirmed     = "client_confirmed"
	EventErrClientReady      = "error_client_ready"
	EventErrUnrecognized     = "error_unrecognized_player"
	EventErrPlayerScored     = "error_player_scored"
	EventGamerEnteredRoom    = "gamer_entered_room"
	EventGamerExitedRoom     = "gamer_exited_room"
	EventGamersAlreadyInRoom = "gamers_already_in_room"
	EventRoundStarted        = "round_started"
	EventRoundEnded          = "round_ended"
	EventPlayTimerUpdate     = "play_timer_update"
	EventLobbyTimerUpdate    = "lobby_timer_update"
	EventRoomRoundResults    = "room_round_results"
	EventFinalRoundScore     = "final_round_score"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an Envelope before encoding.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Profile is the client-supplied identity: an optional display tag and the
// requested difficulty level. Room stays untyped until validated because
// clients send it as either a JSON string or a number.
type Profile struct {
	Tag  string `json:"tag"`
	Room any    `json:"room"`
}

// ClientReady and ChangeRoom both carry a profile.
type ClientReady struct {
	Profile *Profile `json:"profile"`
}

// PlayerScored reports the client's current score total. Points is a
// pointer so a missing field is distinguishable from zero.
type PlayerScored struct {
	Points *int `json:"points"`
}

// Score is one scoreboard row.
type Score struct {
	Tag    string `json:"tag"`
	Points int    `json:"points"`
}

// ClientConfirmed echoes the full player record on successful attach.
type ClientConfirmed struct {
	Tag             string   `json:"tag"`
	Points          int      `json:"points"`
	Room            rooms.ID `json:"room"`
	IncompleteRound bool     `json:"incomplete_round"`
	RefCount        int      `json:"ref_count"`
}

// GamerExited announces a departure to the remaining room members.
type GamerExited struct {
	Tag string `json:"tag"`
}

// GamersInRoom lists everyone currently in the room, the joiner included.
type GamersInRoom struct {
	Leaders []Score `json:"leaders"`
}

// PlayTimerUpdate is the per-second play broadcast: seconds of play left
// and the room scoreboard sorted descending by points.
type PlayTimerUpdate struct {
	TimeRemaining int     `json:"time_remaining"`
	Leaders       []Score `json:"leaders"`
}

// FinalRoundScore answers request_final_score.
type FinalRoundScore struct {
	Points        int  `json:"points"`
	RoundComplete bool `json:"round_complete"`
}

// ErrorInfo is the payload of every error event.
type ErrorInfo struct {
	ErrorStr  string `json:"error_str"`
	UserInput any    `json:"user_input,omitempty"`
}
