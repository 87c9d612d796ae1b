// Package gameserver implements the session gateway: it binds client
// connections to rooms, translates inbound events into room operations, fans
// results out to the right connections, and owns the disconnect-grace and
// phase-countdown timers.
package gameserver

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/imposter/internal/game/room"
)

// ClientEvent is the closed set of inbound events. Each variant is handled
// by explicit per-variant logic in Gateway.Dispatch, so adding a variant
// without a handler is a compile-visible gap rather than a silent string
// mismatch.
type ClientEvent interface {
	isClientEvent()
}

// CreateRoom asks for a new room with the sender as admin.
type CreateRoom struct {
	Nickname string `json:"nickname"`
}

// JoinRoom joins an existing room by code.
type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

// ReconnectPlayer resumes a previous identity after a dropped connection.
type ReconnectPlayer struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

// StartGame starts the game (admin only).
type StartGame struct{}

// NextPhase advances the room's phase (admin only).
type NextPhase struct{}

// Vote records the sender's vote for a target.
type Vote struct {
	TargetNickname string `json:"targetNickname"`
	VoterNickname  string `json:"voterNickname"`
}

// KickPlayer removes a player from the room (admin only).
type KickPlayer struct {
	Nickname string `json:"nickname"`
}

// RestartGame resets the room to the lobby (admin only).
type RestartGame struct{}

// StopGame aborts the current game (admin only).
type StopGame struct{}

// ToggleTimer overwrites the phase-countdown configuration (admin only).
type ToggleTimer struct {
	Enabled  bool `json:"enabled"`
	Duration int  `json:"duration"`
}

func (CreateRoom) isClientEvent()      {}
func (JoinRoom) isClientEvent()        {}
func (ReconnectPlayer) isClientEvent() {}
func (StartGame) isClientEvent()       {}
func (NextPhase) isClientEvent()       {}
func (Vote) isClientEvent()            {}
func (KickPlayer) isClientEvent()      {}
func (RestartGame) isClientEvent()     {}
func (StopGame) isClientEvent()        {}
func (ToggleTimer) isClientEvent()     {}

// Inbound event type names on the wire.
const (
	TypeCreateRoom      = "create-room"
	TypeJoinRoom        = "join-room"
	TypeReconnectPlayer = "reconnect-player"
	TypeStartGame       = "start-game"
	TypeNextPhase       = "next-phase"
	TypeVote            = "vote"
	TypeKickPlayer      = "kick-player"
	TypeRestartGame     = "restart-game"
	TypeStopGame        = "stop-game"
	TypeToggleTimer     = "toggle-timer"
)

// DecodeClientEvent parses one inbound envelope into its typed variant.
//
// Postcondition: Returns a ClientEvent or an error for an unknown type or
// malformed payload.
func DecodeClientEvent(eventType string, data json.RawMessage) (ClientEvent, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	switch eventType {
	case TypeCreateRoom:
		var ev CreateRoom
		return ev, json.Unmarshal(data, &ev)
	case TypeJoinRoom:
		var ev JoinRoom
		return ev, json.Unmarshal(data, &ev)
	case TypeReconnectPlayer:
		var ev ReconnectPlayer
		return ev, json.Unmarshal(data, &ev)
	case TypeStartGame:
		return StartGame{}, nil
	case TypeNextPhase:
		return NextPhase{}, nil
	case TypeVote:
		var ev Vote
		return ev, json.Unmarshal(data, &ev)
	case TypeKickPlayer:
		var ev KickPlayer
		return ev, json.Unmarshal(data, &ev)
	case TypeRestartGame:
		return RestartGame{}, nil
	case TypeStopGame:
		return StopGame{}, nil
	case TypeToggleTimer:
		var ev ToggleTimer
		return ev, json.Unmarshal(data, &ev)
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// ServerEvent is an outbound event. EventType is the wire name.
type ServerEvent interface {
	EventType() string
}

// Envelope is the wire framing for one event in either direction.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeServerEvent wraps ev in an envelope and marshals it.
//
// Postcondition: Returns the JSON bytes or a marshalling error.
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", ev.EventType(), err)
	}
	return json.Marshal(Envelope{Type: ev.EventType(), Data: data})
}

// RoomCreated confirms room creation to the admin.
type RoomCreated struct {
	RoomCode string      `json:"roomCode"`
	Players  []room.View `json:"players"`
}

// PlayerJoined announces a new member to the whole room.
type PlayerJoined struct {
	Nickname string      `json:"nickname"`
	Players  []room.View `json:"players"`
}

// PlayerReconnected announces a resumed member to the whole room.
type PlayerReconnected struct {
	Nickname string      `json:"nickname"`
	Players  []room.View `json:"players"`
}

// PlayerDisconnected announces a dropped member to the whole room.
type PlayerDisconnected struct {
	Nickname string      `json:"nickname"`
	Players  []room.View `json:"players"`
}

// GameStarted announces the new game to the whole room. Words travel
// separately in WordAssigned unicasts.
type GameStarted struct {
	Phase    room.Phase  `json:"phase"`
	Round    int         `json:"round"`
	Players  []room.View `json:"players"`
	WordPair []string    `json:"wordPair"`
	Imposter string      `json:"imposter"`
	Starter  string      `json:"starter"`
}

// WordAssigned is the one per-player-private payload: the player's secret
// word. Unicast only, never broadcast.
type WordAssigned struct {
	Word       string `json:"word"`
	IsImposter bool   `json:"isImposter"`
}

// PhaseChanged announces a phase transition that neither started nor ended a
// round.
type PhaseChanged struct {
	Phase       room.Phase        `json:"phase"`
	Round       int               `json:"round"`
	Players     []room.View       `json:"players"`
	VoteResults *room.VoteResults `json:"voteResults,omitempty"`
}

// VoteAdded announces one recorded vote.
type VoteAdded struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// PlayerKicked announces a removed member to the whole room.
type PlayerKicked struct {
	Nickname string      `json:"nickname"`
	Players  []room.View `json:"players"`
}

// Kicked tells the removed player itself. Unicast only.
type Kicked struct{}

// GameRestarted returns the room to the lobby after a finished game.
type GameRestarted struct {
	Players []room.View `json:"players"`
}

// GameStopped returns the room to the lobby after a manual abort.
type GameStopped struct {
	Players []room.View `json:"players"`
}

// TimerToggled announces the new countdown configuration.
type TimerToggled struct {
	Enabled  bool `json:"enabled"`
	Duration int  `json:"duration"`
}

// ErrorEvent reports an operation failure to the requesting connection only.
type ErrorEvent struct {
	Message string `json:"message"`
	// PendingVoters is set for vote-completion failures so the admin's
	// client can show who is blocking.
	PendingVoters []string `json:"pendingVoters,omitempty"`
}

// AdminTransferred announces that admin rights moved to a new player.
type AdminTransferred struct {
	Nickname string      `json:"nickname"`
	Players  []room.View `json:"players"`
}

// Reconnected delivers the full state snapshot to a resumed player. Unicast
// only.
type Reconnected struct {
	GameState room.GameState `json:"gameState"`
	Players   []room.View    `json:"players"`
}

// PlayerEliminated announces an elimination.
type PlayerEliminated struct {
	Nickname    string `json:"nickname"`
	WasImposter bool   `json:"wasImposter"`
}

// GameEnded announces the final outcome.
type GameEnded struct {
	Winner           room.Winner `json:"winner"`
	EliminatedPlayer string      `json:"eliminatedPlayer,omitempty"`
	WasImposter      bool        `json:"wasImposter"`
	Players          []room.View `json:"players"`
}

// RoundContinued announces the next round after a reveal.
type RoundContinued struct {
	Round            int         `json:"round"`
	Players          []room.View `json:"players"`
	EliminatedPlayer string      `json:"eliminatedPlayer,omitempty"`
	WasImposter      bool        `json:"wasImposter"`
}

// AdminLeftRoomClosed tells every member the room is gone because the admin
// disconnected.
type AdminLeftRoomClosed struct {
	Message string      `json:"message"`
	Players []room.View `json:"players"`
}

func (RoomCreated) EventType() string         { return "room-created" }
func (PlayerJoined) EventType() string        { return "player-joined" }
func (PlayerReconnected) EventType() string   { return "player-reconnected" }
func (PlayerDisconnected) EventType() string  { return "player-disconnected" }
func (GameStarted) EventType() string         { return "game-started" }
func (WordAssigned) EventType() string        { return "word-assigned" }
func (PhaseChanged) EventType() string        { return "phase-changed" }
func (VoteAdded) EventType() string           { return "vote-added" }
func (PlayerKicked) EventType() string        { return "player-kicked" }
func (Kicked) EventType() string              { return "kicked" }
func (GameRestarted) EventType() string       { return "game-restarted" }
func (GameStopped) EventType() string         { return "game-stopped" }
func (TimerToggled) EventType() string        { return "timer-toggled" }
func (ErrorEvent) EventType() string          { return "error" }
func (AdminTransferred) EventType() string    { return "admin-transferred" }
func (Reconnected) EventType() string         { return "reconnected" }
func (PlayerEliminated) EventType() string    { return "player-eliminated" }
func (GameEnded) EventType() string           { return "game-ended" }
func (RoundContinued) EventType() string      { return "round-continued" }
func (AdminLeftRoomClosed) EventType() string { return "admin-left-room-closed" }
