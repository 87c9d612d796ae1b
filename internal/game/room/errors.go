package room

import (
	"errors"
	"fmt"
	"strings"
)

// Typed failures returned by Room and Registry operations. Every operation
// failure is one of these; none of them leaves room state partially mutated.
var (
	// ErrDuplicateNickname is returned when a joining nickname is already
	// present among the room's current players.
	ErrDuplicateNickname = errors.New("nickname already taken")

	// ErrPlayerNotFound is returned when no player matches the given
	// nickname or connection identity.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrRoomNotFound is returned when a room code resolves to no live room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInsufficientPlayers is returned when starting a game below the
	// minimum player count.
	ErrInsufficientPlayers = errors.New("not enough players to start")

	// ErrNotVotingPhase is returned when a vote arrives outside VOTING.
	ErrNotVotingPhase = errors.New("not in voting phase")

	// ErrInvalidVoter is returned when the voter is unknown or eliminated.
	ErrInvalidVoter = errors.New("voter cannot vote")

	// ErrInvalidTarget is returned when the vote target is unknown or
	// eliminated.
	ErrInvalidTarget = errors.New("invalid vote target")

	// ErrNotAuthorized is returned when a non-admin connection attempts an
	// admin-only operation.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidPhase is returned when an operation is not legal in the
	// room's current phase (e.g. advancing out of LOBBY or GAME_OVER).
	ErrInvalidPhase = errors.New("operation not valid in current phase")
)

// VotesIncompleteError is returned when advancing out of VOTING while one or
// more alive players have not voted. It carries the pending voters so the
// admin's client can show who is blocking.
type VotesIncompleteError struct {
	// Pending holds the nicknames of alive players without a recorded vote,
	// in join order.
	Pending []string
}

// Error implements the error interface.
func (e *VotesIncompleteError) Error() string {
	return fmt.Sprintf("not all players have voted yet: waiting on %s",
		strings.Join(e.Pending, ", "))
}
