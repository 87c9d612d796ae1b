package room

// Phase is the current stage of a game round.
type Phase string

// Game phases, in the order a round progresses.
const (
	PhaseLobby          Phase = "LOBBY"
	PhaseStatementRound Phase = "STATEMENT_ROUND"
	PhaseVoting         Phase = "VOTING"
	PhaseReveal         Phase = "REVEAL"
	PhaseGameOver       Phase = "GAME_OVER"
)

// String returns the wire representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Active reports whether a game is in progress (any phase outside the lobby
// that has secret words assigned).
func (p Phase) Active() bool {
	switch p {
	case PhaseStatementRound, PhaseVoting, PhaseReveal, PhaseGameOver:
		return true
	}
	return false
}

// Winner identifies which side won a finished game.
type Winner string

// Win outcomes.
const (
	WinnerVillagers Winner = "villagers"
	WinnerImposter  Winner = "imposter"
)
