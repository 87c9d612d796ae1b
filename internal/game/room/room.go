// Package room implements the game-session state machine for one room:
// membership, phases, votes, eliminations, and admin authority. Room methods
// perform no I/O; the gateway layer owns all connection policy.
package room

import (
	"sync"

	"github.com/cory-johannsen/imposter/internal/game/rng"
	"github.com/cory-johannsen/imposter/internal/game/words"
)

// Options holds the game-policy knobs a Room is constructed with.
type Options struct {
	// MinPlayers is the minimum membership required to start a game.
	MinPlayers int
	// DistinctStarter excludes the imposter from the starter draw. The
	// classic rules draw both independently, so the same player may be
	// drawn twice; this knob exists because that coincidence is a policy
	// choice, not an accident.
	DistinctStarter bool
}

// Room is one isolated game instance. All exported methods serialize on an
// internal mutex, so concurrent calls for the same room never interleave.
//
// Invariant: exactly one player has IsAdmin == true while the room is
// non-empty.
// Invariant: nicknames are unique among current players (case-sensitive).
// Invariant: votes only reference alive voters and alive targets.
type Room struct {
	mu sync.Mutex

	code      string
	players   map[string]*Player // connID -> player
	order     []string           // nicknames in join order
	adminConn string

	phase         Phase
	round         int
	wordPair      words.Pair
	imposterName  string
	starterName   string
	votes         map[string]string // voter connID -> target nickname
	revealResults *VoteResults      // tally captured on entering REVEAL
	eliminations  []Elimination
	timer         TimerConfig

	catalog *words.Catalog
	src     rng.Source
	opts    Options
}

// New creates a Room in LOBBY with the creating connection as admin and
// first player.
//
// Precondition: code, adminConn, and adminNick must be non-empty; catalog and
// src must be non-nil; opts.MinPlayers must be >= 3.
// Postcondition: Returns a Room containing exactly one player, the admin.
func New(code, adminConn, adminNick string, catalog *words.Catalog, src rng.Source, opts Options) *Room {
	r := &Room{
		code:    code,
		players: make(map[string]*Player),
		votes:   make(map[string]string),
		phase:   PhaseLobby,
		catalog: catalog,
		src:     src,
		opts:    opts,
	}
	r.adminConn = adminConn
	r.players[adminConn] = &Player{
		Nickname:    adminNick,
		ConnID:      adminConn,
		IsAdmin:     true,
		IsConnected: true,
	}
	r.order = append(r.order, adminNick)
	return r
}

// Code returns the room's immutable code.
func (r *Room) Code() string {
	return r.code
}

// CurrentPhase returns the room's phase.
func (r *Room) CurrentPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Round returns the current round number (0 in LOBBY).
func (r *Room) Round() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}

// Timer returns the current countdown configuration.
func (r *Room) Timer() TimerConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer
}

// AdminConn returns the connection identity currently holding admin rights.
func (r *Room) AdminConn() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adminConn
}

// IsAdmin reports whether connID currently holds admin rights.
func (r *Room) IsAdmin(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return connID == r.adminConn
}

// Empty reports whether the room has no players left.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// Views returns the public player list in join order.
func (r *Room) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewsLocked()
}

// PlayerByConn returns the public view of the player bound to connID.
//
// Postcondition: Returns (view, true) if found, or (View{}, false) otherwise.
func (r *Room) PlayerByConn(connID string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[connID]
	if !ok {
		return View{}, false
	}
	return p.view(), true
}

// PlayerByNickname returns the public view of the named player.
//
// Postcondition: Returns (view, true) if found, or (View{}, false) otherwise.
func (r *Room) PlayerByNickname(nickname string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byNicknameLocked(nickname)
	if p == nil {
		return View{}, false
	}
	return p.view(), true
}

// ConnByNickname returns the connection identity currently bound to the
// named player.
//
// Postcondition: Returns (connID, true) if found, or ("", false) otherwise.
func (r *Room) ConnByNickname(nickname string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byNicknameLocked(nickname)
	if p == nil {
		return "", false
	}
	return p.ConnID, true
}

// AddPlayer inserts a new player bound to connID.
//
// Precondition: nickname and connID must be non-empty.
// Postcondition: Returns the updated player list, or ErrDuplicateNickname if
// the nickname is already present among current players.
func (r *Room) AddPlayer(nickname, connID string) ([]View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byNicknameLocked(nickname) != nil {
		return nil, ErrDuplicateNickname
	}
	r.players[connID] = &Player{
		Nickname:    nickname,
		ConnID:      connID,
		IsAdmin:     connID == r.adminConn,
		IsConnected: true,
	}
	r.order = append(r.order, nickname)
	return r.viewsLocked(), nil
}

// ReconnectState is the snapshot pushed to a reconnecting player.
type ReconnectState struct {
	State   GameState
	Players []View
	// Word and IsImposter re-deliver the original assignment when a game
	// is in progress; HasWord is false otherwise.
	Word       string
	IsImposter bool
	HasWord    bool
	WasAdmin   bool
}

// Reconnect rebinds the named player to a new connection identity and marks
// it connected. Any recorded vote moves with the player.
//
// Precondition: newConnID must not already be bound in this room.
// Postcondition: The player's map key is newConnID; returns the reconnect
// snapshot, or ErrPlayerNotFound if no player has that nickname.
func (r *Room) Reconnect(nickname, newConnID string) (*ReconnectState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byNicknameLocked(nickname)
	if p == nil {
		return nil, ErrPlayerNotFound
	}

	oldConn := p.ConnID
	delete(r.players, oldConn)
	p.ConnID = newConnID
	p.IsConnected = true
	r.players[newConnID] = p

	if target, ok := r.votes[oldConn]; ok {
		delete(r.votes, oldConn)
		r.votes[newConnID] = target
	}
	if p.IsAdmin {
		r.adminConn = newConnID
	}

	st := &ReconnectState{
		State:    r.stateLocked(),
		Players:  r.viewsLocked(),
		WasAdmin: p.IsAdmin,
	}
	if r.phase.Active() && p.Word != "" {
		st.Word = p.Word
		st.IsImposter = p.Nickname == r.imposterName
		st.HasWord = true
	}
	return st, nil
}

// MarkDisconnected flags the player bound to connID as disconnected without
// removing it.
//
// Postcondition: Returns the player's nickname, whether it held admin
// rights, and the updated player list, or ErrPlayerNotFound.
func (r *Room) MarkDisconnected(connID string) (nickname string, wasAdmin bool, players []View, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[connID]
	if !ok {
		return "", false, nil, ErrPlayerNotFound
	}
	p.IsConnected = false
	return p.Nickname, p.IsAdmin, r.viewsLocked(), nil
}

// TransferAdmin promotes the first connected, non-eliminated, non-admin
// player in join order and demotes the current admin.
//
// Postcondition: Returns (promoted view, true), or (View{}, false) when no
// candidate exists; in that case admin rights are unchanged.
func (r *Room) TransferAdmin() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transferAdminLocked()
}

func (r *Room) transferAdminLocked() (View, bool) {
	for _, nick := range r.order {
		p := r.byNicknameLocked(nick)
		if p == nil || p.IsAdmin || !p.IsConnected || p.IsEliminated {
			continue
		}
		if old, ok := r.players[r.adminConn]; ok {
			old.IsAdmin = false
		}
		p.IsAdmin = true
		r.adminConn = p.ConnID
		return p.view(), true
	}
	return View{}, false
}

// WordAssignment is one player's secret word for the current game.
type WordAssignment struct {
	Word       string `json:"word"`
	IsImposter bool   `json:"isImposter"`
}

// StartResult carries everything the gateway fans out after a game start.
type StartResult struct {
	Phase    Phase
	Round    int
	Players  []View
	Pair     words.Pair
	Imposter string
	Starter  string
	// Assignments is keyed by connection identity for per-player unicast.
	Assignments map[string]WordAssignment
}

// StartGame draws a word pair, an imposter, and a starter, assigns words,
// and moves the room into STATEMENT_ROUND.
//
// The imposter and starter draws are independent unless DistinctStarter is
// set, so one player may be both.
//
// Postcondition: On success phase == STATEMENT_ROUND, round == 1, votes and
// elimination history are empty, and every player holds a word. Fails with
// ErrInsufficientPlayers below the minimum count and ErrInvalidPhase outside
// LOBBY; on failure no state changes.
func (r *Room) StartGame() (*StartResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return nil, ErrInvalidPhase
	}
	if len(r.players) < r.opts.MinPlayers {
		return nil, ErrInsufficientPlayers
	}

	pair := r.catalog.Draw(r.src)

	// Draw from the membership present at start, in join order.
	r.imposterName = r.order[r.src.Intn(len(r.order))]
	if r.opts.DistinctStarter && len(r.order) > 1 {
		others := make([]string, 0, len(r.order)-1)
		for _, nick := range r.order {
			if nick != r.imposterName {
				others = append(others, nick)
			}
		}
		r.starterName = others[r.src.Intn(len(others))]
	} else {
		r.starterName = r.order[r.src.Intn(len(r.order))]
	}

	r.wordPair = pair
	assignments := make(map[string]WordAssignment, len(r.players))
	for connID, p := range r.players {
		if p.Nickname == r.imposterName {
			p.Word = pair.Imposter
		} else {
			p.Word = pair.Common
		}
		assignments[connID] = WordAssignment{
			Word:       p.Word,
			IsImposter: p.Nickname == r.imposterName,
		}
	}

	r.phase = PhaseStatementRound
	r.round = 1
	r.votes = make(map[string]string)
	r.eliminations = nil

	return &StartResult{
		Phase:       r.phase,
		Round:       r.round,
		Players:     r.viewsLocked(),
		Pair:        pair,
		Imposter:    r.imposterName,
		Starter:     r.starterName,
		Assignments: assignments,
	}, nil
}

// VotePair is one voter's recorded choice, for display.
type VotePair struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// VoteResults is the tally of the current vote set.
type VoteResults struct {
	// Candidate is the target with strictly the most votes, or empty when
	// the vote is tied or no votes exist.
	Candidate string `json:"eliminated,omitempty"`
	// Tied is true when two or more targets share the highest count.
	Tied bool `json:"tied"`
	// Counts maps target nickname to vote count.
	Counts map[string]int `json:"voteCounts"`
	// Votes lists per-voter choices in voter join order.
	Votes []VotePair `json:"individualVotes"`
	// WasImposter is true when Candidate is the imposter.
	WasImposter bool `json:"wasImposter"`
}

// RoundOutcome describes how a round resolved when advancing out of REVEAL.
type RoundOutcome struct {
	// Winner is set when the game ended; empty when the round continued.
	Winner Winner
	// EliminatedPlayer is the nickname voted out this round, empty on a
	// tied vote.
	EliminatedPlayer string
	WasImposter      bool
	// Continued is true when play moved on to the next STATEMENT_ROUND.
	Continued bool
}

// AdvanceResult carries the room state after a successful phase advance.
type AdvanceResult struct {
	Phase   Phase
	Round   int
	Players []View
	// VoteResults is set when entering REVEAL.
	VoteResults *VoteResults
	// Outcome is set when leaving REVEAL.
	Outcome *RoundOutcome
}

// AdvancePhase moves the room to its next phase.
//
// Transitions:
//
//	STATEMENT_ROUND -> VOTING            (votes cleared)
//	VOTING          -> REVEAL            (fails with VotesIncompleteError
//	                                      unless every alive player voted)
//	REVEAL          -> STATEMENT_ROUND   (round+1) or GAME_OVER
//
// A tied vote eliminates no one; the round still resolves: the imposter-win
// condition is evaluated against the unchanged alive set, otherwise play
// continues to the next round.
//
// Postcondition: On failure the phase is unchanged.
func (r *Room) AdvancePhase() (*AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case PhaseStatementRound:
		r.phase = PhaseVoting
		r.votes = make(map[string]string)
		return &AdvanceResult{
			Phase:   r.phase,
			Round:   r.round,
			Players: r.viewsLocked(),
		}, nil

	case PhaseVoting:
		if pending := r.pendingVotersLocked(); len(pending) > 0 {
			return nil, &VotesIncompleteError{Pending: pending}
		}
		r.phase = PhaseReveal
		results := r.tallyLocked()
		// Freeze the decision now: membership changes during REVEAL
		// must not alter the elimination already shown to players.
		r.revealResults = results
		return &AdvanceResult{
			Phase:       r.phase,
			Round:       r.round,
			Players:     r.viewsLocked(),
			VoteResults: results,
		}, nil

	case PhaseReveal:
		return r.resolveRoundLocked()

	default:
		return nil, ErrInvalidPhase
	}
}

// resolveRoundLocked applies the elimination captured when REVEAL was
// entered and evaluates the win conditions.
func (r *Room) resolveRoundLocked() (*AdvanceResult, error) {
	results := r.revealResults
	r.revealResults = nil

	outcome := &RoundOutcome{}
	if results != nil && results.Candidate != "" {
		// The candidate may already be gone, kicked while REVEAL was
		// on screen. Then there is nothing left to apply.
		if p := r.byNicknameLocked(results.Candidate); p != nil && !p.IsEliminated {
			outcome.EliminatedPlayer = results.Candidate
			outcome.WasImposter = results.WasImposter
			r.eliminateLocked(results.Candidate)
		}
	}

	imposterAlive := false
	alive := 0
	for _, p := range r.players {
		if !p.IsEliminated {
			alive++
			if p.Nickname == r.imposterName {
				imposterAlive = true
			}
		}
	}

	switch {
	case !imposterAlive:
		r.phase = PhaseGameOver
		outcome.Winner = WinnerVillagers
	case alive <= 2:
		r.phase = PhaseGameOver
		outcome.Winner = WinnerImposter
	default:
		r.phase = PhaseStatementRound
		r.round++
		r.votes = make(map[string]string)
		outcome.Continued = true
	}

	return &AdvanceResult{
		Phase:   r.phase,
		Round:   r.round,
		Players: r.viewsLocked(),
		Outcome: outcome,
	}, nil
}

// AddVote records or overwrites the voter's choice. Votes stay mutable until
// the phase leaves VOTING.
//
// Postcondition: Returns the voter's nickname on success. Fails with
// ErrNotVotingPhase outside VOTING, ErrInvalidVoter for an unknown or
// eliminated voter, and ErrInvalidTarget for an unknown or eliminated
// target; on failure no vote is recorded.
func (r *Room) AddVote(voterConn, targetNickname string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseVoting {
		return "", ErrNotVotingPhase
	}
	voter, ok := r.players[voterConn]
	if !ok || voter.IsEliminated {
		return "", ErrInvalidVoter
	}
	target := r.byNicknameLocked(targetNickname)
	if target == nil || target.IsEliminated {
		return "", ErrInvalidTarget
	}
	r.votes[voterConn] = targetNickname
	return voter.Nickname, nil
}

// TallyVotes counts the current vote set. It never mutates state; the
// elimination applied on leaving REVEAL uses the tally captured when REVEAL
// was entered, not a fresh count.
func (r *Room) TallyVotes() *VoteResults {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tallyLocked()
}

func (r *Room) tallyLocked() *VoteResults {
	counts := make(map[string]int)
	votes := make([]VotePair, 0, len(r.votes))

	// Walk voters in join order for deterministic output.
	for _, nick := range r.order {
		p := r.byNicknameLocked(nick)
		if p == nil {
			continue
		}
		target, ok := r.votes[p.ConnID]
		if !ok {
			continue
		}
		votes = append(votes, VotePair{Voter: p.Nickname, Target: target})
		counts[target]++
	}

	candidate := ""
	max := 0
	tied := false
	for target, n := range counts {
		switch {
		case n > max:
			max = n
			candidate = target
			tied = false
		case n == max:
			tied = true
		}
	}
	// A tie for the highest count eliminates no one.
	if tied {
		candidate = ""
	}

	return &VoteResults{
		Candidate:   candidate,
		Tied:        tied,
		Counts:      counts,
		Votes:       votes,
		WasImposter: candidate != "" && candidate == r.imposterName,
	}
}

// pendingVotersLocked returns alive players without a recorded vote, in join
// order.
func (r *Room) pendingVotersLocked() []string {
	var pending []string
	for _, nick := range r.order {
		p := r.byNicknameLocked(nick)
		if p == nil || p.IsEliminated {
			continue
		}
		if _, ok := r.votes[p.ConnID]; !ok {
			pending = append(pending, p.Nickname)
		}
	}
	return pending
}

// Eliminate marks the named player eliminated and appends to the elimination
// history. Votes cast by or against the player are dropped.
//
// Postcondition: Returns whether the player was the imposter, or
// ErrPlayerNotFound / ErrInvalidTarget (already eliminated); on failure no
// state changes.
func (r *Room) Eliminate(nickname string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byNicknameLocked(nickname)
	if p == nil {
		return false, ErrPlayerNotFound
	}
	if p.IsEliminated {
		return false, ErrInvalidTarget
	}
	r.eliminateLocked(nickname)
	return nickname == r.imposterName, nil
}

func (r *Room) eliminateLocked(nickname string) {
	p := r.byNicknameLocked(nickname)
	if p == nil || p.IsEliminated {
		return
	}
	p.IsEliminated = true
	r.eliminations = append(r.eliminations, Elimination{
		Nickname:    nickname,
		WasImposter: nickname == r.imposterName,
		Round:       r.round,
	})
	r.dropVotesLocked(p)
}

// dropVotesLocked removes votes referencing p as voter or target.
func (r *Room) dropVotesLocked(p *Player) {
	delete(r.votes, p.ConnID)
	for conn, target := range r.votes {
		if target == p.Nickname {
			delete(r.votes, conn)
		}
	}
}

// KickResult describes the effects of removing a player.
type KickResult struct {
	Nickname string
	ConnID   string
	WasAdmin bool
	// NewAdmin is set when the removed player held admin rights and a
	// successor was promoted.
	NewAdmin *View
	Players  []View
	Empty    bool
}

// Kick removes the named player entirely, in any phase. If the removed
// player held admin rights, the first connected non-eliminated player is
// promoted (or, failing that, the first remaining player) so the one-admin
// invariant holds while the room is non-empty.
//
// Postcondition: The player and its votes are gone; returns the kick
// effects, or ErrPlayerNotFound.
func (r *Room) Kick(nickname string) (*KickResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.byNicknameLocked(nickname)
	if p == nil {
		return nil, ErrPlayerNotFound
	}

	r.dropVotesLocked(p)
	delete(r.players, p.ConnID)
	for i, nick := range r.order {
		if nick == nickname {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	res := &KickResult{
		Nickname: p.Nickname,
		ConnID:   p.ConnID,
		WasAdmin: p.IsAdmin,
		Empty:    len(r.players) == 0,
	}
	if p.IsAdmin && len(r.players) > 0 {
		promoted, ok := r.transferAdminLocked()
		if !ok {
			// No connected, non-eliminated candidate. Promote the first
			// remaining player anyway so the one-admin invariant holds.
			first := r.byNicknameLocked(r.order[0])
			first.IsAdmin = true
			r.adminConn = first.ConnID
			promoted = first.view()
		}
		res.NewAdmin = &promoted
	}
	res.Players = r.viewsLocked()
	return res, nil
}

// Restart resets the game to LOBBY while preserving membership and admin.
//
// Postcondition: phase == LOBBY, round == 0, no words, votes, eliminations,
// or timer; every player's IsEliminated is cleared.
func (r *Room) Restart() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

// Stop is the manual abort: the same reset as Restart, available from any
// phase.
func (r *Room) Stop() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

func (r *Room) resetLocked() []View {
	r.phase = PhaseLobby
	r.round = 0
	r.wordPair = words.Pair{}
	r.imposterName = ""
	r.starterName = ""
	r.votes = make(map[string]string)
	r.revealResults = nil
	r.eliminations = nil
	r.timer = TimerConfig{}
	for _, p := range r.players {
		p.IsEliminated = false
		p.Word = ""
	}
	return r.viewsLocked()
}

// SetTimer overwrites the countdown configuration. It does not start any
// clock; the gateway drives the countdown.
func (r *Room) SetTimer(enabled bool, durationSeconds int) TimerConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer = TimerConfig{Enabled: enabled, Duration: durationSeconds}
	return r.timer
}

// GameState is the shared (non-secret) room state pushed to a reconnecting
// player. It never includes the imposter's identity or any word.
type GameState struct {
	Phase        Phase         `json:"phase"`
	Round        int           `json:"round"`
	Starter      string        `json:"starter,omitempty"`
	Players      []View        `json:"players"`
	Eliminations []Elimination `json:"eliminated"`
	Timer        TimerConfig   `json:"timer"`
}

// State returns the shared game-state snapshot.
func (r *Room) State() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) stateLocked() GameState {
	elims := make([]Elimination, len(r.eliminations))
	copy(elims, r.eliminations)
	return GameState{
		Phase:        r.phase,
		Round:        r.round,
		Starter:      r.starterName,
		Players:      r.viewsLocked(),
		Eliminations: elims,
		Timer:        r.timer,
	}
}

func (r *Room) viewsLocked() []View {
	views := make([]View, 0, len(r.players))
	for _, nick := range r.order {
		if p := r.byNicknameLocked(nick); p != nil {
			views = append(views, p.view())
		}
	}
	return views
}

func (r *Room) byNicknameLocked(nickname string) *Player {
	for _, p := range r.players {
		if p.Nickname == nickname {
			return p
		}
	}
	return nil
}
