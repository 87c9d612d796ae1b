package room

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/imposter/internal/game/rng"
	"github.com/cory-johannsen/imposter/internal/game/words"
)

// seqSource replays a scripted value sequence, then zeroes.
type seqSource struct {
	vals []int
	i    int
}

func (s *seqSource) Intn(n int) int {
	if s.i >= len(s.vals) {
		return 0
	}
	v := s.vals[s.i]
	s.i++
	return v % n
}

func testCatalog(t *testing.T) *words.Catalog {
	t.Helper()
	c, err := words.NewCatalog([]words.Pair{{Common: "beach", Imposter: "desert"}})
	require.NoError(t, err)
	return c
}

func testOptions() Options {
	return Options{MinPlayers: 3}
}

// newTestRoom builds a room with the given members. The first member is the
// admin; member i is bound to connection "c<i+1>".
func newTestRoom(t *testing.T, src rng.Source, nicks ...string) *Room {
	t.Helper()
	require.NotEmpty(t, nicks)
	r := New("ABC123", "c1", nicks[0], testCatalog(t), src, testOptions())
	for i, nick := range nicks[1:] {
		_, err := r.AddPlayer(nick, connID(i+1))
		require.NoError(t, err)
	}
	return r
}

func connID(i int) string {
	return string(rune('c')) + string(rune('1'+i))
}

// startedRoom starts a 3-player game with B as imposter and A as starter.
func startedRoom(t *testing.T) *Room {
	t.Helper()
	src := &seqSource{vals: []int{0, 1, 0}} // pair 0, imposter B, starter A
	r := newTestRoom(t, src, "A", "B", "C")
	res, err := r.StartGame()
	require.NoError(t, err)
	require.Equal(t, "B", res.Imposter)
	return r
}

// advanceToVoting moves a freshly started room into VOTING.
func advanceToVoting(t *testing.T, r *Room) {
	t.Helper()
	res, err := r.AdvancePhase()
	require.NoError(t, err)
	require.Equal(t, PhaseVoting, res.Phase)
}

func TestNewRoomAdminIsFirstPlayer(t *testing.T) {
	r := New("ABC123", "c1", "A", testCatalog(t), &seqSource{}, testOptions())
	views := r.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "A", views[0].Nickname)
	assert.True(t, views[0].IsAdmin)
	assert.True(t, views[0].IsConnected)
	assert.True(t, r.IsAdmin("c1"))
	assert.Equal(t, PhaseLobby, r.CurrentPhase())
}

func TestAddPlayerDuplicateNickname(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	_, err := r.AddPlayer("A", "c2")
	assert.ErrorIs(t, err, ErrDuplicateNickname)
}

func TestAddPlayerNicknamesCaseSensitive(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	_, err := r.AddPlayer("a", "c2")
	assert.NoError(t, err)
}

func TestAddPlayerJoinOrderPreserved(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	views := r.Views()
	require.Len(t, views, 3)
	assert.Equal(t, "A", views[0].Nickname)
	assert.Equal(t, "B", views[1].Nickname)
	assert.Equal(t, "C", views[2].Nickname)
}

func TestReconnectUnknownNickname(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	_, err := r.Reconnect("nobody", "c9")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestReconnectRebindsConnection(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	_, _, _, err := r.MarkDisconnected("c2")
	require.NoError(t, err)

	st, err := r.Reconnect("B", "c9")
	require.NoError(t, err)
	assert.False(t, st.HasWord)

	conn, ok := r.ConnByNickname("B")
	require.True(t, ok)
	assert.Equal(t, "c9", conn)

	v, ok := r.PlayerByConn("c9")
	require.True(t, ok)
	assert.True(t, v.IsConnected)

	_, ok = r.PlayerByConn("c2")
	assert.False(t, ok)
}

func TestReconnectRestoresAssignedWord(t *testing.T) {
	r := startedRoom(t)
	issued := map[string]string{}
	for i, nick := range []string{"A", "B", "C"} {
		v, ok := r.PlayerByConn(connID(i))
		require.True(t, ok)
		_ = v
		_ = nick
	}
	// Capture B's word via a reconnect round trip.
	_, _, _, err := r.MarkDisconnected("c2")
	require.NoError(t, err)
	st, err := r.Reconnect("B", "c9")
	require.NoError(t, err)
	require.True(t, st.HasWord)
	assert.Equal(t, "desert", st.Word)
	assert.True(t, st.IsImposter)
	issued["B"] = st.Word

	// Reconnecting again must deliver the identical word, never a redraw.
	_, _, _, err = r.MarkDisconnected("c9")
	require.NoError(t, err)
	st2, err := r.Reconnect("B", "c10")
	require.NoError(t, err)
	assert.Equal(t, issued["B"], st2.Word)
}

func TestReconnectAdminRebindsAdminConn(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	_, wasAdmin, _, err := r.MarkDisconnected("c1")
	require.NoError(t, err)
	assert.True(t, wasAdmin)

	st, err := r.Reconnect("A", "c9")
	require.NoError(t, err)
	assert.True(t, st.WasAdmin)
	assert.True(t, r.IsAdmin("c9"))
	assert.False(t, r.IsAdmin("c1"))
}

func TestReconnectMigratesVote(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	_, err := r.AddVote("c2", "A")
	require.NoError(t, err)

	_, _, _, err = r.MarkDisconnected("c2")
	require.NoError(t, err)
	_, err = r.Reconnect("B", "c9")
	require.NoError(t, err)

	results := r.TallyVotes()
	require.Len(t, results.Votes, 1)
	assert.Equal(t, VotePair{Voter: "B", Target: "A"}, results.Votes[0])
}

func TestMarkDisconnectedUnknown(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	_, _, _, err := r.MarkDisconnected("c9")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestMarkDisconnectedKeepsPlayer(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	nick, wasAdmin, views, err := r.MarkDisconnected("c2")
	require.NoError(t, err)
	assert.Equal(t, "B", nick)
	assert.False(t, wasAdmin)
	require.Len(t, views, 3)
	assert.False(t, views[1].IsConnected)
}

func TestTransferAdminPicksFirstEligible(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	_, _, _, err := r.MarkDisconnected("c2")
	require.NoError(t, err)

	promoted, ok := r.TransferAdmin()
	require.True(t, ok)
	// B is disconnected, so C is the first eligible candidate.
	assert.Equal(t, "C", promoted.Nickname)
	assert.True(t, r.IsAdmin("c3"))

	// Old admin was demoted.
	v, _ := r.PlayerByNickname("A")
	assert.False(t, v.IsAdmin)
}

func TestTransferAdminNoCandidate(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	_, ok := r.TransferAdmin()
	assert.False(t, ok)
	assert.True(t, r.IsAdmin("c1"))
}

func TestStartGameInsufficientPlayers(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B")
	_, err := r.StartGame()
	assert.ErrorIs(t, err, ErrInsufficientPlayers)
	assert.Equal(t, PhaseLobby, r.CurrentPhase())
}

func TestStartGameThreePlayers(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 2}}
	r := newTestRoom(t, src, "A", "B", "C")

	res, err := r.StartGame()
	require.NoError(t, err)
	assert.Equal(t, PhaseStatementRound, res.Phase)
	assert.Equal(t, 1, res.Round)
	assert.Equal(t, "B", res.Imposter)
	assert.Equal(t, "C", res.Starter)
	require.Len(t, res.Assignments, 3)

	// Imposter gets the pair's second word, everyone else the first.
	for conn, a := range res.Assignments {
		v, ok := r.PlayerByConn(conn)
		require.True(t, ok)
		if v.Nickname == "B" {
			assert.Equal(t, "desert", a.Word)
			assert.True(t, a.IsImposter)
		} else {
			assert.Equal(t, "beach", a.Word)
			assert.False(t, a.IsImposter)
		}
	}
}

func TestStartGameImposterMayBeStarter(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 1}}
	r := newTestRoom(t, src, "A", "B", "C")
	res, err := r.StartGame()
	require.NoError(t, err)
	assert.Equal(t, res.Imposter, res.Starter)
}

func TestStartGameDistinctStarter(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 0}}
	r := New("ABC123", "c1", "A", testCatalog(t), src, Options{MinPlayers: 3, DistinctStarter: true})
	_, err := r.AddPlayer("B", "c2")
	require.NoError(t, err)
	_, err = r.AddPlayer("C", "c3")
	require.NoError(t, err)

	res, err := r.StartGame()
	require.NoError(t, err)
	assert.NotEqual(t, res.Imposter, res.Starter)
}

func TestStartGameOutsideLobby(t *testing.T) {
	r := startedRoom(t)
	_, err := r.StartGame()
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestAdvanceFromLobbyFails(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	_, err := r.AdvancePhase()
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestAdvanceStatementToVoting(t *testing.T) {
	r := startedRoom(t)
	res, err := r.AdvancePhase()
	require.NoError(t, err)
	assert.Equal(t, PhaseVoting, res.Phase)
	assert.Equal(t, 1, res.Round)
}

func TestAdvanceVotingIncomplete(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	_, err := r.AddVote("c1", "B")
	require.NoError(t, err)

	_, err = r.AdvancePhase()
	var incomplete *VotesIncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"B", "C"}, incomplete.Pending)
	assert.Equal(t, PhaseVoting, r.CurrentPhase())
}

func TestAdvanceVotingToReveal(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	for conn, target := range map[string]string{"c1": "B", "c2": "A", "c3": "B"} {
		_, err := r.AddVote(conn, target)
		require.NoError(t, err)
	}

	res, err := r.AdvancePhase()
	require.NoError(t, err)
	assert.Equal(t, PhaseReveal, res.Phase)
	require.NotNil(t, res.VoteResults)
	assert.Equal(t, "B", res.VoteResults.Candidate)
	assert.True(t, res.VoteResults.WasImposter)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, res.VoteResults.Counts)
	assert.Equal(t, []VotePair{
		{Voter: "A", Target: "B"},
		{Voter: "B", Target: "A"},
		{Voter: "C", Target: "B"},
	}, res.VoteResults.Votes)
}

// Scenario: 3 players, B is the imposter, A and C vote B out.
func TestVillagersWinWhenImposterEliminated(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	for conn, target := range map[string]string{"c1": "B", "c2": "A", "c3": "B"} {
		_, err := r.AddVote(conn, target)
		require.NoError(t, err)
	}
	_, err := r.AdvancePhase() // -> REVEAL
	require.NoError(t, err)

	res, err := r.AdvancePhase() // resolve
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, res.Phase)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, WinnerVillagers, res.Outcome.Winner)
	assert.Equal(t, "B", res.Outcome.EliminatedPlayer)
	assert.True(t, res.Outcome.WasImposter)
}

func TestImposterWinsWhenTwoRemain(t *testing.T) {
	r := startedRoom(t) // B is imposter
	advanceToVoting(t, r)

	// Everyone piles on C.
	for _, conn := range []string{"c1", "c2", "c3"} {
		_, err := r.AddVote(conn, "C")
		require.NoError(t, err)
	}
	_, err := r.AdvancePhase() // -> REVEAL
	require.NoError(t, err)

	res, err := r.AdvancePhase()
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, res.Phase)
	assert.Equal(t, WinnerImposter, res.Outcome.Winner)
	assert.Equal(t, "C", res.Outcome.EliminatedPlayer)
	assert.False(t, res.Outcome.WasImposter)
}

func TestRoundContinuesWithFourPlayers(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 0}} // imposter B
	r := newTestRoom(t, src, "A", "B", "C", "D")
	_, err := r.StartGame()
	require.NoError(t, err)
	advanceToVoting(t, r)

	// Villager D is voted out; three alive remain, game continues.
	for _, conn := range []string{"c1", "c2", "c3"} {
		_, err := r.AddVote(conn, "D")
		require.NoError(t, err)
	}
	_, err = r.AddVote("c4", "A")
	require.NoError(t, err)

	_, err = r.AdvancePhase() // -> REVEAL
	require.NoError(t, err)
	res, err := r.AdvancePhase()
	require.NoError(t, err)

	assert.Equal(t, PhaseStatementRound, res.Phase)
	assert.Equal(t, 2, res.Round)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Continued)
	assert.Equal(t, "D", res.Outcome.EliminatedPlayer)

	// Votes cleared for the new round.
	assert.Empty(t, r.TallyVotes().Votes)
}

func TestTiedVoteEliminatesNoOne(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 0}} // imposter B
	r := newTestRoom(t, src, "A", "B", "C", "D")
	_, err := r.StartGame()
	require.NoError(t, err)
	advanceToVoting(t, r)

	for conn, target := range map[string]string{"c1": "B", "c2": "A", "c3": "B", "c4": "A"} {
		_, err := r.AddVote(conn, target)
		require.NoError(t, err)
	}

	res, err := r.AdvancePhase() // -> REVEAL
	require.NoError(t, err)
	assert.True(t, res.VoteResults.Tied)
	assert.Empty(t, res.VoteResults.Candidate)

	res, err = r.AdvancePhase()
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Continued)
	assert.Empty(t, res.Outcome.EliminatedPlayer)
	assert.Equal(t, 2, res.Round)

	// Nobody was eliminated.
	for _, v := range r.Views() {
		assert.False(t, v.IsEliminated)
	}
}

func TestTiedVoteStillResolvesImposterWin(t *testing.T) {
	r := startedRoom(t) // 3 players, B imposter
	advanceToVoting(t, r)

	// Eliminate villager C out-of-band (grace-timer path), leaving 2 alive.
	_, err := r.Eliminate("C")
	require.NoError(t, err)

	for conn, target := range map[string]string{"c1": "B", "c2": "A"} {
		_, err := r.AddVote(conn, target)
		require.NoError(t, err)
	}
	_, err = r.AdvancePhase() // -> REVEAL (1-1 tie)
	require.NoError(t, err)
	res, err := r.AdvancePhase()
	require.NoError(t, err)

	assert.Equal(t, PhaseGameOver, res.Phase)
	assert.Equal(t, WinnerImposter, res.Outcome.Winner)
}

func TestAdvanceAppliesRevealTallyAfterKicks(t *testing.T) {
	src := &seqSource{vals: []int{0, 0, 0}}
	r := newTestRoom(t, src, "A", "B", "C", "D", "E")
	_, err := r.StartGame()
	require.NoError(t, err)
	advanceToVoting(t, r)

	for conn, target := range map[string]string{
		"c1": "B", "c3": "B", "c4": "B", "c2": "E", "c5": "C",
	} {
		_, err := r.AddVote(conn, target)
		require.NoError(t, err)
	}
	res, err := r.AdvancePhase() // -> REVEAL, B decided
	require.NoError(t, err)
	require.Equal(t, "B", res.VoteResults.Candidate)

	// Two of B's voters leave during REVEAL. The elimination already
	// shown to players is still the one applied.
	_, err = r.Kick("C")
	require.NoError(t, err)
	_, err = r.Kick("D")
	require.NoError(t, err)

	final, err := r.AdvancePhase()
	require.NoError(t, err)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "B", final.Outcome.EliminatedPlayer)
	assert.False(t, final.Outcome.WasImposter)
	assert.Equal(t, WinnerImposter, final.Outcome.Winner)
}

func TestAdvanceSkipsEliminationWhenCandidateKickedDuringReveal(t *testing.T) {
	r := startedRoom(t) // 3 players, B imposter
	advanceToVoting(t, r)

	for _, conn := range []string{"c1", "c2", "c3"} {
		_, err := r.AddVote(conn, "C")
		require.NoError(t, err)
	}
	res, err := r.AdvancePhase() // -> REVEAL, C decided
	require.NoError(t, err)
	require.Equal(t, "C", res.VoteResults.Candidate)

	_, err = r.Kick("C")
	require.NoError(t, err)

	final, err := r.AdvancePhase()
	require.NoError(t, err)
	require.NotNil(t, final.Outcome)
	assert.Empty(t, final.Outcome.EliminatedPlayer)
	assert.Equal(t, WinnerImposter, final.Outcome.Winner)
}

func TestAddVoteOutsideVotingPhase(t *testing.T) {
	r := startedRoom(t)
	_, err := r.AddVote("c1", "B")
	assert.ErrorIs(t, err, ErrNotVotingPhase)
}

func TestAddVoteInvalidVoter(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	_, err := r.AddVote("c9", "B")
	assert.ErrorIs(t, err, ErrInvalidVoter)

	_, err = r.Eliminate("C")
	require.NoError(t, err)
	_, err = r.AddVote("c3", "B")
	assert.ErrorIs(t, err, ErrInvalidVoter)
}

func TestAddVoteInvalidTarget(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	_, err := r.AddVote("c1", "nobody")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = r.Eliminate("C")
	require.NoError(t, err)
	_, err = r.AddVote("c1", "C")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestAddVoteOverwrites(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)

	_, err := r.AddVote("c1", "B")
	require.NoError(t, err)
	_, err = r.AddVote("c1", "C")
	require.NoError(t, err)

	results := r.TallyVotes()
	assert.Equal(t, map[string]int{"C": 1}, results.Counts)
}

func TestEliminateDropsReferencingVotes(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 0}}
	r := newTestRoom(t, src, "A", "B", "C", "D")
	_, err := r.StartGame()
	require.NoError(t, err)
	advanceToVoting(t, r)

	_, err = r.AddVote("c4", "A") // D votes
	require.NoError(t, err)
	_, err = r.AddVote("c1", "D") // a vote targeting D
	require.NoError(t, err)

	_, err = r.Eliminate("D")
	require.NoError(t, err)

	// Both D's vote and the vote against D are gone.
	assert.Empty(t, r.TallyVotes().Votes)
}

func TestEliminateTwiceFails(t *testing.T) {
	r := startedRoom(t)
	_, err := r.Eliminate("C")
	require.NoError(t, err)
	_, err = r.Eliminate("C")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEliminateUnknown(t *testing.T) {
	r := startedRoom(t)
	_, err := r.Eliminate("nobody")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestKickRemovesPlayer(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	res, err := r.Kick("B")
	require.NoError(t, err)
	assert.Equal(t, "c2", res.ConnID)
	assert.False(t, res.WasAdmin)
	assert.False(t, res.Empty)
	require.Len(t, res.Players, 2)

	_, ok := r.PlayerByNickname("B")
	assert.False(t, ok)
}

func TestKickUnknown(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	_, err := r.Kick("nobody")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestKickAdminPromotesSuccessor(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	res, err := r.Kick("A")
	require.NoError(t, err)
	assert.True(t, res.WasAdmin)
	require.NotNil(t, res.NewAdmin)
	assert.Equal(t, "B", res.NewAdmin.Nickname)
	assert.True(t, r.IsAdmin("c2"))
}

func TestKickLastPlayerEmptiesRoom(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	res, err := r.Kick("A")
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.True(t, r.Empty())
}

func TestRestartPreservesMembershipAndAdmin(t *testing.T) {
	r := startedRoom(t)
	_, err := r.Eliminate("C")
	require.NoError(t, err)

	views := r.Restart()
	require.Len(t, views, 3)
	assert.Equal(t, PhaseLobby, r.CurrentPhase())
	assert.Equal(t, 0, r.Round())
	for _, v := range views {
		assert.False(t, v.IsEliminated)
	}
	assert.True(t, r.IsAdmin("c1"))
	assert.Empty(t, r.State().Eliminations)
}

func TestRestartThenStartDrawsFresh(t *testing.T) {
	src := &seqSource{vals: []int{0, 1, 0, 0, 2, 1}}
	r := newTestRoom(t, src, "A", "B", "C")

	first, err := r.StartGame()
	require.NoError(t, err)
	r.Restart()
	second, err := r.StartGame()
	require.NoError(t, err)

	// The second draw is independent of the first.
	assert.Equal(t, "B", first.Imposter)
	assert.Equal(t, "C", second.Imposter)
	assert.Equal(t, "B", second.Starter)
}

func TestStopFromAnyPhase(t *testing.T) {
	r := startedRoom(t)
	advanceToVoting(t, r)
	_, err := r.AddVote("c1", "B")
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, PhaseLobby, r.CurrentPhase())
	assert.Empty(t, r.TallyVotes().Votes)

	// A reconnect after stop carries no word.
	_, _, _, err = r.MarkDisconnected("c2")
	require.NoError(t, err)
	st, err := r.Reconnect("B", "c9")
	require.NoError(t, err)
	assert.False(t, st.HasWord)
}

func TestStopInLobbyIsNoOpReset(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A", "B", "C")
	views := r.Stop()
	require.Len(t, views, 3)
	assert.Equal(t, PhaseLobby, r.CurrentPhase())
}

func TestSetTimer(t *testing.T) {
	r := newTestRoom(t, &seqSource{}, "A")
	cfg := r.SetTimer(true, 90)
	assert.Equal(t, TimerConfig{Enabled: true, Duration: 90}, cfg)
	assert.Equal(t, cfg, r.Timer())

	// Reset clears the timer config.
	r.Stop()
	assert.Equal(t, TimerConfig{}, r.Timer())
}

func TestStateExcludesSecrets(t *testing.T) {
	r := startedRoom(t)
	st := r.State()
	assert.Equal(t, PhaseStatementRound, st.Phase)
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, "A", st.Starter)
	require.Len(t, st.Players, 3)
}

// Property-based tests

func countAdmins(views []View) int {
	n := 0
	for _, v := range views {
		if v.IsAdmin {
			n++
		}
	}
	return n
}

// Exactly one admin at every instant, under arbitrary operation sequences.
func TestPropertyExactlyOneAdmin(t *testing.T) {
	catalog := testCatalog(t)
	rapid.Check(t, func(t *rapid.T) {
		nicks := []string{"A", "B", "C", "D", "E"}
		src := &seqSource{}
		r := New("ABC123", "conn-A", "A", catalog, src, testOptions())
		for _, nick := range nicks[1:] {
			_, err := r.AddPlayer(nick, "conn-"+nick)
			if err != nil {
				t.Fatalf("add %s: %v", nick, err)
			}
		}

		ops := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 20).Draw(t, "ops")
		for _, op := range ops {
			if r.Empty() {
				return
			}
			nick := rapid.SampledFrom(nicks).Draw(t, "nick")
			switch op {
			case 0:
				if conn, ok := r.ConnByNickname(nick); ok {
					_, _, _, _ = r.MarkDisconnected(conn)
				}
			case 1:
				if _, ok := r.PlayerByNickname(nick); ok {
					_, _ = r.Reconnect(nick, "re-"+nick)
				}
			case 2:
				_, _ = r.Kick(nick)
			case 3:
				_, _ = r.TransferAdmin()
			}
			if !r.Empty() && countAdmins(r.Views()) != 1 {
				t.Fatalf("admin count %d after op %d, views %+v",
					countAdmins(r.Views()), op, r.Views())
			}
		}
	})
}

// AdvancePhase out of VOTING succeeds iff every alive player has voted, and
// otherwise reports exactly the missing voters.
func TestPropertyVoteCompleteness(t *testing.T) {
	catalog := testCatalog(t)
	rapid.Check(t, func(t *rapid.T) {
		nicks := []string{"A", "B", "C", "D"}
		src := &seqSource{vals: []int{0, 0, 0}}
		r := New("ABC123", "conn-A", "A", catalog, src, testOptions())
		for _, nick := range nicks[1:] {
			if _, err := r.AddPlayer(nick, "conn-"+nick); err != nil {
				t.Fatalf("add %s: %v", nick, err)
			}
		}
		if _, err := r.StartGame(); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := r.AdvancePhase(); err != nil {
			t.Fatalf("to voting: %v", err)
		}

		voters := rapid.SliceOfNDistinct(rapid.SampledFrom(nicks), 0, len(nicks),
			func(s string) string { return s }).Draw(t, "voters")
		for _, nick := range voters {
			if _, err := r.AddVote("conn-"+nick, "A"); err != nil {
				t.Fatalf("vote %s: %v", nick, err)
			}
		}

		_, err := r.AdvancePhase()
		if len(voters) == len(nicks) {
			if err != nil {
				t.Fatalf("all voted but advance failed: %v", err)
			}
			return
		}

		var incomplete *VotesIncompleteError
		if !errors.As(err, &incomplete) {
			t.Fatalf("expected VotesIncompleteError, got %v", err)
		}
		voted := make(map[string]bool, len(voters))
		for _, v := range voters {
			voted[v] = true
		}
		var want []string
		for _, nick := range nicks {
			if !voted[nick] {
				want = append(want, nick)
			}
		}
		if len(want) != len(incomplete.Pending) {
			t.Fatalf("pending %v, want %v", incomplete.Pending, want)
		}
		for i := range want {
			if want[i] != incomplete.Pending[i] {
				t.Fatalf("pending %v, want %v", incomplete.Pending, want)
			}
		}
	})
}

// Voting never records entries for eliminated voters or targets.
func TestPropertyVotesReferenceAliveOnly(t *testing.T) {
	catalog := testCatalog(t)
	rapid.Check(t, func(t *rapid.T) {
		nicks := []string{"A", "B", "C", "D", "E"}
		src := &seqSource{vals: []int{0, 0, 0}}
		r := New("ABC123", "conn-A", "A", catalog, src, testOptions())
		for _, nick := range nicks[1:] {
			if _, err := r.AddPlayer(nick, "conn-"+nick); err != nil {
				t.Fatalf("add %s: %v", nick, err)
			}
		}
		if _, err := r.StartGame(); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := r.AdvancePhase(); err != nil {
			t.Fatalf("to voting: %v", err)
		}

		steps := rapid.SliceOfN(rapid.IntRange(0, 1), 1, 15).Draw(t, "steps")
		for _, step := range steps {
			voter := rapid.SampledFrom(nicks).Draw(t, "voter")
			target := rapid.SampledFrom(nicks).Draw(t, "target")
			switch step {
			case 0:
				_, _ = r.AddVote("conn-"+voter, target)
			case 1:
				_, _ = r.Eliminate(target)
			}

			alive := make(map[string]bool)
			for _, v := range r.Views() {
				if !v.IsEliminated {
					alive[v.Nickname] = true
				}
			}
			for _, vp := range r.TallyVotes().Votes {
				if !alive[vp.Voter] || !alive[vp.Target] {
					t.Fatalf("vote %+v references eliminated player", vp)
				}
			}
		}
	})
}
