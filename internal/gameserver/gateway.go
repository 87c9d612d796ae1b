package gameserver

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/imposter/internal/game/room"
)

// adminLeftMessage is broadcast when the admin's disconnect closes a room.
const adminLeftMessage = "Admin left the game. Room is closing."

// Gateway binds transport connections to rooms and players, dispatches
// inbound events to room operations, and fans resulting events out to the
// right connections. It owns all connection-lifecycle policy the Room does
// not know about: disconnect grace, admin-disconnect room closure, and the
// optional phase countdown.
//
// A single mutex serializes all gateway state transitions; room operations
// additionally serialize on their own per-room locks, so two rooms never
// contend beyond the gateway's bookkeeping.
type Gateway struct {
	registry    *room.Registry
	logger      *zap.Logger
	gracePeriod time.Duration
	sendBuffer  int

	mu          sync.Mutex
	entities    map[string]*ClientEntity            // connID -> entity
	bindings    map[string]string                   // connID -> room code
	roomConns   map[string]map[string]*ClientEntity // room code -> connID -> entity
	graceTimers map[graceKey]*scheduledTimer        // (room, nickname) -> timer
	phaseTimers map[string]*scheduledTimer          // room code -> countdown
}

// graceKey identifies one pending disconnect-grace timer.
type graceKey struct {
	roomCode string
	nickname string
}

// NewGateway creates a Gateway over the given registry.
//
// Precondition: registry and logger must be non-nil; gracePeriod must be
// positive; sendBuffer must be >= 1.
func NewGateway(registry *room.Registry, gracePeriod time.Duration, sendBuffer int, logger *zap.Logger) *Gateway {
	return &Gateway{
		registry:    registry,
		logger:      logger,
		gracePeriod: gracePeriod,
		sendBuffer:  sendBuffer,
		entities:    make(map[string]*ClientEntity),
		bindings:    make(map[string]string),
		roomConns:   make(map[string]map[string]*ClientEntity),
		graceTimers: make(map[graceKey]*scheduledTimer),
		phaseTimers: make(map[string]*scheduledTimer),
	}
}

// Connect registers a new connection and returns its entity. The transport's
// write loop drains the entity's events channel.
//
// Precondition: connID must be unique among live connections.
func (g *Gateway) Connect(connID string) *ClientEntity {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := NewClientEntity(connID, g.sendBuffer)
	g.entities[connID] = e
	return e
}

// Disconnect handles a dropped connection: the player is marked
// disconnected, the room is closed immediately if the player was admin, and
// otherwise a grace timer is started after which the player is removed for
// good.
func (g *Gateway) Disconnect(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entities[connID]; ok {
		e.Close()
		delete(g.entities, connID)
	}

	code, bound := g.bindings[connID]
	if !bound {
		return
	}
	delete(g.bindings, connID)
	if conns, ok := g.roomConns[code]; ok {
		delete(conns, connID)
	}

	r, err := g.registry.Get(code)
	if err != nil {
		return
	}
	nickname, wasAdmin, players, err := r.MarkDisconnected(connID)
	if err != nil {
		// The identity was already rebound by a racing reconnect.
		return
	}

	if wasAdmin {
		// Admin disconnects are not eligible for reconnect grace: the
		// room closes immediately.
		g.logger.Info("admin disconnected, closing room",
			zap.String("room", code),
			zap.String("nickname", nickname),
		)
		g.broadcastLocked(code, AdminLeftRoomClosed{Message: adminLeftMessage, Players: players})
		g.closeRoomLocked(code)
		return
	}

	g.logger.Info("player disconnected",
		zap.String("room", code),
		zap.String("nickname", nickname),
		zap.Duration("grace", g.gracePeriod),
	)
	g.broadcastLocked(code, PlayerDisconnected{Nickname: nickname, Players: players})

	key := graceKey{roomCode: code, nickname: nickname}
	if t, ok := g.graceTimers[key]; ok {
		t.Stop()
	}
	g.graceTimers[key] = newScheduledTimer(g.gracePeriod, func() {
		g.onGraceExpired(code, nickname)
	})
}

// Dispatch applies one inbound event from the given connection. All failures
// surface as an error event to the sender; room state is never left
// partially mutated.
func (g *Gateway) Dispatch(connID string, ev ClientEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch ev := ev.(type) {
	case CreateRoom:
		g.handleCreateRoom(connID, ev)
	case JoinRoom:
		g.handleJoinRoom(connID, ev)
	case ReconnectPlayer:
		g.handleReconnect(connID, ev)
	case StartGame:
		g.handleStartGame(connID)
	case NextPhase:
		g.handleNextPhase(connID)
	case Vote:
		g.handleVote(connID, ev)
	case KickPlayer:
		g.handleKick(connID, ev)
	case RestartGame:
		g.handleRestart(connID)
	case StopGame:
		g.handleStop(connID)
	case ToggleTimer:
		g.handleToggleTimer(connID, ev)
	default:
		g.sendErrorLocked(connID, "unsupported event", nil)
	}
}

func (g *Gateway) handleCreateRoom(connID string, ev CreateRoom) {
	if _, bound := g.bindings[connID]; bound {
		g.sendErrorLocked(connID, "already in a room", nil)
		return
	}
	if ev.Nickname == "" {
		g.sendErrorLocked(connID, "nickname must not be empty", nil)
		return
	}

	r, err := g.registry.Create(connID, ev.Nickname)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	g.bindLocked(connID, r.Code())

	g.logger.Info("room created",
		zap.String("room", r.Code()),
		zap.String("nickname", ev.Nickname),
	)
	g.sendToLocked(connID, RoomCreated{RoomCode: r.Code(), Players: r.Views()})
}

func (g *Gateway) handleJoinRoom(connID string, ev JoinRoom) {
	if _, bound := g.bindings[connID]; bound {
		g.sendErrorLocked(connID, "already in a room", nil)
		return
	}
	if ev.Nickname == "" {
		g.sendErrorLocked(connID, "nickname must not be empty", nil)
		return
	}

	r, err := g.registry.Get(ev.RoomCode)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	players, err := r.AddPlayer(ev.Nickname, connID)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	g.bindLocked(connID, r.Code())

	g.logger.Info("player joined",
		zap.String("room", r.Code()),
		zap.String("nickname", ev.Nickname),
	)
	g.broadcastLocked(r.Code(), PlayerJoined{Nickname: ev.Nickname, Players: players})
}

func (g *Gateway) handleReconnect(connID string, ev ReconnectPlayer) {
	if _, bound := g.bindings[connID]; bound {
		g.sendErrorLocked(connID, "already in a room", nil)
		return
	}
	r, err := g.registry.Get(ev.RoomCode)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	st, err := r.Reconnect(ev.Nickname, connID)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	g.bindLocked(connID, r.Code())

	// A reconnect supersedes any pending grace removal.
	key := graceKey{roomCode: r.Code(), nickname: ev.Nickname}
	if t, ok := g.graceTimers[key]; ok {
		t.Stop()
		delete(g.graceTimers, key)
	}

	g.logger.Info("player reconnected",
		zap.String("room", r.Code()),
		zap.String("nickname", ev.Nickname),
	)
	g.sendToLocked(connID, Reconnected{GameState: st.State, Players: st.Players})
	if st.HasWord {
		// Re-deliver the stored assignment, never a fresh draw.
		g.sendToLocked(connID, WordAssigned{Word: st.Word, IsImposter: st.IsImposter})
	}
	g.broadcastLocked(r.Code(), PlayerReconnected{Nickname: ev.Nickname, Players: st.Players})
}

func (g *Gateway) handleStartGame(connID string) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	res, err := r.StartGame()
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}

	g.logger.Info("game started",
		zap.String("room", r.Code()),
		zap.String("imposter", res.Imposter),
		zap.String("starter", res.Starter),
		zap.Int("players", len(res.Players)),
	)
	g.broadcastLocked(r.Code(), GameStarted{
		Phase:    res.Phase,
		Round:    res.Round,
		Players:  res.Players,
		WordPair: []string{res.Pair.Common, res.Pair.Imposter},
		Imposter: res.Imposter,
		Starter:  res.Starter,
	})
	// Words are the one per-player-private payload: unicast only.
	for target, assignment := range res.Assignments {
		g.sendToLocked(target, WordAssigned(assignment))
	}
	g.scheduleCountdownLocked(r)
}

func (g *Gateway) handleNextPhase(connID string) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	g.advanceLocked(r, connID)
}

// advanceLocked runs one phase advance and fans out the result. Failures go
// only to requesterConn.
func (g *Gateway) advanceLocked(r *room.Room, requesterConn string) {
	res, err := r.AdvancePhase()
	if err != nil {
		var incomplete *room.VotesIncompleteError
		if errors.As(err, &incomplete) {
			g.sendErrorLocked(requesterConn, incomplete.Error(), incomplete.Pending)
			return
		}
		g.sendErrorLocked(requesterConn, err.Error(), nil)
		return
	}

	code := r.Code()
	switch {
	case res.Outcome == nil:
		g.broadcastLocked(code, PhaseChanged{
			Phase:       res.Phase,
			Round:       res.Round,
			Players:     res.Players,
			VoteResults: res.VoteResults,
		})
	case res.Outcome.Winner != "":
		if res.Outcome.EliminatedPlayer != "" {
			g.broadcastLocked(code, PlayerEliminated{
				Nickname:    res.Outcome.EliminatedPlayer,
				WasImposter: res.Outcome.WasImposter,
			})
		}
		g.logger.Info("game ended",
			zap.String("room", code),
			zap.String("winner", string(res.Outcome.Winner)),
		)
		g.broadcastLocked(code, GameEnded{
			Winner:           res.Outcome.Winner,
			EliminatedPlayer: res.Outcome.EliminatedPlayer,
			WasImposter:      res.Outcome.WasImposter,
			Players:          res.Players,
		})
	default:
		if res.Outcome.EliminatedPlayer != "" {
			g.broadcastLocked(code, PlayerEliminated{
				Nickname:    res.Outcome.EliminatedPlayer,
				WasImposter: res.Outcome.WasImposter,
			})
		}
		g.broadcastLocked(code, RoundContinued{
			Round:            res.Round,
			Players:          res.Players,
			EliminatedPlayer: res.Outcome.EliminatedPlayer,
			WasImposter:      res.Outcome.WasImposter,
		})
	}
	g.scheduleCountdownLocked(r)
}

func (g *Gateway) handleVote(connID string, ev Vote) {
	r, ok := g.boundRoomLocked(connID)
	if !ok {
		return
	}
	voter, err := r.AddVote(connID, ev.TargetNickname)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	g.broadcastLocked(r.Code(), VoteAdded{Voter: voter, Target: ev.TargetNickname})
}

func (g *Gateway) handleKick(connID string, ev KickPlayer) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	res, err := r.Kick(ev.Nickname)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return
	}
	code := r.Code()

	key := graceKey{roomCode: code, nickname: ev.Nickname}
	if t, ok := g.graceTimers[key]; ok {
		t.Stop()
		delete(g.graceTimers, key)
	}

	// Tell the removed player, then unbind its connection from the room.
	g.sendToLocked(res.ConnID, Kicked{})
	delete(g.bindings, res.ConnID)
	if conns, ok := g.roomConns[code]; ok {
		delete(conns, res.ConnID)
	}

	g.logger.Info("player kicked",
		zap.String("room", code),
		zap.String("nickname", ev.Nickname),
	)
	g.broadcastLocked(code, PlayerKicked{Nickname: ev.Nickname, Players: res.Players})
	if res.NewAdmin != nil {
		g.broadcastLocked(code, AdminTransferred{Nickname: res.NewAdmin.Nickname, Players: res.Players})
	}
	if res.Empty {
		g.closeRoomLocked(code)
	}
}

func (g *Gateway) handleRestart(connID string) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	players := r.Restart()
	g.cancelCountdownLocked(r.Code())
	g.broadcastLocked(r.Code(), GameRestarted{Players: players})
}

func (g *Gateway) handleStop(connID string) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	players := r.Stop()
	g.cancelCountdownLocked(r.Code())
	g.broadcastLocked(r.Code(), GameStopped{Players: players})
}

func (g *Gateway) handleToggleTimer(connID string, ev ToggleTimer) {
	r, ok := g.adminRoomLocked(connID)
	if !ok {
		return
	}
	cfg := r.SetTimer(ev.Enabled, ev.Duration)
	g.broadcastLocked(r.Code(), TimerToggled{Enabled: cfg.Enabled, Duration: cfg.Duration})
	g.scheduleCountdownLocked(r)
}

// onGraceExpired removes a player whose grace period passed without a
// reconnect. Fires from a timer goroutine; a reconnect that won the race has
// already cancelled the timer or reconnected the player.
func (g *Gateway) onGraceExpired(code, nickname string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.graceTimers, graceKey{roomCode: code, nickname: nickname})

	r, err := g.registry.Get(code)
	if err != nil {
		return
	}
	v, ok := r.PlayerByNickname(nickname)
	if !ok || v.IsConnected {
		return
	}

	// During VOTING a dead connection must not stall vote completion:
	// record the elimination before removing the player.
	if r.CurrentPhase() == room.PhaseVoting && !v.IsEliminated {
		if wasImposter, err := r.Eliminate(nickname); err == nil {
			g.broadcastLocked(code, PlayerEliminated{Nickname: nickname, WasImposter: wasImposter})
		}
	}

	res, err := r.Kick(nickname)
	if err != nil {
		return
	}
	g.logger.Info("player removed after grace period",
		zap.String("room", code),
		zap.String("nickname", nickname),
	)
	g.broadcastLocked(code, PlayerKicked{Nickname: nickname, Players: res.Players})
	if res.NewAdmin != nil {
		g.broadcastLocked(code, AdminTransferred{Nickname: res.NewAdmin.Nickname, Players: res.Players})
	}
	if res.Empty {
		g.closeRoomLocked(code)
	}
}

// onCountdownFired auto-advances the phase when the countdown elapses. The
// firing timer identifies itself so a stale fire racing a manual advance
// cannot act on a countdown that has already been replaced.
func (g *Gateway) onCountdownFired(code string, fired *scheduledTimer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phaseTimers[code] != fired {
		return
	}
	delete(g.phaseTimers, code)

	r, err := g.registry.Get(code)
	if err != nil {
		return
	}
	if !r.Timer().Enabled {
		return
	}
	// The countdown drives the same advance contract as the admin's
	// next-phase event. A failing advance, such as an incomplete vote,
	// reports to the admin and leaves the room where it is.
	g.advanceLocked(r, r.AdminConn())
}

// scheduleCountdownLocked arms, re-arms, or cancels the room's phase
// countdown to match the current timer config and phase.
func (g *Gateway) scheduleCountdownLocked(r *room.Room) {
	code := r.Code()
	g.cancelCountdownLocked(code)

	cfg := r.Timer()
	if !cfg.Enabled || cfg.Duration <= 0 {
		return
	}
	switch r.CurrentPhase() {
	case room.PhaseStatementRound, room.PhaseVoting:
	default:
		return
	}
	var t *scheduledTimer
	t = newScheduledTimer(
		time.Duration(cfg.Duration)*time.Second,
		func() { g.onCountdownFired(code, t) },
	)
	g.phaseTimers[code] = t
}

func (g *Gateway) cancelCountdownLocked(code string) {
	if t, ok := g.phaseTimers[code]; ok {
		t.Stop()
		delete(g.phaseTimers, code)
	}
}

// closeRoomLocked tears a room down: every pending timer is cancelled so a
// late fire cannot resurrect destroyed state, all bindings are dropped, and
// the code is released.
func (g *Gateway) closeRoomLocked(code string) {
	g.cancelCountdownLocked(code)
	for key, t := range g.graceTimers {
		if key.roomCode == code {
			t.Stop()
			delete(g.graceTimers, key)
		}
	}
	for connID := range g.roomConns[code] {
		delete(g.bindings, connID)
	}
	delete(g.roomConns, code)
	g.registry.Destroy(code)

	g.logger.Info("room closed", zap.String("room", code))
}

// bindLocked attaches a connection to a room's fan-out set.
func (g *Gateway) bindLocked(connID, code string) {
	g.bindings[connID] = code
	if g.roomConns[code] == nil {
		g.roomConns[code] = make(map[string]*ClientEntity)
	}
	if e, ok := g.entities[connID]; ok {
		g.roomConns[code][connID] = e
	}
}

// boundRoomLocked resolves the sender's room, reporting an error event when
// the connection is not in one.
func (g *Gateway) boundRoomLocked(connID string) (*room.Room, bool) {
	code, bound := g.bindings[connID]
	if !bound {
		g.sendErrorLocked(connID, "not in a room", nil)
		return nil, false
	}
	r, err := g.registry.Get(code)
	if err != nil {
		g.sendErrorLocked(connID, err.Error(), nil)
		return nil, false
	}
	return r, true
}

// adminRoomLocked resolves the sender's room and enforces admin authority.
func (g *Gateway) adminRoomLocked(connID string) (*room.Room, bool) {
	r, ok := g.boundRoomLocked(connID)
	if !ok {
		return nil, false
	}
	if !r.IsAdmin(connID) {
		g.sendErrorLocked(connID, room.ErrNotAuthorized.Error(), nil)
		return nil, false
	}
	return r, true
}

func (g *Gateway) sendErrorLocked(connID, message string, pendingVoters []string) {
	g.sendToLocked(connID, ErrorEvent{Message: message, PendingVoters: pendingVoters})
}

// sendToLocked unicasts one event; unknown or closed connections are
// silently skipped.
func (g *Gateway) sendToLocked(connID string, ev ServerEvent) {
	e, ok := g.entities[connID]
	if !ok {
		return
	}
	g.pushLocked(e, ev)
}

// broadcastLocked fans one event out to every connection joined to the room.
func (g *Gateway) broadcastLocked(code string, ev ServerEvent) {
	for _, e := range g.roomConns[code] {
		g.pushLocked(e, ev)
	}
}

func (g *Gateway) pushLocked(e *ClientEntity, ev ServerEvent) {
	data, err := EncodeServerEvent(ev)
	if err != nil {
		g.logger.Error("encoding event",
			zap.String("event", ev.EventType()),
			zap.Error(err),
		)
		return
	}
	if err := e.Push(data); err != nil {
		g.logger.Debug("dropping event for slow connection",
			zap.String("conn", e.ConnID()),
			zap.String("event", ev.EventType()),
			zap.Error(err),
		)
	}
}
