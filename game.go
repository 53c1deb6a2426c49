package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	requestBufSize = 64
	reportTimeout  = 10 * time.Second
	defaultName    = "Commander"
)

var (
	ErrMatchMismatch = errors.New("match id mismatch")
	ErrRosterTaken   = errors.New("roster already holds other players")
	ErrGameOver      = errors.New("game over")
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Internal commands, only ever produced by this process
type disconnectCmd struct{}

type graceExpiredCmd struct {
	slot int
	gen  int
}

type reserveCmd struct {
	match   string
	players []string
	reply   chan error
}

func (disconnectCmd) command()   {}
func (graceExpiredCmd) command() {}
func (reserveCmd) command()      {}

// request is one item on the serialization queue
type request struct {
	playerID string
	conn     Broadcaster
	cmd      Command
}

// Status is a read-only summary published for the liveness probe
type Status struct {
	MatchID   string           `json:"match"`
	Phase     string           `json:"phase"`
	Round     int              `json:"round"`
	Players   int              `json:"players"`
	Connected int              `json:"connected"`
	TimeBanks [2]int           `json:"timeBanks"`
	Rejected  map[Reject]int64 `json:"rejected"`
}

// GameConfig wires a game to its collaborators
type GameConfig struct {
	MatchID   string
	Privacy   string
	Rules     MatchConfig
	Reporter  Reporter   // optional
	Analytics *Analytics // optional
}

// Game owns the session of one match. Every mutation happens on the Run
// goroutine; other goroutines only Submit.
type Game struct {
	sess      *Session
	cfg       MatchConfig
	reporter  Reporter
	analytics *Analytics
	log       *log.Entry

	requests chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	clock    *time.Ticker
	grace    [2]*time.Timer
	graceGen [2]int

	encode    func(SessionView) ([]byte, error)
	replay    Replay
	stats     [2]CombatStats
	startedAt time.Time
	result    *MatchResult
	reports   sync.WaitGroup

	rejectMu   sync.Mutex
	rejections map[Reject]int64
	status     atomic.Pointer[Status]
}

// NewGame creates a game in the waiting phase
func NewGame(cfg GameConfig) *Game {
	g := &Game{
		sess:       NewSession(cfg.MatchID, cfg.Privacy, cfg.Rules),
		cfg:        cfg.Rules,
		reporter:   cfg.Reporter,
		analytics:  cfg.Analytics,
		log:        log.WithField("match", cfg.MatchID),
		requests:   make(chan request, requestBufSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		rejections: make(map[Reject]int64),
		encode:     EncodeSnapshot,
	}
	g.publishStatus()
	return g
}

// Run processes requests and clock ticks until the match ends or Stop is
// called.
func (g *Game) Run() {
	defer close(g.done)
	for {
		var tick <-chan time.Time
		if g.clock != nil {
			tick = g.clock.C
		}
		select {
		case req := <-g.requests:
			g.handle(req)
		case <-tick:
			g.tick()
		case <-g.stop:
			g.shutdown()
		}
		g.publishStatus()
		if g.sess.Phase == PhaseEnded {
			return
		}
	}
}

// Stop ends the match from outside (orchestrator teardown)
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Done is closed once Run has returned
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// Submit queues a command for the game goroutine. It returns false once the
// game is over.
func (g *Game) Submit(playerID string, conn Broadcaster, cmd Command) bool {
	select {
	case <-g.done:
		return false
	default:
	}
	select {
	case g.requests <- request{playerID: playerID, conn: conn, cmd: cmd}:
		return true
	case <-g.done:
		return false
	}
}

// Reserve is the matchmaking call: bind the match to two player ids
func (g *Game) Reserve(matchID string, players []string) error {
	reply := make(chan error, 1)
	if !g.Submit("", nil, reserveCmd{match: matchID, players: players, reply: reply}) {
		return ErrGameOver
	}
	select {
	case err := <-reply:
		return err
	case <-g.done:
		return ErrGameOver
	}
}

// Status returns the last published summary
func (g *Game) Status() Status {
	return *g.status.Load()
}

// MatchID returns the id this process serves
func (g *Game) MatchID() string {
	return g.sess.ID
}

// handle dispatches one request. Rule violations are dropped silently as far
// as the client is concerned; they are only logged and counted.
func (g *Game) handle(req request) {
	switch cmd := req.cmd.(type) {
	case JoinCmd:
		g.join(req, cmd)
	case MoveCmd:
		g.move(req, cmd)
	case ActCmd:
		g.act(req, cmd)
	case EndTurnCmd:
		g.endTurn(req)
	case SurrenderCmd:
		g.surrender(req)
	case disconnectCmd:
		g.disconnect(req)
	case graceExpiredCmd:
		g.graceExpired(cmd)
	case reserveCmd:
		cmd.reply <- g.reserve(cmd)
	}
}

// caller resolves the player behind a request. Only the connection currently
// bound to a player may act for it.
func (g *Game) caller(req request) *Player {
	p := g.sess.PlayerByID(req.playerID)
	if p == nil || p.conn == nil || p.conn != req.conn {
		return nil
	}
	return p
}

func (g *Game) join(req request, cmd JoinCmd) {
	if req.conn == nil || req.playerID == "" {
		return
	}
	if cmd.Match != "" && cmd.Match != g.sess.ID {
		req.conn.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: ErrMatchMismatch.Error()}})
		return
	}
	name := cmd.Name
	if name == "" && g.sess.PlayerByID(req.playerID) == nil {
		name = defaultName
	}

	res := g.sess.Join(req.playerID, name, cmd.Avatar, req.conn)
	if res.Reject != "" {
		g.log.WithFields(log.Fields{"player": req.playerID, "reason": res.Reject}).Info("join refused")
		req.conn.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: res.Reject}})
		return
	}
	g.cancelGrace(res.Slot)
	req.conn.SendJSON(Envelope{T: MsgJoined, Data: JoinedMsg{Slot: res.Slot, Match: g.sess.ID, Reconnect: res.Reconnect}})

	fields := log.Fields{"player": req.playerID, "slot": res.Slot}
	if res.Reconnect {
		g.log.WithFields(fields).Info("player reconnected")
		g.track(EvtPlayerReconnect, req.playerID, "")
	} else {
		g.log.WithFields(fields).Info("player joined")
		g.track(EvtPlayerJoin, req.playerID, "")
		g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: res.Slot, Kind: ReplayJoin, Detail: req.playerID, At: time.Now()})
	}
	if res.Started {
		g.startedAt = time.Now()
		g.startClock()
		g.replay.Append(ReplayEvent{Slot: -1, Kind: ReplayStart, At: g.startedAt})
		g.log.Info("match started")
		g.track(EvtMatchStart, "", "")
	}
	g.broadcastState()
}

func (g *Game) move(req request, cmd MoveCmd) {
	p := g.caller(req)
	if p == nil {
		g.reject(req, MsgMove, RejectNotPlayer)
		return
	}
	u, r := g.sess.CheckMove(p.Slot, cmd.Unit, cmd.Row, cmd.Col)
	if r != RejectNone {
		g.reject(req, MsgMove, r)
		return
	}
	out := g.sess.ApplyMove(p.Slot, u, cmd.Row, cmd.Col)
	g.stats[p.Slot].Moves++
	from, to := out.From, out.To
	g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: p.Slot, Kind: ReplayMove, Unit: out.UnitID, From: &from, To: &to, At: time.Now()})

	g.sess.refreshVisibility()
	g.sendMoved(out)
	g.broadcastState()
}

func (g *Game) act(req request, cmd ActCmd) {
	p := g.caller(req)
	if p == nil {
		g.reject(req, MsgAct, RejectNotPlayer)
		return
	}
	u, target, owner, r := g.sess.CheckAct(p.Slot, cmd.Unit, cmd.Row, cmd.Col)
	if r != RejectNone {
		g.reject(req, MsgAct, r)
		return
	}
	actorCell := u.Cell()
	out := g.sess.ApplyAct(p.Slot, u, target, owner)

	st := &g.stats[p.Slot]
	st.Actions++
	if out.Heal {
		st.Healing += out.Amount
	} else {
		st.DamageDealt += out.Amount
		g.stats[owner].DamageTaken += out.Amount
		if out.Killed {
			st.Kills++
			g.stats[owner].UnitsLost++
		}
	}
	to := out.Target
	g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: p.Slot, Kind: ReplayAct, Unit: out.UnitID, From: &actorCell, To: &to, HP: out.TargetHP, At: time.Now()})

	g.sess.refreshVisibility()
	g.sendActed(out, actorCell)

	if out.Killed && len(g.sess.Players[owner].Units) == 0 {
		g.finish(p.Slot, EndEliminate)
		return
	}
	g.broadcastState()
}

func (g *Game) endTurn(req request) {
	p := g.caller(req)
	if p == nil {
		g.reject(req, MsgEndTurn, RejectNotPlayer)
		return
	}
	if r := g.sess.CheckEndTurn(p.Slot); r != RejectNone {
		g.reject(req, MsgEndTurn, r)
		return
	}
	g.sess.AdvanceTurn()
	g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: p.Slot, Kind: ReplayEndTurn, At: time.Now()})
	g.broadcastState()
}

func (g *Game) surrender(req request) {
	p := g.caller(req)
	if p == nil {
		g.reject(req, MsgSurrender, RejectNotPlayer)
		return
	}
	if g.sess.Phase != PhaseActive {
		g.reject(req, MsgSurrender, RejectNotActive)
		return
	}
	g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: p.Slot, Kind: ReplaySurrender, At: time.Now()})
	g.finish(1-p.Slot, EndSurrender)
}

func (g *Game) disconnect(req request) {
	p := g.sess.PlayerByID(req.playerID)
	if p == nil || p.conn == nil || p.conn != req.conn {
		return
	}
	p.conn = nil
	g.log.WithField("player", p.ID).Info("player disconnected")
	g.track(EvtPlayerDisconnect, p.ID, "")
	g.startGrace(p.Slot)
	g.broadcastState()
}

func (g *Game) startGrace(slot int) {
	if g.sess.Phase == PhaseEnded {
		return
	}
	g.cancelGrace(slot)
	gen := g.graceGen[slot]
	g.grace[slot] = time.AfterFunc(g.cfg.ReconnectGrace, func() {
		g.Submit("", nil, graceExpiredCmd{slot: slot, gen: gen})
	})
}

func (g *Game) cancelGrace(slot int) {
	g.graceGen[slot]++
	if g.grace[slot] != nil {
		g.grace[slot].Stop()
		g.grace[slot] = nil
	}
}

// graceExpired applies the reconnection policy: an absent player forfeits an
// active match, and a waiting session with nobody connected is abandoned.
func (g *Game) graceExpired(cmd graceExpiredCmd) {
	if cmd.gen != g.graceGen[cmd.slot] {
		return
	}
	g.grace[cmd.slot] = nil
	p := g.sess.Players[cmd.slot]
	if p == nil || p.Connected() {
		return
	}
	switch g.sess.Phase {
	case PhaseActive:
		g.log.WithField("player", p.ID).Info("reconnection grace expired")
		g.finish(1-cmd.slot, EndForfeit)
	case PhaseWaiting:
		if g.sess.ConnectedCount() == 0 {
			g.finish(-1, EndAbandoned)
		}
	}
}

func (g *Game) reserve(cmd reserveCmd) error {
	if cmd.match != "" && cmd.match != g.sess.ID {
		return ErrMatchMismatch
	}
	if g.sess.Phase == PhaseEnded {
		return ErrGameOver
	}
	for _, p := range g.sess.Players {
		if p == nil {
			continue
		}
		found := false
		for _, id := range cmd.players {
			if id == p.ID {
				found = true
			}
		}
		if !found {
			return ErrRosterTaken
		}
	}
	g.sess.Reserve(cmd.players)
	g.log.WithField("players", cmd.players).Info("roster reserved")
	return nil
}

// tick is the turn clock: charge the side to move and end on expiry
func (g *Game) tick() {
	if g.sess.Phase != PhaseActive {
		return
	}
	active := g.sess.ActiveSlot()
	if g.sess.TickClock(1) {
		g.log.WithField("slot", active).Info("time bank expired")
		g.finish(1-active, EndTimeout)
		return
	}
	g.broadcastState()
}

func (g *Game) startClock() {
	if g.clock == nil {
		g.clock = time.NewTicker(g.cfg.TickEvery)
	}
}

func (g *Game) stopClock() {
	if g.clock != nil {
		g.clock.Stop()
		g.clock = nil
	}
}

func (g *Game) shutdown() {
	g.sendAll(Envelope{T: MsgShutdown})
	g.finish(-1, EndShutdown)
}

// finish ends the match exactly once: stop timers, announce the winner and
// hand the result to the persistence service.
func (g *Game) finish(winner int, reason string) {
	if g.sess.Phase == PhaseEnded {
		return
	}
	g.sess.end()
	g.stopClock()
	for slot := range g.grace {
		g.cancelGrace(slot)
	}

	msg := GameOverMsg{WinnerSlot: winner, Reason: reason}
	if winner >= 0 && g.sess.Players[winner] != nil {
		msg.Winner = g.sess.Players[winner].ID
	}
	g.replay.Append(ReplayEvent{Round: g.sess.Round, Slot: winner, Kind: ReplayEnd, Detail: reason, At: time.Now()})
	g.sendAll(Envelope{T: MsgGameOver, Data: msg})
	g.broadcastState()

	res := g.buildResult(msg)
	g.result = &res
	g.log.WithFields(log.Fields{"winner": msg.Winner, "reason": reason, "rounds": res.Rounds}).Info("match over")
	g.track(EvtMatchEnd, msg.Winner, reason)

	if g.reporter != nil {
		g.reports.Add(1)
		go func(res MatchResult) {
			defer g.reports.Done()
			ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
			defer cancel()
			if err := g.reporter.ReportMatch(ctx, res); err != nil {
				g.log.WithError(err).Warn("failed to report match result")
			}
		}(res)
	}
}

func (g *Game) buildResult(msg GameOverMsg) MatchResult {
	res := MatchResult{
		MatchID:    g.sess.ID,
		WinnerID:   msg.Winner,
		WinnerSlot: msg.WinnerSlot,
		Reason:     msg.Reason,
		Rounds:     g.sess.Round,
		StartedAt:  g.startedAt,
		Stats:      g.stats,
		Replay:     g.replay.Events(),
	}
	if !g.startedAt.IsZero() {
		res.Duration = time.Since(g.startedAt)
	}
	for slot, p := range g.sess.Players {
		if p != nil {
			res.Players[slot] = p.ID
			res.Names[slot] = p.Name
		}
	}
	return res
}

// WaitReports blocks until in-flight persistence reports have finished
func (g *Game) WaitReports() {
	g.reports.Wait()
}

// Result returns the final result once the match has ended
func (g *Game) Result() *MatchResult {
	return g.result
}

func (g *Game) reject(req request, kind string, r Reject) {
	if p := g.sess.PlayerByID(req.playerID); p != nil {
		g.stats[p.Slot].Rejected++
	}
	g.rejectMu.Lock()
	g.rejections[r]++
	g.rejectMu.Unlock()
	g.log.WithFields(log.Fields{"player": req.playerID, "cmd": kind, "reason": r}).Debug("command rejected")
	g.track(EvtCommandRejected, req.playerID, kind+":"+string(r))
}

// broadcastState sends every connected player its own redacted snapshot
func (g *Game) broadcastState() {
	for slot, p := range g.sess.Players {
		if p == nil || p.conn == nil {
			continue
		}
		data, err := g.encode(g.sess.View(slot))
		if err != nil {
			g.log.WithError(err).WithField("slot", slot).Error("failed to encode snapshot")
			continue
		}
		p.conn.SendBinary(data)
	}
}

// sees reports whether the slot currently sees every one of the cells
func (g *Game) sees(slot int, cells ...Cell) bool {
	for _, c := range cells {
		if !g.sess.CanSee(slot, c) {
			return false
		}
	}
	return true
}

// sendMoved tells the mover, and an opponent only when both ends of the
// move are in its sight.
func (g *Game) sendMoved(out MoveOutcome) {
	env := Envelope{T: MsgMoved, Data: MovedMsg{Slot: out.Slot, Unit: out.UnitID, To: out.To, From: out.From}}
	for slot, p := range g.sess.Players {
		if p == nil || p.conn == nil {
			continue
		}
		if slot == out.Slot || g.sees(slot, out.From, out.To) {
			p.conn.SendJSON(env)
		}
	}
}

// sendActed tells the actor, and any observer that sees both the actor and
// the target. A defender hit from the fog learns the result but not which
// unit fired.
func (g *Game) sendActed(out ActOutcome, actor Cell) {
	msg := ActedMsg{
		Slot:       out.Slot,
		Unit:       out.UnitID,
		Target:     out.Target,
		TargetSlot: out.TargetSlot,
		TargetHP:   out.TargetHP,
		Heal:       out.Heal,
		Killed:     out.Killed,
	}
	for slot, p := range g.sess.Players {
		if p == nil || p.conn == nil {
			continue
		}
		switch {
		case slot == out.Slot || g.sees(slot, actor, out.Target):
			p.conn.SendJSON(Envelope{T: MsgActed, Data: msg})
		case slot == out.TargetSlot:
			hidden := msg
			hidden.Unit = -1
			p.conn.SendJSON(Envelope{T: MsgActed, Data: hidden})
		}
	}
}

// sendAll delivers a message to every connected player
func (g *Game) sendAll(env Envelope) {
	for _, p := range g.sess.Players {
		if p != nil && p.conn != nil {
			p.conn.SendJSON(env)
		}
	}
}

func (g *Game) track(evtType, playerID, data string) {
	if g.analytics != nil {
		g.analytics.Track(evtType, playerID, g.sess.ID, data)
	}
}

func (g *Game) publishStatus() {
	st := &Status{
		MatchID:   g.sess.ID,
		Phase:     g.sess.Phase.String(),
		Round:     g.sess.Round,
		Players:   g.sess.PlayerCount(),
		Connected: g.sess.ConnectedCount(),
		TimeBanks: g.sess.TimeBanks,
		Rejected:  make(map[Reject]int64),
	}
	g.rejectMu.Lock()
	for k, v := range g.rejections {
		st.Rejected[k] = v
	}
	g.rejectMu.Unlock()
	g.status.Store(st)
}
