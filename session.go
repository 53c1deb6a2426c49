package main

import "github.com/samber/lo"

// Join rejection reasons sent back to the connecting client
const (
	JoinFull       = "full"
	JoinNotInvited = "not invited"
	JoinEnded      = "ended"
)

// Session is the authoritative state of exactly one match
type Session struct {
	ID        string
	Privacy   string
	Phase     MatchPhase
	Players   [2]*Player
	Arena     *Arena
	Round     int
	TimeBanks [2]int

	cfg      MatchConfig
	reserved []string // player ids handed out by matchmaking
	visible  [2]map[Cell]bool
}

// NewSession creates an empty waiting session on the template arena
func NewSession(id, privacy string, cfg MatchConfig) *Session {
	return &Session{
		ID:        id,
		Privacy:   privacy,
		Phase:     PhaseWaiting,
		Arena:     NewArena(),
		TimeBanks: [2]int{cfg.MaxTime, cfg.MaxTime},
		cfg:       cfg,
	}
}

// JoinResult describes what a join did
type JoinResult struct {
	Slot      int
	Reconnect bool
	Started   bool   // this join made the match active
	Reject    string // non-empty when refused
}

// Reserve restricts the roster to the given player ids
func (s *Session) Reserve(ids []string) {
	s.reserved = lo.Uniq(lo.Compact(ids))
}

// Join binds a player to a slot. An existing player id is a reconnect and
// only rebinds the connection.
func (s *Session) Join(playerID, name, avatar string, conn Broadcaster) JoinResult {
	if p := s.PlayerByID(playerID); p != nil {
		p.conn = conn
		if name != "" {
			p.Name = name
		}
		if avatar != "" {
			p.Avatar = avatar
		}
		return JoinResult{Slot: p.Slot, Reconnect: true}
	}
	if s.Phase == PhaseEnded {
		return JoinResult{Slot: -1, Reject: JoinEnded}
	}
	if len(s.reserved) > 0 && !lo.Contains(s.reserved, playerID) {
		return JoinResult{Slot: -1, Reject: JoinNotInvited}
	}
	slot := -1
	for i, p := range s.Players {
		if p == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return JoinResult{Slot: -1, Reject: JoinFull}
	}

	p := NewPlayer(playerID, name, avatar, slot)
	p.conn = conn
	p.SpawnRoster(s.Arena.Starts[slot])
	s.Players[slot] = p

	res := JoinResult{Slot: slot}
	if s.PlayerCount() == 2 {
		s.start()
		res.Started = true
	}
	return res
}

// start moves the match to active with fresh banks and slot 0 to move
func (s *Session) start() {
	s.Phase = PhaseActive
	s.Round = 0
	s.TimeBanks = [2]int{s.cfg.MaxTime, s.cfg.MaxTime}
	s.Players[0].SetReady(true)
	s.Players[1].SetReady(false)
}

// ActiveSlot is the side to move, derived only from round parity
func (s *Session) ActiveSlot() int {
	return s.Round % 2
}

// PlayerByID returns the player with the external id
func (s *Session) PlayerByID(id string) *Player {
	for _, p := range s.Players {
		if p != nil && p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerCount returns how many slots are taken
func (s *Session) PlayerCount() int {
	return lo.CountBy(s.Players[:], func(p *Player) bool { return p != nil })
}

// ConnectedCount returns how many players have a live connection
func (s *Session) ConnectedCount() int {
	return lo.CountBy(s.Players[:], func(p *Player) bool { return p != nil && p.Connected() })
}

// UnitAt finds the live unit on a cell and the slot owning it
func (s *Session) UnitAt(row, col int) (*Unit, int) {
	for slot, p := range s.Players {
		if p == nil {
			continue
		}
		if u := p.UnitAt(row, col); u != nil {
			return u, slot
		}
	}
	return nil, -1
}

// end marks the session terminal and freezes all units
func (s *Session) end() {
	s.Phase = PhaseEnded
	for _, p := range s.Players {
		if p != nil {
			p.SetReady(false)
		}
	}
}
