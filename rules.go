package main

// Reject names why a command was dropped. RejectNone means accepted.
type Reject string

const (
	RejectNone        Reject = ""
	RejectNotActive   Reject = "not_active"
	RejectNotYourTurn Reject = "not_your_turn"
	RejectNoUnit      Reject = "no_unit"
	RejectSpent       Reject = "spent"
	RejectDistance    Reject = "distance"
	RejectTerrain     Reject = "terrain"
	RejectOccupied    Reject = "occupied"
	RejectNoTarget    Reject = "no_target"
	RejectNotPlayer   Reject = "not_player"
)

// checkTurn gates every turn-bound command on phase and round parity
func (s *Session) checkTurn(slot int) Reject {
	if s.Phase != PhaseActive {
		return RejectNotActive
	}
	if slot < 0 || slot > 1 || s.Players[slot] == nil {
		return RejectNotPlayer
	}
	if slot != s.ActiveSlot() {
		return RejectNotYourTurn
	}
	return RejectNone
}

// CheckMove validates a move without touching state. Only the distance and
// the destination are checked; the path in between is not.
func (s *Session) CheckMove(slot, unitID, row, col int) (*Unit, Reject) {
	if r := s.checkTurn(slot); r != RejectNone {
		return nil, r
	}
	u := s.Players[slot].Unit(unitID)
	if u == nil {
		return nil, RejectNoUnit
	}
	if !u.CanMove {
		return nil, RejectSpent
	}
	if Manhattan(u.Row, u.Col, row, col) > u.Mobility {
		return nil, RejectDistance
	}
	if !s.Arena.Walkable(row, col) {
		return nil, RejectTerrain
	}
	if other, _ := s.UnitAt(row, col); other != nil && other != u {
		return nil, RejectOccupied
	}
	return u, RejectNone
}

// CheckAct validates an action and returns the actor, the target and the
// slot owning the target.
func (s *Session) CheckAct(slot, unitID, row, col int) (*Unit, *Unit, int, Reject) {
	if r := s.checkTurn(slot); r != RejectNone {
		return nil, nil, -1, r
	}
	u := s.Players[slot].Unit(unitID)
	if u == nil {
		return nil, nil, -1, RejectNoUnit
	}
	if !u.CanAct {
		return nil, nil, -1, RejectSpent
	}
	d := Manhattan(u.Row, u.Col, row, col)
	if d <= 0 || d > u.Range {
		return nil, nil, -1, RejectDistance
	}
	target, owner := s.UnitAt(row, col)
	if target == nil || !target.Alive() {
		return nil, nil, -1, RejectNoTarget
	}
	return u, target, owner, RejectNone
}

// CheckEndTurn validates an end-turn request
func (s *Session) CheckEndTurn(slot int) Reject {
	return s.checkTurn(slot)
}

// MoveOutcome is the result of an applied move
type MoveOutcome struct {
	Slot   int
	UnitID int
	From   Cell
	To     Cell
}

// ApplyMove performs a validated move
func (s *Session) ApplyMove(slot int, u *Unit, row, col int) MoveOutcome {
	out := MoveOutcome{Slot: slot, UnitID: u.ID, From: u.Cell(), To: Cell{Row: row, Col: col}}
	u.Row, u.Col = row, col
	u.CanMove = false
	return out
}

// ActOutcome is the result of an applied action
type ActOutcome struct {
	Slot       int
	UnitID     int
	Target     Cell
	TargetSlot int
	TargetID   int
	TargetHP   int
	Heal       bool
	Amount     int // damage dealt or health restored
	Killed     bool
}

// ApplyAct resolves a validated action. Ownership of the target decides the
// effect: enemies take damage, friends are healed.
func (s *Session) ApplyAct(slot int, u, target *Unit, owner int) ActOutcome {
	out := ActOutcome{
		Slot:       slot,
		UnitID:     u.ID,
		Target:     target.Cell(),
		TargetSlot: owner,
		TargetID:   target.ID,
	}
	if owner == slot {
		out.Heal = true
		out.Amount = Heal(target, u.Attack)
	} else {
		out.Amount = Damage(u, target)
		if ApplyDamage(target, out.Amount) {
			out.Killed = true
			s.Players[owner].RemoveUnit(target.ID)
		}
	}
	out.TargetHP = target.HP
	u.CanAct = false
	return out
}

// AdvanceTurn passes the turn to the other side, topping up its bank
func (s *Session) AdvanceTurn() {
	outgoing := s.ActiveSlot()
	s.Round++
	incoming := s.ActiveSlot()
	s.TimeBanks[incoming] = ClampInt(s.TimeBanks[incoming]+s.cfg.TurnBonus, 0, s.cfg.MaxTime)
	if p := s.Players[outgoing]; p != nil {
		p.SetReady(false)
	}
	if p := s.Players[incoming]; p != nil {
		p.SetReady(true)
	}
}

// TickClock charges one tick to the side to move and reports whether its
// bank ran out.
func (s *Session) TickClock(seconds int) bool {
	slot := s.ActiveSlot()
	s.TimeBanks[slot] = ClampInt(s.TimeBanks[slot]-seconds, 0, s.cfg.MaxTime)
	return s.TimeBanks[slot] <= 0
}
