package main

// Player occupies one of the two slots in a match
type Player struct {
	ID     string
	Name   string
	Avatar string
	Slot   int
	Units  []*Unit // spawn order

	conn Broadcaster // nil while disconnected
}

// NewPlayer creates a player with an empty roster
func NewPlayer(id, name, avatar string, slot int) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		Avatar: avatar,
		Slot:   slot,
	}
}

// spawnOffset spreads the roster in a 2x4 block around the start cell,
// mirrored for the second slot so both blocks grow toward the map center.
func spawnOffset(slot, i int) (int, int) {
	dr, dc := i/4, i%4
	if slot == 1 {
		return -dr, -dc
	}
	return dr, dc
}

// SpawnRoster places the fixed roster around the start cell
func (p *Player) SpawnRoster(start Cell) {
	p.Units = make([]*Unit, 0, len(Roster))
	for i, tpl := range Roster {
		dr, dc := spawnOffset(p.Slot, i)
		p.Units = append(p.Units, NewUnit(i, tpl, start.Row+dr, start.Col+dc))
	}
}

// Unit returns the live unit with the given id
func (p *Player) Unit(id int) *Unit {
	for _, u := range p.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// UnitAt returns the unit standing on the cell, if any
func (p *Player) UnitAt(row, col int) *Unit {
	for _, u := range p.Units {
		if u.Row == row && u.Col == col {
			return u
		}
	}
	return nil
}

// RemoveUnit drops a unit from the roster, keeping spawn order
func (p *Player) RemoveUnit(id int) {
	for i, u := range p.Units {
		if u.ID == id {
			p.Units = append(p.Units[:i], p.Units[i+1:]...)
			return
		}
	}
}

// SetReady sets both per-turn flags on every unit
func (p *Player) SetReady(ready bool) {
	for _, u := range p.Units {
		u.CanMove = ready
		u.CanAct = ready
	}
}

// Connected reports whether a live connection is bound
func (p *Player) Connected() bool {
	return p.conn != nil
}
