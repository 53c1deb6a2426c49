package main

// Archetype identifies one of the fixed unit kinds
type Archetype string

const (
	ArchKing    Archetype = "king"
	ArchMelee   Archetype = "melee"
	ArchRanged  Archetype = "ranged"
	ArchMage    Archetype = "mage"
	ArchHealer  Archetype = "healer"
	ArchCavalry Archetype = "cavalry"
	ArchScout   Archetype = "scout"
	ArchTank    Archetype = "tank"
)

// Behavior is a UI hint only; the rules engine ignores it
type Behavior string

const (
	BehaviorAttack Behavior = "attack"
	BehaviorHeal   Behavior = "heal"
)

// UnitTemplate holds the fixed stats for an archetype
type UnitTemplate struct {
	Kind     Archetype
	Behavior Behavior
	MaxHP    int
	Attack   int
	Defense  int
	Range    int
	Mobility int
}

// Roster is spawned in this order; the index is the unit id
var Roster = [8]UnitTemplate{
	// King: sturdy but slow
	{Kind: ArchKing, Behavior: BehaviorAttack, MaxHP: 120, Attack: 25, Defense: 15, Range: 1, Mobility: 2},
	{Kind: ArchMelee, Behavior: BehaviorAttack, MaxHP: 100, Attack: 30, Defense: 10, Range: 1, Mobility: 3},
	{Kind: ArchRanged, Behavior: BehaviorAttack, MaxHP: 70, Attack: 25, Defense: 5, Range: 4, Mobility: 3},
	{Kind: ArchMage, Behavior: BehaviorAttack, MaxHP: 60, Attack: 35, Defense: 5, Range: 3, Mobility: 2},
	{Kind: ArchHealer, Behavior: BehaviorHeal, MaxHP: 60, Attack: 20, Defense: 5, Range: 2, Mobility: 3},
	// Cavalry: long moves, melee reach
	{Kind: ArchCavalry, Behavior: BehaviorAttack, MaxHP: 90, Attack: 28, Defense: 8, Range: 1, Mobility: 5},
	{Kind: ArchScout, Behavior: BehaviorAttack, MaxHP: 50, Attack: 15, Defense: 4, Range: 1, Mobility: 6},
	{Kind: ArchTank, Behavior: BehaviorAttack, MaxHP: 160, Attack: 18, Defense: 25, Range: 1, Mobility: 2},
}

// Unit is one piece on the board, owned by exactly one player
type Unit struct {
	ID       int
	Row      int
	Col      int
	Kind     Archetype
	Behavior Behavior
	HP       int
	MaxHP    int
	Attack   int
	Defense  int
	Range    int
	Mobility int
	CanMove  bool
	CanAct   bool
}

// NewUnit creates a unit from a template at the given cell
func NewUnit(id int, tpl UnitTemplate, row, col int) *Unit {
	return &Unit{
		ID:       id,
		Row:      row,
		Col:      col,
		Kind:     tpl.Kind,
		Behavior: tpl.Behavior,
		HP:       tpl.MaxHP,
		MaxHP:    tpl.MaxHP,
		Attack:   tpl.Attack,
		Defense:  tpl.Defense,
		Range:    tpl.Range,
		Mobility: tpl.Mobility,
	}
}

// Cell returns the unit's grid position
func (u *Unit) Cell() Cell {
	return Cell{Row: u.Row, Col: u.Col}
}

// Alive reports whether the unit still has health
func (u *Unit) Alive() bool {
	return u.HP > 0
}
