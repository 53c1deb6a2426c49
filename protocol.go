package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Client -> Server message types
const (
	MsgJoin      = "join"
	MsgMove      = "move"
	MsgAct       = "act"
	MsgEndTurn   = "endTurn"
	MsgSurrender = "surrender"
)

// Server -> Client message types
const (
	MsgJoined   = "joined"
	MsgState    = "state" // binary frame, see codec.go
	MsgMoved    = "moved"
	MsgActed    = "acted"
	MsgGameOver = "gameOver"
	MsgError    = "error"
	MsgShutdown = "shutdown"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D is decoded per type
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// Command is one decoded inbound message. The concrete types below are the
// only implementations.
type Command interface {
	command()
}

// JoinCmd asks for a slot (or rebinds one on reconnect)
type JoinCmd struct {
	Match  string `json:"match"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// MoveCmd moves a unit to a target cell
type MoveCmd struct {
	Unit int `json:"unit"`
	Row  int `json:"row"`
	Col  int `json:"col"`
}

// ActCmd attacks or heals whatever stands on the target cell
type ActCmd struct {
	Unit int `json:"unit"`
	Row  int `json:"row"`
	Col  int `json:"col"`
}

// EndTurnCmd passes the turn
type EndTurnCmd struct{}

// SurrenderCmd concedes the match
type SurrenderCmd struct{}

func (JoinCmd) command()      {}
func (MoveCmd) command()      {}
func (ActCmd) command()       {}
func (EndTurnCmd) command()   {}
func (SurrenderCmd) command() {}

// targetPayload is decoded with pointer fields so missing keys are caught
type targetPayload struct {
	Unit *int `json:"unit"`
	Row  *int `json:"row"`
	Col  *int `json:"col"`
}

func (p targetPayload) validate() (int, int, int, error) {
	if p.Unit == nil || p.Row == nil || p.Col == nil {
		return 0, 0, 0, fmt.Errorf("%w: unit, row and col are required", ErrMalformedPayload)
	}
	if *p.Unit < 0 || *p.Row < 0 || *p.Col < 0 {
		return 0, 0, 0, fmt.Errorf("%w: negative field", ErrMalformedPayload)
	}
	return *p.Unit, *p.Row, *p.Col, nil
}

// truncateName cuts s to at most n bytes without splitting a rune
func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// DecodeCommand parses one inbound frame into a tagged command, rejecting
// anything malformed before it reaches the rules engine.
func DecodeCommand(raw []byte) (Command, error) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch env.T {
	case MsgJoin:
		var cmd JoinCmd
		if len(env.D) > 0 {
			if err := json.Unmarshal(env.D, &cmd); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
		}
		cmd.Name = truncateName(cmd.Name, maxNameLen)
		if len(cmd.Avatar) > maxAvatarLen {
			return nil, fmt.Errorf("%w: avatar too long", ErrMalformedPayload)
		}
		return cmd, nil
	case MsgMove, MsgAct:
		var p targetPayload
		if err := json.Unmarshal(env.D, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		unit, row, col, err := p.validate()
		if err != nil {
			return nil, err
		}
		if env.T == MsgMove {
			return MoveCmd{Unit: unit, Row: row, Col: col}, nil
		}
		return ActCmd{Unit: unit, Row: row, Col: col}, nil
	case MsgEndTurn:
		return EndTurnCmd{}, nil
	case MsgSurrender:
		return SurrenderCmd{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.T)
}

// JoinedMsg tells a client which slot it holds
type JoinedMsg struct {
	Slot      int    `json:"slot"`
	Match     string `json:"match"`
	Reconnect bool   `json:"reconnect,omitempty"`
}

// MovedMsg announces a completed move
type MovedMsg struct {
	Slot int  `json:"slot"`
	Unit int  `json:"unit"`
	To   Cell `json:"to"`
	From Cell `json:"from"`
}

// ActedMsg announces a resolved action
type ActedMsg struct {
	Slot       int  `json:"slot"`
	Unit       int  `json:"unit"`
	Target     Cell `json:"target"`
	TargetSlot int  `json:"tslot"`
	TargetHP   int  `json:"hp"`
	Heal       bool `json:"heal,omitempty"`
	Killed     bool `json:"killed,omitempty"`
}

// GameOverMsg names the winner
type GameOverMsg struct {
	Winner     string `json:"winner"`
	WinnerSlot int    `json:"slot"`
	Reason     string `json:"reason"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// UnitView is one unit as serialized in a snapshot
type UnitView struct {
	ID       int    `msgpack:"id"`
	Row      int    `msgpack:"r"`
	Col      int    `msgpack:"c"`
	Kind     string `msgpack:"k"`
	Behavior string `msgpack:"b"`
	HP       int    `msgpack:"hp"`
	MaxHP    int    `msgpack:"mhp"`
	Attack   int    `msgpack:"atk"`
	Defense  int    `msgpack:"def"`
	Range    int    `msgpack:"rng"`
	Mobility int    `msgpack:"mob"`
	CanMove  bool   `msgpack:"cm"`
	CanAct   bool   `msgpack:"ca"`
}

// ToView converts a unit to its wire form
func (u *Unit) ToView() UnitView {
	return UnitView{
		ID:       u.ID,
		Row:      u.Row,
		Col:      u.Col,
		Kind:     string(u.Kind),
		Behavior: string(u.Behavior),
		HP:       u.HP,
		MaxHP:    u.MaxHP,
		Attack:   u.Attack,
		Defense:  u.Defense,
		Range:    u.Range,
		Mobility: u.Mobility,
		CanMove:  u.CanMove,
		CanAct:   u.CanAct,
	}
}

// PlayerView is one player as serialized in a snapshot
type PlayerView struct {
	Slot      int        `msgpack:"s"`
	ID        string     `msgpack:"id"`
	Name      string     `msgpack:"n"`
	Avatar    string     `msgpack:"av"`
	Connected bool       `msgpack:"on"`
	Units     []UnitView `msgpack:"u"`
}

// ArenaView is the terrain as serialized in a snapshot
type ArenaView struct {
	Width     int        `msgpack:"w"`
	Height    int        `msgpack:"h"`
	Terrain   [][]uint8  `msgpack:"t"`
	Heights   [][]int    `msgpack:"z"`
	Obstacles []Obstacle `msgpack:"o"`
	Starts    [2]Cell    `msgpack:"st"`
}

func arenaView(a *Arena) ArenaView {
	terrain := make([][]uint8, len(a.Terrain))
	for r, row := range a.Terrain {
		terrain[r] = make([]uint8, len(row))
		for c, t := range row {
			terrain[r][c] = uint8(t)
		}
	}
	return ArenaView{
		Width:     a.Width,
		Height:    a.Height,
		Terrain:   terrain,
		Heights:   a.Heights,
		Obstacles: a.Obstacles,
		Starts:    a.Starts,
	}
}

// SessionView is the per-player redacted snapshot
type SessionView struct {
	MatchID   string       `msgpack:"mid"`
	Privacy   string       `msgpack:"priv"`
	Phase     string       `msgpack:"ph"`
	Round     int          `msgpack:"rd"`
	Active    int          `msgpack:"act"`
	You       int          `msgpack:"you"`
	TimeBanks [2]int       `msgpack:"tb"`
	Arena     ArenaView    `msgpack:"ar"`
	Players   []PlayerView `msgpack:"p"`
	Visible   []Cell       `msgpack:"vis"`
}

// Unit finds a unit in the view by owner slot and id
func (v SessionView) Unit(slot, id int) (UnitView, bool) {
	for _, p := range v.Players {
		if p.Slot != slot {
			continue
		}
		for _, u := range p.Units {
			if u.ID == id {
				return u, true
			}
		}
	}
	return UnitView{}, false
}
