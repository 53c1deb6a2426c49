package main

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Replay event kinds
const (
	ReplayJoin      = "join"
	ReplayStart     = "start"
	ReplayMove      = "move"
	ReplayAct       = "act"
	ReplayEndTurn   = "endTurn"
	ReplaySurrender = "surrender"
	ReplayEnd       = "end"
)

// ReplayEvent is one accepted mutation in match order
type ReplayEvent struct {
	Seq    int       `msgpack:"seq"`
	Round  int       `msgpack:"rd"`
	Slot   int       `msgpack:"s"`
	Kind   string    `msgpack:"k"`
	Unit   int       `msgpack:"u,omitempty"`
	From   *Cell     `msgpack:"from,omitempty"`
	To     *Cell     `msgpack:"to,omitempty"`
	HP     int       `msgpack:"hp,omitempty"`
	Detail string    `msgpack:"d,omitempty"`
	At     time.Time `msgpack:"at"`
}

// Replay is the ordered log of a match
type Replay struct {
	events []ReplayEvent
}

// Append records an event, assigning the next sequence number
func (r *Replay) Append(ev ReplayEvent) {
	ev.Seq = len(r.events) + 1
	r.events = append(r.events, ev)
}

// Events returns a copy of the log
func (r *Replay) Events() []ReplayEvent {
	out := make([]ReplayEvent, len(r.events))
	copy(out, r.events)
	return out
}

// EncodeReplay packs a replay log the same way snapshots are packed
func EncodeReplay(events []ReplayEvent) ([]byte, error) {
	raw, err := msgpack.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal replay: %w", err)
	}
	return Compress(raw)
}

// DecodeReplay unpacks a blob written by EncodeReplay
func DecodeReplay(data []byte) ([]ReplayEvent, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	var events []ReplayEvent
	if err := msgpack.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("msgpack unmarshal replay: %w", err)
	}
	return events, nil
}
