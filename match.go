package main

import "time"

// MatchPhase represents the lifecycle of a match
type MatchPhase int

const (
	PhaseWaiting MatchPhase = 0 // fewer than two players
	PhaseActive  MatchPhase = 1 // clock running
	PhaseEnded   MatchPhase = 2 // terminal
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "waiting"
	}
}

// Reasons a match can end
const (
	EndTimeout   = "timeout"
	EndSurrender = "surrender"
	EndEliminate = "elimination"
	EndForfeit   = "forfeit"   // reconnection grace expired
	EndAbandoned = "abandoned" // nobody left, no winner
	EndShutdown  = "shutdown"
)

// MatchConfig holds the rule constants for a match
type MatchConfig struct {
	MaxTime        int           // time bank ceiling, seconds
	TurnBonus      int           // seconds added to the incoming player's bank
	FogRadius      int           // manhattan sight radius per unit
	TickEvery      time.Duration // turn clock period
	ReconnectGrace time.Duration
}

// DefaultMatchConfig returns the standard two-player rules
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MaxTime:        600,
		TurnBonus:      5,
		FogRadius:      6,
		TickEvery:      time.Second,
		ReconnectGrace: 60 * time.Second,
	}
}

// CombatStats tracks per-slot numbers reported at game over
type CombatStats struct {
	DamageDealt int
	DamageTaken int
	Kills       int
	UnitsLost   int
	Healing     int
	Moves       int
	Actions     int
	Rejected    int
}

// MatchResult is what the persistence service is told at game over
type MatchResult struct {
	MatchID    string
	WinnerID   string // empty when abandoned
	WinnerSlot int    // -1 when abandoned
	Reason     string
	Rounds     int
	StartedAt  time.Time
	Duration   time.Duration
	Players    [2]string
	Names      [2]string
	Stats      [2]CombatStats
	Replay     []ReplayEvent
}
