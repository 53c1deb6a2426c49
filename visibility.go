package main

import (
	"sort"

	"github.com/samber/lo"
)

// VisibleCells returns every arena cell within the fog radius of any of the
// player's live units.
func VisibleCells(a *Arena, p *Player, radius int) map[Cell]bool {
	seen := make(map[Cell]bool)
	if p == nil {
		return seen
	}
	for _, u := range p.Units {
		if !u.Alive() {
			continue
		}
		for dr := -radius; dr <= radius; dr++ {
			span := radius - absInt(dr)
			for dc := -span; dc <= span; dc++ {
				r, c := u.Row+dr, u.Col+dc
				if a.InBounds(r, c) {
					seen[Cell{Row: r, Col: c}] = true
				}
			}
		}
	}
	return seen
}

// refreshVisibility recomputes the cached sight set of both slots
func (s *Session) refreshVisibility() {
	for slot, p := range s.Players {
		s.visible[slot] = VisibleCells(s.Arena, p, s.cfg.FogRadius)
	}
}

// CanSee reports whether the observer currently sees the cell
func (s *Session) CanSee(observer int, c Cell) bool {
	if s.visible[observer] == nil {
		s.refreshVisibility()
	}
	return s.visible[observer][c]
}

// View builds the redacted snapshot for one observer. The observer's own
// roster is complete; the opponent's is cut down to units on visible cells.
// The session itself is never modified.
func (s *Session) View(observer int) SessionView {
	s.refreshVisibility()
	sight := s.visible[observer]

	v := SessionView{
		MatchID:   s.ID,
		Privacy:   s.Privacy,
		Phase:     s.Phase.String(),
		Round:     s.Round,
		Active:    s.ActiveSlot(),
		You:       observer,
		TimeBanks: s.TimeBanks,
		Arena:     arenaView(s.Arena),
		Players:   make([]PlayerView, 0, 2),
	}
	for slot, p := range s.Players {
		if p == nil {
			continue
		}
		units := p.Units
		if slot != observer {
			units = lo.Filter(units, func(u *Unit, _ int) bool {
				return sight[u.Cell()]
			})
		}
		v.Players = append(v.Players, PlayerView{
			Slot:      slot,
			ID:        p.ID,
			Name:      p.Name,
			Avatar:    p.Avatar,
			Connected: p.Connected(),
			Units:     lo.Map(units, func(u *Unit, _ int) UnitView { return u.ToView() }),
		})
	}
	v.Visible = lo.Keys(sight)
	sort.Slice(v.Visible, func(i, j int) bool {
		if v.Visible[i].Row != v.Visible[j].Row {
			return v.Visible[i].Row < v.Visible[j].Row
		}
		return v.Visible[i].Col < v.Visible[j].Col
	})
	return v
}
