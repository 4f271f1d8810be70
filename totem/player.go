package totem

import "totem/card"

// seat holds one player's private state within a match. The engine never
// knows the client identity behind a seat; it only knows the seat index,
// matching spec.md's rule that the Registry (not the Game Runner) owns
// client records.
type seat struct {
	hand      card.Stack
	tablePile card.Stack
}

func (s *seat) handSize() int  { return s.hand.Count() }
func (s *seat) tableSize() int { return s.tablePile.Count() }

func (s *seat) snapshot(idx int) SeatSnapshot {
	ss := SeatSnapshot{
		Seat:      idx,
		HandSize:  s.handSize(),
		TableSize: s.tableSize(),
	}
	if top, ok := s.tablePile.Top(); ok {
		ss.HasTableTop = true
		ss.TopColour = top.Colour()
		ss.TopShape = top.Shape()
	}
	return ss
}
