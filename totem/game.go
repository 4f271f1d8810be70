package totem

import (
	"math/rand"
	"time"

	"totem/card"
)

// Game is the Totem match state machine: the deck, every seat's hand and
// table pile, the shared public pile, and the turn/current-player cursor.
// It is the Game Runner's own memory (spec.md §5, Shared resource
// policy) — callers are expected to serialize access themselves (the
// Game Runner's single goroutine is the only caller in this codebase), so
// Game carries no internal mutex.
type Game struct {
	cfg Config
	rng *rand.Rand

	seats      []*seat
	publicPile card.Stack

	turn    int
	current int
	ended   bool
	winner  int
}

// NewGame deals a fresh match: the deck is shuffled and distributed
// round-robin across cfg.NumSeats seats, and the first current player is
// chosen uniformly at random, matching spec.md §4.5 Setup.
func NewGame(cfg Config) (*Game, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Game{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		seats:   make([]*seat, cfg.NumSeats),
		winner:  InvalidSeat,
		current: 0,
	}
	for i := range g.seats {
		g.seats[i] = &seat{}
	}
	g.deal()
	g.current = g.rng.Intn(cfg.NumSeats)
	return g, nil
}

// deal shuffles the full 72-card deck and distributes it round-robin.
func (g *Game) deal() {
	deck := card.NewDeck()
	deckStack := card.Stack(deck)
	deckStack.Shuffle(g.rng)
	i := 0
	for len(deckStack) > 0 {
		c, _ := deckStack.PopFront()
		g.seats[i%len(g.seats)].hand.Push(c)
		i++
	}
}

// NumSeats returns the number of seated players.
func (g *Game) NumSeats() int { return len(g.seats) }

// Turn returns the current turn counter.
func (g *Game) Turn() int { return g.turn }

// CurrentSeat returns the seat index whose turn it is.
func (g *Game) CurrentSeat() int { return g.current }

// Ended reports whether the match has been won.
func (g *Game) Ended() bool { return g.ended }

// Winner returns the winning seat index, or InvalidSeat if the match has
// not ended.
func (g *Game) Winner() int { return g.winner }

func (g *Game) checkSeat(idx int) error {
	if idx < 0 || idx >= len(g.seats) {
		return ErrSeatNotFound
	}
	return nil
}

func (g *Game) checkTurn(turn int) error {
	if turn != g.turn {
		return ErrStaleTurn(g.turn)
	}
	return nil
}

// Draw plays the current player's top hand card onto their table pile,
// advances the turn counter, and moves the current-player cursor to the
// next seat. Only the current player may draw (spec.md §4.5, Actions).
func (g *Game) Draw(seatIdx, turn int) error {
	if g.ended {
		return ErrGameEnded
	}
	if err := g.checkSeat(seatIdx); err != nil {
		return err
	}
	if err := g.checkTurn(turn); err != nil {
		return err
	}
	if seatIdx != g.current {
		return ErrNotYourTurn
	}
	g.drawLocked(seatIdx)
	g.turn++
	g.current = (g.current + 1) % len(g.seats)
	return nil
}

func (g *Game) drawLocked(seatIdx int) {
	s := g.seats[seatIdx]
	if c, ok := s.hand.PopFront(); ok {
		s.tablePile.Push(c)
	}
}

// ForceTimeoutDraw performs the idle-timeout forced draw described in
// spec.md §4.5 (Idle timeout): it draws for the current player without
// requiring a caller-supplied turn number, since the timeout is driven by
// the Game Runner's own clock rather than a client command.
func (g *Game) ForceTimeoutDraw() {
	if g.ended || len(g.seats) == 0 {
		return
	}
	g.drawLocked(g.current)
	g.turn++
	g.current = (g.current + 1) % len(g.seats)
}

// Grab resolves a fight on the grabber's table-top card, per spec.md §4.5
// steps 1-5. Any seated player may grab, not only the current player, but
// the turn number must still match (it guards against stale client
// views).
func (g *Game) Grab(seatIdx, turn int) (*GrabResult, error) {
	if g.ended {
		return nil, ErrGameEnded
	}
	if err := g.checkSeat(seatIdx); err != nil {
		return nil, err
	}
	if err := g.checkTurn(turn); err != nil {
		return nil, err
	}

	grabber := g.seats[seatIdx]
	top, hasTop := grabber.tablePile.Top()

	var opps []int
	if hasTop {
		for j, s := range g.seats {
			if j == seatIdx {
				continue
			}
			if t, ok := s.tablePile.Top(); ok && t.Shape() == top.Shape() {
				opps = append(opps, j)
			}
		}
	}

	if len(opps) == 0 {
		return g.resolveMistake(seatIdx), nil
	}
	return g.resolveWin(seatIdx, opps), nil
}

// resolveMistake absorbs every table pile and the public pile into the
// grabber's hand (spec.md §4.5 step 3).
func (g *Game) resolveMistake(grabberIdx int) *GrabResult {
	grabber := g.seats[grabberIdx]
	for _, s := range g.seats {
		grabber.hand.Drain(&s.tablePile)
	}
	grabber.hand.Drain(&g.publicPile)
	return &GrabResult{
		Outcome: GrabOutcomeMistake,
		Grabber: grabberIdx,
	}
}

// resolveWin distributes the grabber's table pile round-robin across the
// opponents whose table top matched, then has each loser absorb their own
// table pile, and checks the win condition (spec.md §4.5 steps 4-5).
func (g *Game) resolveWin(grabberIdx int, opps []int) *GrabResult {
	grabber := g.seats[grabberIdx]
	pile := grabber.tablePile.Clear()
	for i, c := range pile {
		loser := g.seats[opps[i%len(opps)]]
		loser.hand.Push(c)
	}
	for _, j := range opps {
		loser := g.seats[j]
		loser.hand.Drain(&loser.tablePile)
	}

	result := &GrabResult{
		Outcome: GrabOutcomeWin,
		Grabber: grabberIdx,
		Losers:  opps,
	}

	if grabber.handSize() == 0 && grabber.tableSize() == 0 {
		g.ended = true
		g.winner = grabberIdx
		result.GameEnded = true
	}
	return result
}

// RemoveSeat handles a player's mid-match departure (spec.md §4.5, Player
// departure during a match): the seat's hand and table pile are orphaned
// into the public pile, the seat is removed from the arrays, and the
// current-player cursor is adjusted so the turn order is preserved.
func (g *Game) RemoveSeat(idx int) error {
	if err := g.checkSeat(idx); err != nil {
		return err
	}
	departed := g.seats[idx]
	g.publicPile.Drain(&departed.hand)
	g.publicPile.Drain(&departed.tablePile)

	g.seats = append(g.seats[:idx], g.seats[idx+1:]...)

	if g.current > idx {
		g.current--
	}
	if g.current >= len(g.seats) {
		g.current = 0
	}
	return nil
}

// Snapshot returns the publicly visible match state, copied out so the
// caller may broadcast it without retaining a reference into Game's
// internals.
func (g *Game) Snapshot() Snapshot {
	snap := Snapshot{
		Turn:        g.turn,
		CurrentSeat: g.current,
		PublicPile:  g.publicPile.Count(),
		Seats:       make([]SeatSnapshot, len(g.seats)),
	}
	for i, s := range g.seats {
		snap.Seats[i] = s.snapshot(i)
	}
	return snap
}

// TotalCards sums hand, table-pile and public-pile sizes across the whole
// match; it must always equal card.DeckSize (spec.md §3 invariant, and
// the corresponding testable property in spec.md §8).
func (g *Game) TotalCards() int {
	total := g.publicPile.Count()
	for _, s := range g.seats {
		total += s.handSize() + s.tableSize()
	}
	return total
}
