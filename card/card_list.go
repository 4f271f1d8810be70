package card

import "math/rand"

// Stack is an ordered run of cards. Hands, table piles and the public pile
// are all Stacks; which end counts as "top" is a matter of which methods
// the caller uses (PopFront for the draw pile, PopBack for a table pile).
type Stack []Card

// Count returns the number of cards in the stack.
func (s Stack) Count() int {
	return len(s)
}

// Top returns the last card without removing it, and whether the stack was
// non-empty. Table piles and the public pile are LIFO: Top is their match
// surface.
func (s Stack) Top() (Card, bool) {
	if len(s) == 0 {
		return CardInvalid, false
	}
	return s[len(s)-1], true
}

// Shuffle permutes the stack in place using a caller-supplied RNG.
func (s Stack) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}

// Push appends cards onto the back of the stack.
func (s *Stack) Push(cards ...Card) {
	*s = append(*s, cards...)
}

// PopBack removes and returns the last card, or (CardInvalid, false) if empty.
func (s *Stack) PopBack() (Card, bool) {
	n := len(*s)
	if n == 0 {
		return CardInvalid, false
	}
	c := (*s)[n-1]
	*s = (*s)[:n-1]
	return c, true
}

// PopFront removes and returns the first card, or (CardInvalid, false) if empty.
func (s *Stack) PopFront() (Card, bool) {
	if len(*s) == 0 {
		return CardInvalid, false
	}
	c := (*s)[0]
	*s = (*s)[1:]
	return c, true
}

// Clear empties the stack and returns the cards it held.
func (s *Stack) Clear() []Card {
	old := *s
	*s = nil
	return old
}

// Drain moves every card out of src and appends it onto the receiver.
func (s *Stack) Drain(src *Stack) {
	s.Push(*src...)
	src.Clear()
}
