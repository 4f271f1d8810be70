package card

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeck_HasEveryColourShapeCombinationOnce(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, DeckSize)

	seen := make(map[Card]bool, DeckSize)
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
		assert.Less(t, c.Colour(), byte(NumColours))
		assert.Less(t, c.Shape(), byte(NumShapes))
	}
}

func TestCard_StringFormatsColourAndShape(t *testing.T) {
	c := New(2, 9)
	assert.Equal(t, "c2s9", c.String())
	assert.Equal(t, "invalid", CardInvalid.String())
}

func TestStack_PushPopFrontBack(t *testing.T) {
	var s Stack
	s.Push(New(0, 0), New(1, 1), New(2, 2))
	require.Equal(t, 3, s.Count())

	front, ok := s.PopFront()
	require.True(t, ok)
	assert.Equal(t, New(0, 0), front)

	back, ok := s.PopBack()
	require.True(t, ok)
	assert.Equal(t, New(2, 2), back)

	assert.Equal(t, 1, s.Count())
}

func TestStack_TopDoesNotRemove(t *testing.T) {
	var s Stack
	s.Push(New(0, 0))
	top, ok := s.Top()
	require.True(t, ok)
	assert.Equal(t, New(0, 0), top)
	assert.Equal(t, 1, s.Count())
}

func TestStack_PopOnEmptyReturnsFalse(t *testing.T) {
	var s Stack
	_, ok := s.PopFront()
	assert.False(t, ok)
	_, ok = s.PopBack()
	assert.False(t, ok)
	_, ok = s.Top()
	assert.False(t, ok)
}

func TestStack_DrainMovesAllCardsAndEmptiesSource(t *testing.T) {
	var src, dst Stack
	src.Push(New(0, 0), New(1, 1))
	dst.Push(New(3, 3))

	dst.Drain(&src)

	assert.Equal(t, 0, src.Count())
	assert.Equal(t, 3, dst.Count())
}

func TestStack_ShuffleIsAPermutation(t *testing.T) {
	deck := NewDeck()
	before := append(Stack{}, deck...)
	shuffled := append(Stack{}, deck...)
	shuffled.Shuffle(rand.New(rand.NewSource(1)))

	assert.ElementsMatch(t, before, shuffled)
}
