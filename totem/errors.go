package totem

import "errors"

var (
	ErrGameEnded    = errors.New("match already ended")
	ErrNotYourTurn  = errors.New("action out of turn")
	ErrSeatNotFound = errors.New("seat not found")
)

// StaleTurnError is returned by Draw/Grab when the caller's turn number
// does not match the engine's current turn counter.
type StaleTurnError struct {
	Current int
}

func (e StaleTurnError) Error() string {
	return "stale turn number"
}

func ErrStaleTurn(current int) error { return StaleTurnError{Current: current} }
