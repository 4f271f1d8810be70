package totem

import "fmt"

const (
	MinSeats = 2
	MaxSeats = 8
)

// Config describes the starting conditions of one Totem match.
type Config struct {
	// NumSeats is the number of players dealt into this match.
	NumSeats int

	// Seed seeds the shuffle RNG. Zero means time-based (see NewGame).
	Seed int64
}

func (c Config) validate() error {
	if c.NumSeats < MinSeats {
		return fmt.Errorf("totem: at least %d players required, got %d", MinSeats, c.NumSeats)
	}
	if c.NumSeats > MaxSeats {
		return fmt.Errorf("totem: at most %d players allowed, got %d", MaxSeats, c.NumSeats)
	}
	return nil
}
