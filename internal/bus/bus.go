// Package bus implements the bounded, two-priority-band command queue
// described in spec.md §4.2: a generalization of the teacher's
// single-channel actor mailbox (table.Table's `events chan Event`) into
// two bands so priority-0 lobby commands always drain before priority-1
// gameplay commands. The same type backs both the global Command Bus and
// each room's own Room Bus.
package bus

import (
	"context"

	"totem/internal/command"
	"totem/internal/totemmetrics"
)

// DefaultCapacity is the total queue capacity from spec.md §4.2.
const DefaultCapacity = 100

// Bus is a bounded, priority-aware queue of command envelopes. The zero
// value is not usable; construct with New.
type Bus struct {
	name  string
	high  chan command.Envelope
	low   chan command.Envelope
	closed chan struct{}
}

// New creates a Bus with the given total capacity split evenly between
// the two priority bands (rounding the high band up), matching spec.md's
// 100-message default when cap is DefaultCapacity.
func New(name string, cap int) *Bus {
	if cap <= 0 {
		cap = DefaultCapacity
	}
	highCap := (cap + 1) / 2
	lowCap := cap - highCap
	if lowCap == 0 {
		lowCap = 1
	}
	return &Bus{
		name:   name,
		high:   make(chan command.Envelope, highCap),
		low:    make(chan command.Envelope, lowCap),
		closed: make(chan struct{}),
	}
}

// Name returns the bus's logical name (e.g. "TotemQueue" or
// "TotemRoom<id>"), kept only for logging since this implementation
// collapses the named-IPC convention from spec.md §6 into an in-process
// channel pair.
func (b *Bus) Name() string { return b.name }

// Send enqueues env at the given priority band, blocking only if that
// band's channel is full. Priority must be command.Priority0 or
// command.Priority1.
func (b *Bus) Send(ctx context.Context, priority int, env command.Envelope) bool {
	ch := b.low
	label := "1"
	if priority == command.Priority0 {
		ch = b.high
		label = "0"
	}
	select {
	case <-b.closed:
		return false
	default:
	}
	select {
	case ch <- env:
		totemmetrics.CommandsTotal.WithLabelValues(label).Inc()
		return true
	case <-b.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// TryReceive is non-blocking: it returns the next priority-0 envelope if
// one is queued, otherwise the next priority-1 envelope, otherwise
// ok=false. A single LC (or, for a Room Bus, a single Game Runner)
// consumes each Bus.
func (b *Bus) TryReceive() (command.Envelope, bool) {
	select {
	case env := <-b.high:
		return env, true
	default:
	}
	select {
	case env := <-b.low:
		return env, true
	default:
		return command.Envelope{}, false
	}
}

// Close unblocks any pending Send calls; subsequent Sends return false.
func (b *Bus) Close() {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
}
