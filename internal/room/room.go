// Package room implements the Game Runner: one actor per in-progress
// room, consuming its Room Bus, advancing the Totem state machine, and
// broadcasting snapshots. It is grounded on the teacher's
// table.Table.run() actor loop (select over an event source plus a
// heartbeat ticker), adapted to spec.md §5's polling model: GR polls its
// Room Bus non-blockingly and sleeps ~50ms between polls rather than
// selecting on a channel directly, since Bus hides its channels behind
// TryReceive.
package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"totem/internal/bus"
	"totem/internal/command"
	"totem/internal/registry"
	"totem/internal/totemerr"
	"totem/internal/totemlog"
	"totem/internal/totemmetrics"
	"totem/totem"
)

// pollInterval matches spec.md §5's "~50 ms between polls".
const pollInterval = 50 * time.Millisecond

// idleTimeout is the per-turn idle timer from spec.md §4.5.
const idleTimeout = 30 * time.Second

// Sender delivers a line to one connection by handle. Implemented by the
// Connection Handler's connection manager; kept as a narrow interface
// here so this package never imports the connection package.
type Sender interface {
	Send(handle string, line string)
}

// Runner is the Game Runner for one room.
type Runner struct {
	roomID int
	reg    *registry.Registry
	bus    *bus.Bus
	sender Sender

	game        *totem.Game
	seatHandles []string

	idleTimeout time.Duration
	done        chan struct{}
}

// NewRunner builds a Game Runner over the given seated roster, in seat
// order, dealing a fresh match (spec.md §4.5, Setup).
func NewRunner(roomID int, seatHandles []string, reg *registry.Registry, roomBus *bus.Bus, sender Sender) (*Runner, error) {
	g, err := totem.NewGame(totem.Config{NumSeats: len(seatHandles)})
	if err != nil {
		return nil, err
	}
	return &Runner{
		roomID:      roomID,
		reg:         reg,
		bus:         roomBus,
		sender:      sender,
		game:        g,
		seatHandles: append([]string{}, seatHandles...),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}, nil
}

// Done reports whether the runner has terminated.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Run is the actor loop. It returns when the match ends, the room is
// destroyed, or ctx is cancelled (process shutdown).
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	ctxLogged := totemlog.WithRoomID(ctx, r.roomID)
	totemmetrics.MatchesInProgress.Inc()
	defer totemmetrics.MatchesInProgress.Dec()

	r.broadcastSnapshot()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastEvent := time.Now()

	for {
		select {
		case <-ctx.Done():
			totemlog.Info(ctxLogged, "game runner: shutting down on process cancellation")
			return
		case <-ticker.C:
			advanced := r.drainOnce(ctxLogged)
			if r.game.Ended() {
				return
			}
			if r.roomDestroyed() {
				totemlog.Info(ctxLogged, "game runner: room destroyed, exiting")
				return
			}
			if len(r.seatHandles) == 0 {
				totemlog.Info(ctxLogged, "game runner: seated roster empty, exiting")
				return
			}
			if advanced {
				lastEvent = time.Now()
				continue
			}
			if time.Since(lastEvent) >= r.idleTimeout {
				r.forceTimeout(ctxLogged)
				lastEvent = time.Now()
			}
		}
	}
}

// drainOnce processes every envelope currently queued on the Room Bus and
// reports whether any were processed.
func (r *Runner) drainOnce(ctx context.Context) bool {
	processed := false
	for {
		env, ok := r.bus.TryReceive()
		if !ok {
			return processed
		}
		processed = true
		r.handle(ctx, env)
		if r.game.Ended() {
			return processed
		}
	}
}

func (r *Runner) handle(ctx context.Context, env command.Envelope) {
	switch env.Command.Kind {
	case command.Draw:
		r.handleDraw(ctx, env)
	case command.Grab:
		r.handleGrab(ctx, env)
	case command.Refresh:
		r.handleRefresh(env)
	case command.Leave:
		r.reconcileRoster(ctx)
	case command.Spectate:
		r.reconcileRoster(ctx)
		// The spectator isn't seated, so the roster broadcast above never
		// reaches them; give them the state directly (spec.md §4.4: LC
		// forwards spectate onto the Room Bus "so GR can refresh the new
		// spectator").
		r.sender.Send(env.Sender, r.renderSnapshot())
	}
}

func (r *Runner) seatOf(handle string) int {
	for i, h := range r.seatHandles {
		if h == handle {
			return i
		}
	}
	return totem.InvalidSeat
}

func (r *Runner) handleDraw(ctx context.Context, env command.Envelope) {
	seatIdx := r.seatOf(env.Sender)
	if seatIdx == totem.InvalidSeat {
		r.sender.Send(env.Sender, totemerr.ErrNotSeated.Error())
		return
	}
	if err := r.game.Draw(seatIdx, env.Command.Turn); err != nil {
		r.sender.Send(env.Sender, r.translate(err))
		return
	}
	totemlog.Info(ctx, "game runner: draw", zap.Int("seat", seatIdx))
	r.broadcastSnapshot()
}

func (r *Runner) handleGrab(ctx context.Context, env command.Envelope) {
	seatIdx := r.seatOf(env.Sender)
	if seatIdx == totem.InvalidSeat {
		r.sender.Send(env.Sender, totemerr.ErrNotSeated.Error())
		return
	}
	result, err := r.game.Grab(seatIdx, env.Command.Turn)
	if err != nil {
		r.sender.Send(env.Sender, r.translate(err))
		return
	}

	switch result.Outcome {
	case totem.GrabOutcomeMistake:
		r.sender.Send(r.seatHandles[result.Grabber], "You made a mistake. Take all the cards :)")
	case totem.GrabOutcomeWin:
		r.sender.Send(r.seatHandles[result.Grabber], "You win the fight.")
		for _, loser := range result.Losers {
			r.sender.Send(r.seatHandles[loser], "You lost a fight- take cards from the winner.")
		}
	}

	totemlog.Info(ctx, "game runner: fight resolved",
		zap.Int("grabber_seat", result.Grabber), zap.String("outcome", grabOutcomeName(result.Outcome)))

	if result.GameEnded {
		r.sender.Send(r.seatHandles[result.Grabber], "You won the game!")
		for i, h := range r.seatHandles {
			if i == result.Grabber {
				continue
			}
			r.sender.Send(h, "You lost the game.")
		}
		totemlog.Info(ctx, "game runner: match ended", zap.Int("winner_seat", result.Grabber))
		return
	}
	r.broadcastSnapshot()
}

func grabOutcomeName(o totem.GrabOutcome) string {
	if o == totem.GrabOutcomeWin {
		return "win"
	}
	return "mistake"
}

func (r *Runner) handleRefresh(env command.Envelope) {
	if env.Sender == "" {
		// Synthetic refresh pushed by the Lobby Controller right after
		// start: broadcast the initial state to every seated player.
		r.broadcastSnapshot()
		return
	}
	r.sender.Send(env.Sender, r.renderSnapshot())
}

// reconcileRoster re-reads the seated roster under room-mutex and, for
// every seat that has departed since the runner's last view, orphans its
// cards and adjusts the current-player cursor (spec.md §4.5, Player
// departure during a match).
func (r *Runner) reconcileRoster(ctx context.Context) {
	var liveHandles []string
	destroyed := false
	r.reg.Rooms(func(t *registry.RoomTable) {
		rm, ok := t.Find(r.roomID)
		if !ok {
			destroyed = true
			return
		}
		for _, seat := range rm.Seats {
			if seat != nil {
				liveHandles = append(liveHandles, seat.Handle)
			}
		}
	})
	if destroyed {
		return
	}

	live := make(map[string]bool, len(liveHandles))
	for _, h := range liveHandles {
		live[h] = true
	}

	// Walk from the back so RemoveSeat's index shifts never skip a seat.
	for i := len(r.seatHandles) - 1; i >= 0; i-- {
		h := r.seatHandles[i]
		if live[h] {
			continue
		}
		if err := r.game.RemoveSeat(i); err != nil {
			continue
		}
		r.seatHandles = append(r.seatHandles[:i], r.seatHandles[i+1:]...)
		totemlog.Info(ctx, "game runner: seat departed", zap.Int("seat", i))
	}
	r.broadcastSnapshot()
}

func (r *Runner) roomDestroyed() bool {
	destroyed := false
	r.reg.Rooms(func(t *registry.RoomTable) {
		if _, ok := t.Find(r.roomID); !ok {
			destroyed = true
		}
	})
	return destroyed
}

func (r *Runner) forceTimeout(ctx context.Context) {
	cur := r.game.CurrentSeat()
	r.game.ForceTimeoutDraw()
	totemmetrics.IdleTimeoutsTotal.Inc()
	totemlog.Warn(ctx, "game runner: idle timeout forced a draw", zap.Int("seat", cur))
	r.broadcastSnapshot()
}

func (r *Runner) translate(err error) string {
	switch e := err.(type) {
	case totem.StaleTurnError:
		return totemerr.CurrentTurn(e.Current).Error()
	default:
		if err == totem.ErrNotYourTurn {
			return totemerr.ErrNotYourTurn.Error()
		}
		return totemerr.Policy("%s", err.Error()).Error()
	}
}

// broadcastSnapshot sends the current state to every seated player.
func (r *Runner) broadcastSnapshot() {
	text := r.renderSnapshot()
	for _, h := range r.seatHandles {
		r.sender.Send(h, text)
	}
}

func (r *Runner) renderSnapshot() string {
	snap := r.game.Snapshot()
	var b strings.Builder

	currentNick := "?"
	if snap.CurrentSeat >= 0 && snap.CurrentSeat < len(r.seatHandles) {
		currentNick = r.nicknameOf(r.seatHandles[snap.CurrentSeat])
	}

	var spectators int
	r.reg.Rooms(func(t *registry.RoomTable) {
		if rm, ok := t.Find(r.roomID); ok {
			spectators = rm.SpectatorCount
		}
	})

	fmt.Fprintf(&b, "Turn %d / Current player: %s\n", snap.Turn, currentNick)
	for _, ss := range snap.Seats {
		nick := r.nicknameOf(r.seatHandles[ss.Seat])
		if ss.HasTableTop {
			fmt.Fprintf(&b, "%s: hand=%d table=%d top=c%ds%d\n", nick, ss.HandSize, ss.TableSize, ss.TopColour, ss.TopShape)
		} else {
			fmt.Fprintf(&b, "%s: hand=%d table=%d\n", nick, ss.HandSize, ss.TableSize)
		}
	}
	fmt.Fprintf(&b, "Spectators: %d", spectators)
	return b.String()
}

func (r *Runner) nicknameOf(handle string) string {
	var nick string
	r.reg.Clients(func(t *registry.ClientTable) {
		if c, ok := t.Find(handle); ok {
			nick = c.Nickname
		}
	})
	if nick == "" {
		return handle
	}
	return nick
}
