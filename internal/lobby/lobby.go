// Package lobby implements the Lobby Controller: the single consumer of
// the global Command Bus. It is grounded on the teacher's lobby.Lobby
// (mutex-guarded map dispatch for QuickStart/CleanupIdleTables),
// generalized to spec.md §4.4's full command set and its per-room Game
// Runner spawning.
package lobby

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"totem/internal/bus"
	"totem/internal/command"
	"totem/internal/registry"
	"totem/internal/room"
	"totem/internal/roomdesc"
	"totem/internal/totemerr"
	"totem/internal/totemlog"
)

// pollInterval is how long LC sleeps when the Command Bus is empty,
// matching spec.md §5 ("sleeps when idle").
const pollInterval = 10 * time.Millisecond

// startRetryWindow bounds the legacy "open the Room Bus" retry loop from
// spec.md §4.4; collapsed to a formality here since the Room Bus is an
// in-process channel pair created synchronously, but kept so the retry
// discipline described by the spec has a concrete, observable home.
const startRetryWindow = time.Second

// Controller is the Lobby Controller.
type Controller struct {
	reg    *registry.Registry
	cb     *bus.Bus
	sender room.Sender

	roomBuses map[int]*bus.Bus
	runners   map[int]runnerHandle
}

type runnerHandle struct {
	runner *room.Runner
	cancel context.CancelFunc
}

// New builds a Controller over the global Command Bus cb, backed by
// registry reg, replying to clients through sender.
func New(reg *registry.Registry, cb *bus.Bus, sender room.Sender) *Controller {
	return &Controller{
		reg:       reg,
		cb:        cb,
		sender:    sender,
		roomBuses: make(map[int]*bus.Bus),
		runners:   make(map[int]runnerHandle),
	}
}

// Run drains the Command Bus until ctx is cancelled and then returns. It
// does not close client sockets or clear the registry; room state is left
// as it was.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			totemlog.Info(ctx, "lobby controller: shutting down")
			return
		default:
		}

		env, ok := c.cb.TryReceive()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Controller) dispatch(ctx context.Context, env command.Envelope) {
	switch env.Command.Kind {
	case command.Create:
		c.handleCreate(ctx, env)
	case command.Join:
		c.handleJoin(ctx, env)
	case command.Spectate:
		c.handleSpectate(ctx, env)
	case command.Start:
		c.handleStart(ctx, env)
	case command.Leave:
		c.handleLeave(ctx, env)
	case command.Draw, command.Grab, command.Refresh:
		c.handleGameplay(ctx, env)
	}
}

func (c *Controller) reply(handle, line string) {
	c.sender.Send(handle, line)
}

// handleCreate implements spec.md §4.4 `create id`.
func (c *Controller) handleCreate(ctx context.Context, env command.Envelope) {
	var result error
	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok {
			return
		}
		if cl.RoomID != registry.NoRoom {
			result = totemerr.ErrAlreadyInRoom
			return
		}
		rm, created := rt.Insert(ctx, env.Command.RoomID)
		if !created {
			result = totemerr.ErrRoomExists
			return
		}
		rm.Seats[0] = &registry.Seat{Handle: env.Sender, JoinedAt: time.Now()}
		cl.RoomID = rm.ID
	})
	if result != nil {
		c.reply(env.Sender, result.Error())
		return
	}
	totemlog.Info(ctx, "lobby controller: room created", zap.String("sender", env.Sender), zap.Int("room_id", env.Command.RoomID))
	c.reply(env.Sender, fmt.Sprintf("Created room %d.", env.Command.RoomID))
}

// handleJoin implements spec.md §4.4 `join id`.
func (c *Controller) handleJoin(ctx context.Context, env command.Envelope) {
	var result error
	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok {
			return
		}
		if cl.RoomID != registry.NoRoom {
			result = totemerr.ErrAlreadyInRoom
			return
		}
		rm, ok := rt.Find(env.Command.RoomID)
		if !ok {
			result = totemerr.ErrRoomNotFound
			return
		}
		if rm.State == registry.InProgress {
			result = totemerr.ErrRoomInProgress
			return
		}
		seatIdx := rm.FirstEmptySeat()
		if seatIdx == -1 {
			result = totemerr.ErrRoomFull
			return
		}
		rm.Seats[seatIdx] = &registry.Seat{Handle: env.Sender, JoinedAt: time.Now()}
		cl.RoomID = rm.ID
	})
	if result != nil {
		c.reply(env.Sender, result.Error())
		return
	}
	totemlog.Info(ctx, "lobby controller: room joined", zap.String("sender", env.Sender), zap.Int("room_id", env.Command.RoomID))
	c.reply(env.Sender, fmt.Sprintf("Joined room %d.", env.Command.RoomID))
}

// handleSpectate implements spec.md §4.4 `spectate id`.
func (c *Controller) handleSpectate(ctx context.Context, env command.Envelope) {
	var result error
	var inProgress bool
	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok {
			return
		}
		if cl.RoomID != registry.NoRoom {
			result = totemerr.ErrAlreadyInRoom
			return
		}
		rm, ok := rt.Find(env.Command.RoomID)
		if !ok {
			result = totemerr.ErrRoomNotFound
			return
		}
		rm.SpectatorCount++
		cl.RoomID = rm.ID
		inProgress = rm.State == registry.InProgress
	})
	if result != nil {
		c.reply(env.Sender, result.Error())
		return
	}
	totemlog.Info(ctx, "lobby controller: spectating", zap.String("sender", env.Sender), zap.Int("room_id", env.Command.RoomID))
	c.reply(env.Sender, fmt.Sprintf("Spectating room %d.", env.Command.RoomID))

	if inProgress {
		if rb, ok := c.roomBuses[env.Command.RoomID]; ok {
			rb.Send(ctx, command.Priority1, env)
		}
	}
}

// handleStart implements spec.md §4.4 `start`.
func (c *Controller) handleStart(ctx context.Context, env command.Envelope) {
	var result error
	var roomID int
	var seatHandles []string

	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok {
			return
		}
		if cl.RoomID == registry.NoRoom {
			result = totemerr.ErrNotInRoom
			return
		}
		rm, ok := rt.Find(cl.RoomID)
		if !ok {
			result = totemerr.ErrRoomNotFound
			return
		}
		if rm.State != registry.Idle {
			result = totemerr.ErrAlreadyStarted
			return
		}
		earliest := rm.EarliestSeat()
		if rm.SeatedCount() < 2 || earliest == -1 || rm.Seats[earliest].Handle != env.Sender {
			result = totemerr.ErrCannotStart
			return
		}
		rm.State = registry.InProgress
		roomID = rm.ID
		for _, seat := range rm.Seats {
			if seat != nil {
				seatHandles = append(seatHandles, seat.Handle)
			}
		}
	})
	if result != nil {
		c.reply(env.Sender, result.Error())
		return
	}

	c.reply(env.Sender, "Match started.")
	c.spawnRunner(ctx, roomID, seatHandles)
	totemlog.Info(ctx, "lobby controller: match started", zap.Int("room_id", roomID), zap.Int("players", len(seatHandles)))
}

// spawnRunner creates the room's Room Bus and Game Runner, removing any
// stale bus left over from a previous match in the same room id, then
// pushes the synthetic initial refresh (spec.md §4.4, `start`).
func (c *Controller) spawnRunner(ctx context.Context, roomID int, seatHandles []string) {
	if old, ok := c.roomBuses[roomID]; ok {
		old.Close()
	}
	rb := bus.New(fmt.Sprintf("TotemRoom%d", roomID), bus.DefaultCapacity)
	c.roomBuses[roomID] = rb

	runner, err := room.NewRunner(roomID, seatHandles, c.reg, rb, c.sender)
	if err != nil {
		totemlog.Error(ctx, "lobby controller: failed to build game runner", zap.Int("room_id", roomID), zap.Error(err))
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.runners[roomID] = runnerHandle{runner: runner, cancel: cancel}
	go runner.Run(runCtx)

	retryCtx, retryCancel := context.WithTimeout(ctx, startRetryWindow)
	defer retryCancel()
	rb.Send(retryCtx, command.Priority1, command.Envelope{
		Sender:  "",
		Command: command.Command{Kind: command.Refresh},
	})
}

// handleLeave implements spec.md §4.4 `leave`.
func (c *Controller) handleLeave(ctx context.Context, env command.Envelope) {
	var roomID int
	var wasInRoom bool
	var roomEmpty bool
	var inProgress bool

	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok {
			return
		}
		if cl.RoomID == registry.NoRoom {
			return
		}
		wasInRoom = true
		roomID = cl.RoomID
		cl.RoomID = registry.NoRoom

		rm, ok := rt.Find(roomID)
		if !ok {
			return
		}
		if seatIdx := rm.SeatOf(env.Sender); seatIdx != -1 {
			rm.Seats[seatIdx] = nil
		} else if rm.SpectatorCount > 0 {
			rm.SpectatorCount--
		}
		inProgress = rm.State == registry.InProgress
		if rm.SeatedCount() == 0 && rm.SpectatorCount == 0 {
			roomEmpty = true
			rt.Remove(ctx, roomID)
		}
	})

	if !wasInRoom {
		c.reply(env.Sender, totemerr.ErrNotInRoom.Error())
		return
	}

	if inProgress {
		if rb, ok := c.roomBuses[roomID]; ok {
			rb.Send(ctx, command.Priority1, env)
		}
	}
	if roomEmpty {
		c.destroyRoomBus(roomID)
	}

	totemlog.Info(ctx, "lobby controller: left room", zap.String("sender", env.Sender), zap.Int("room_id", roomID))
	c.reply(env.Sender, fmt.Sprintf("Left room %d.", roomID))
}

func (c *Controller) destroyRoomBus(roomID int) {
	if rb, ok := c.roomBuses[roomID]; ok {
		rb.Close()
		delete(c.roomBuses, roomID)
	}
	if rh, ok := c.runners[roomID]; ok {
		rh.cancel()
		delete(c.runners, roomID)
	}
}

// handleGameplay implements spec.md §4.4's Priority 1 handler: resolve
// the sender's room, serve an idle-room refresh directly, or forward the
// raw command to the room's Room Bus.
func (c *Controller) handleGameplay(ctx context.Context, env command.Envelope) {
	var roomID int
	var inRoom bool
	var idleDescription string
	var forward bool

	c.reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		cl, ok := ct.Find(env.Sender)
		if !ok || cl.RoomID == registry.NoRoom {
			return
		}
		inRoom = true
		roomID = cl.RoomID
		rm, ok := rt.Find(roomID)
		if !ok {
			return
		}
		if rm.State == registry.Idle && env.Command.Kind == command.Refresh {
			idleDescription = roomdesc.Describe(ct, rm)
			return
		}
		forward = true
	})

	if !inRoom {
		c.reply(env.Sender, totemerr.ErrNotInRoom.Error())
		return
	}
	if idleDescription != "" {
		c.reply(env.Sender, idleDescription)
		return
	}
	if !forward {
		c.reply(env.Sender, totemerr.ErrRoomNotFound.Error())
		return
	}

	rb, ok := c.roomBuses[roomID]
	if !ok {
		c.reply(env.Sender, totemerr.ErrRoomNotFound.Error())
		return
	}
	rb.Send(ctx, command.Priority1, env)
}
