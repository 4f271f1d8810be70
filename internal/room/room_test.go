package room

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"totem/internal/bus"
	"totem/internal/command"
	"totem/internal/registry"
	"totem/totem"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{msgs: make(map[string][]string)}
}

func (f *fakeSender) Send(handle, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[handle] = append(f.msgs[handle], line)
}

func (f *fakeSender) last(handle string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[handle]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fakeSender) count(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[handle])
}

func seatRoom(t *testing.T, reg *registry.Registry, roomID int, handles []string) {
	t.Helper()
	reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		rm, _ := rt.Insert(context.Background(), roomID)
		for i, h := range handles {
			ct.Insert(context.Background(), h)
			if c, ok := ct.Find(h); ok {
				c.Nickname = h
				c.RoomID = roomID
			}
			rm.Seats[i] = &registry.Seat{Handle: h, JoinedAt: time.Now()}
		}
		rm.State = registry.InProgress
	})
}

func TestRunner_InitialBroadcastAndDraw(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob"}
	seatRoom(t, reg, 1, handles)

	rb := bus.New("TotemRoom1", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(1, handles, reg, rb, sender)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return sender.count("alice") >= 1 && sender.count("bob") >= 1
	}, time.Second, 5*time.Millisecond)

	cur := r.game.CurrentSeat()
	turn := r.game.Turn()
	rb.Send(ctx, command.Priority1, command.Envelope{
		Sender:  handles[cur],
		Command: command.Command{Kind: command.Draw, Turn: turn},
	})

	require.Eventually(t, func() bool {
		return strings.Contains(sender.last(handles[cur]), "Turn 1")
	}, time.Second, 5*time.Millisecond)
}

func TestRunner_MisGrabBroadcastsMistakeMessage(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob"}
	seatRoom(t, reg, 2, handles)

	rb := bus.New("TotemRoom2", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(2, handles, reg, rb, sender)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return sender.count("alice") >= 1
	}, time.Second, 5*time.Millisecond)

	turn := r.game.Turn()
	rb.Send(ctx, command.Priority1, command.Envelope{
		Sender:  "alice",
		Command: command.Command{Kind: command.Grab, Turn: turn},
	})

	// The mistake line is followed by a state broadcast, so it is not
	// necessarily alice's last message.
	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		for _, m := range sender.msgs["alice"] {
			if m == "You made a mistake. Take all the cards :)" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestRunner_ReconcileRosterOnDeparture(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob", "carol"}
	seatRoom(t, reg, 3, handles)

	rb := bus.New("TotemRoom3", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(3, handles, reg, rb, sender)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return sender.count("bob") >= 1
	}, time.Second, 5*time.Millisecond)

	reg.Rooms(func(rt *registry.RoomTable) {
		rm, _ := rt.Find(3)
		rm.Seats[1] = nil
	})

	rb.Send(ctx, command.Priority0, command.Envelope{
		Sender:  "bob",
		Command: command.Command{Kind: command.Leave},
	})

	require.Eventually(t, func() bool {
		return r.game.NumSeats() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 72, r.game.TotalCards())
}

func TestRunner_ExitsWhenRoomDestroyed(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob"}
	seatRoom(t, reg, 4, handles)

	rb := bus.New("TotemRoom4", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(4, handles, reg, rb, sender)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return sender.count("alice") >= 1
	}, time.Second, 5*time.Millisecond)

	reg.Rooms(func(rt *registry.RoomTable) {
		rt.Remove(context.Background(), 4)
	})

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not exit after room destruction")
	}
}

func TestRunner_ExitsWhenAllSeatsDepartButRoomSurvivesForSpectator(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob"}
	seatRoom(t, reg, 6, handles)

	// A spectator keeps the room alive in the registry even once both
	// seated players leave (internal/lobby.handleLeave only destroys a
	// room when SeatedCount()==0 AND SpectatorCount==0).
	reg.Rooms(func(rt *registry.RoomTable) {
		rm, _ := rt.Find(6)
		rm.SpectatorCount = 1
	})

	rb := bus.New("TotemRoom6", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(6, handles, reg, rb, sender)
	require.NoError(t, err)
	r.idleTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return sender.count("alice") >= 1
	}, time.Second, 5*time.Millisecond)

	reg.Rooms(func(rt *registry.RoomTable) {
		rm, _ := rt.Find(6)
		rm.Seats[0] = nil
		rm.Seats[1] = nil
	})
	rb.Send(ctx, command.Priority0, command.Envelope{
		Sender:  "alice",
		Command: command.Command{Kind: command.Leave},
	})

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not exit once its seated roster emptied")
	}

	reg.Rooms(func(rt *registry.RoomTable) {
		_, ok := rt.Find(6)
		assert.True(t, ok, "room must still exist for the spectator")
	})
}

func TestForceTimeoutDraw_NoopOnEmptySeats(t *testing.T) {
	g, err := totem.NewGame(totem.Config{NumSeats: 2})
	require.NoError(t, err)

	require.NoError(t, g.RemoveSeat(1))
	require.NoError(t, g.RemoveSeat(0))
	require.Equal(t, 0, g.NumSeats())

	assert.NotPanics(t, func() { g.ForceTimeoutDraw() })
}

func TestRunner_IdleTimeoutForcesDraw(t *testing.T) {
	reg := registry.New()
	handles := []string{"alice", "bob"}
	seatRoom(t, reg, 5, handles)

	rb := bus.New("TotemRoom5", bus.DefaultCapacity)
	sender := newFakeSender()

	r, err := NewRunner(5, handles, reg, rb, sender)
	require.NoError(t, err)
	r.idleTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		return strings.Contains(sender.last("alice"), "Turn 1")
	}, time.Second, 5*time.Millisecond)
}
