package roomdesc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"totem/internal/registry"
)

func TestDescribe_SeatedRoomWithNicknames(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	reg.Clients(func(ct *registry.ClientTable) {
		c := ct.Insert(ctx, "h1")
		c.Nickname = "alice"
	})

	var rm *registry.Room
	reg.Rooms(func(rt *registry.RoomTable) {
		rm, _ = rt.Insert(ctx, 5)
		rm.Seats[0] = &registry.Seat{Handle: "h1"}
		rm.SpectatorCount = 2
	})

	reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		r, _ := rt.Find(5)
		desc := Describe(ct, r)
		assert.Contains(t, desc, "Room 5:")
		assert.Contains(t, desc, "alice")
		assert.Contains(t, desc, "Spectators: 2")
		assert.Contains(t, desc, "Waiting to start the match.")
	})
}

func TestDescribe_FallsBackToHandleWithoutNickname(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	var rm *registry.Room
	reg.Rooms(func(rt *registry.RoomTable) {
		rm, _ = rt.Insert(ctx, 1)
		rm.Seats[0] = &registry.Seat{Handle: "unregistered-handle"}
		rm.State = registry.InProgress
	})

	reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		r, _ := rt.Find(1)
		desc := Describe(ct, r)
		assert.Contains(t, desc, "unregistered-handle")
		assert.Contains(t, desc, "Match in progress.")
	})
}
