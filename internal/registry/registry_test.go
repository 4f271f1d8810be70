package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTable_InsertFindRemove(t *testing.T) {
	reg := New()
	ctx := context.Background()

	reg.Clients(func(t *ClientTable) {
		c := t.Insert(ctx, "h1")
		assert.Equal(t, NoRoom, c.RoomID)
	})

	reg.Clients(func(t *ClientTable) {
		c, ok := t.Find("h1")
		require.True(t, ok)
		assert.Equal(t, "h1", c.Handle)
	})

	reg.Clients(func(t *ClientTable) {
		t.Remove(ctx, "h1")
		_, ok := t.Find("h1")
		assert.False(t, ok)
	})
}

func TestClientTable_FindByNickname(t *testing.T) {
	reg := New()
	ctx := context.Background()

	reg.Clients(func(t *ClientTable) {
		c := t.Insert(ctx, "h1")
		c.Nickname = "alice"
	})

	reg.Clients(func(t *ClientTable) {
		c, ok := t.FindByNickname("alice")
		require.True(t, ok)
		assert.Equal(t, "h1", c.Handle)

		_, ok = t.FindByNickname("bob")
		assert.False(t, ok)
	})
}

func TestRoomTable_InsertRejectsDuplicateID(t *testing.T) {
	reg := New()
	ctx := context.Background()

	reg.Rooms(func(t *RoomTable) {
		_, ok := t.Insert(ctx, 1)
		require.True(t, ok)

		_, ok = t.Insert(ctx, 1)
		assert.False(t, ok)
	})
}

func TestRoom_SeatAccessors(t *testing.T) {
	room := &Room{ID: 1}
	assert.Equal(t, 0, room.SeatedCount())
	assert.Equal(t, 0, room.FirstEmptySeat())
	assert.Equal(t, -1, room.EarliestSeat())

	first := time.Now()
	second := first.Add(time.Second)
	room.Seats[0] = &Seat{Handle: "h1", JoinedAt: second}
	room.Seats[2] = &Seat{Handle: "h2", JoinedAt: first}

	assert.Equal(t, 2, room.SeatedCount())
	assert.Equal(t, 1, room.FirstEmptySeat())
	assert.Equal(t, 2, room.EarliestSeat(), "h2 joined first despite sitting in a later seat index")
	assert.Equal(t, 0, room.SeatOf("h1"))
	assert.Equal(t, -1, room.SeatOf("unknown"))
}

func TestRegistry_BothMutatesBothCollections(t *testing.T) {
	reg := New()
	ctx := context.Background()

	reg.Both(func(ct *ClientTable, rt *RoomTable) {
		ct.Insert(ctx, "h1")
		rt.Insert(ctx, 1)
	})

	reg.Clients(func(t *ClientTable) {
		_, ok := t.Find("h1")
		assert.True(t, ok)
	})
	reg.Rooms(func(t *RoomTable) {
		_, ok := t.Find(1)
		assert.True(t, ok)
	})
}

func TestRoomTable_List(t *testing.T) {
	reg := New()
	ctx := context.Background()

	reg.Rooms(func(t *RoomTable) {
		t.Insert(ctx, 1)
		t.Insert(ctx, 2)
	})

	reg.Rooms(func(t *RoomTable) {
		assert.Len(t, t.List(), 2)
	})
}
