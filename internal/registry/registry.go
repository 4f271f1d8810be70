// Package registry is the Shared Registry: the authoritative in-memory
// store of connected clients and rooms, mutated only under its two named
// mutexes. It is grounded on the teacher's mutex-guarded lobby.Lobby
// (sync.RWMutex over map[string]*table.Table), split here into two
// collections so callers can honor spec.md §5's lock order (client-mutex
// before room-mutex, never the reverse).
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"totem/internal/totemlog"
	"totem/internal/totemmetrics"
)

// NoRoom marks a client's absence of room membership.
const NoRoom = -1

// MaxSeats is a room's fixed seat capacity, per spec.md §3.
const MaxSeats = 8

// Client is one connected socket's lobby-visible record.
type Client struct {
	Handle   string
	Nickname string
	RoomID   int
}

// RoomState is a room's Idle/InProgress phase.
type RoomState int

const (
	Idle RoomState = iota
	InProgress
)

// Seat holds either a live client's handle or is empty (nil pointer in
// Room.Seats). Only the handle is stored, never a copy of Client, so a
// nickname change never drifts out of sync with the canonical record
// (spec.md §9, Room/player lifecycle without pointer sharing).
type Seat struct {
	Handle   string
	JoinedAt time.Time
}

// Room is one lobby room's membership and phase.
type Room struct {
	ID             int
	Seats          [MaxSeats]*Seat
	SpectatorCount int
	State          RoomState
}

// SeatedCount returns the number of occupied seats.
func (r *Room) SeatedCount() int {
	n := 0
	for _, s := range r.Seats {
		if s != nil {
			n++
		}
	}
	return n
}

// FirstEmptySeat returns the index of the first empty seat, or -1 if full.
func (r *Room) FirstEmptySeat() int {
	for i, s := range r.Seats {
		if s == nil {
			return i
		}
	}
	return -1
}

// EarliestSeat returns the index of the non-empty seat with the smallest
// JoinedAt, the room's dealer seat, or -1 if the room has no players.
func (r *Room) EarliestSeat() int {
	best := -1
	for i, s := range r.Seats {
		if s == nil {
			continue
		}
		if best == -1 || s.JoinedAt.Before(r.Seats[best].JoinedAt) {
			best = i
		}
	}
	return best
}

// SeatOf returns the seat index holding handle, or -1 if not seated.
func (r *Room) SeatOf(handle string) int {
	for i, s := range r.Seats {
		if s != nil && s.Handle == handle {
			return i
		}
	}
	return -1
}

// ClientTable is the client collection, accessible only while
// Registry.Clients holds client-mutex.
type ClientTable struct {
	byHandle map[string]*Client
}

// Find returns the client record for handle, if any.
func (t *ClientTable) Find(handle string) (*Client, bool) {
	c, ok := t.byHandle[handle]
	return c, ok
}

// FindByNickname scans for a client already holding nickname.
func (t *ClientTable) FindByNickname(nickname string) (*Client, bool) {
	for _, c := range t.byHandle {
		if c.Nickname == nickname {
			return c, true
		}
	}
	return nil, false
}

// Insert creates a client record with an empty nickname and no room.
func (t *ClientTable) Insert(ctx context.Context, handle string) *Client {
	c := &Client{Handle: handle, RoomID: NoRoom}
	t.byHandle[handle] = c
	totemmetrics.ClientsConnected.Set(float64(len(t.byHandle)))
	totemlog.Debug(ctx, "registry: client inserted", zap.String("handle", handle))
	return c
}

// Remove deletes a client record.
func (t *ClientTable) Remove(ctx context.Context, handle string) {
	delete(t.byHandle, handle)
	totemmetrics.ClientsConnected.Set(float64(len(t.byHandle)))
	totemlog.Debug(ctx, "registry: client removed", zap.String("handle", handle))
}

// Count returns the number of connected clients.
func (t *ClientTable) Count() int { return len(t.byHandle) }

// RoomTable is the room collection, accessible only while Registry.Rooms
// (or Registry.Both) holds room-mutex.
type RoomTable struct {
	byID map[int]*Room
}

// Find returns the room record for id, if any.
func (t *RoomTable) Find(id int) (*Room, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// Insert adds a new room. Returns false if id already exists.
func (t *RoomTable) Insert(ctx context.Context, id int) (*Room, bool) {
	if _, exists := t.byID[id]; exists {
		return nil, false
	}
	r := &Room{ID: id, State: Idle}
	t.byID[id] = r
	totemmetrics.RoomsActive.Set(float64(len(t.byID)))
	totemlog.Debug(ctx, "registry: room inserted", zap.Int("room_id", id))
	return r, true
}

// Remove deletes a room.
func (t *RoomTable) Remove(ctx context.Context, id int) {
	delete(t.byID, id)
	totemmetrics.RoomsActive.Set(float64(len(t.byID)))
	totemlog.Debug(ctx, "registry: room removed", zap.Int("room_id", id))
}

// List returns every room, for the `list` command (spec.md §4.3).
func (t *RoomTable) List() []*Room {
	out := make([]*Room, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	return out
}

// Registry is the Shared Registry: two independently-locked collections.
type Registry struct {
	clientMu sync.Mutex
	clientTb ClientTable

	roomMu sync.Mutex
	roomTb RoomTable
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		clientTb: ClientTable{byHandle: make(map[string]*Client)},
		roomTb:   RoomTable{byID: make(map[int]*Room)},
	}
}

// Clients runs fn with only client-mutex held.
func (r *Registry) Clients(fn func(*ClientTable)) {
	r.clientMu.Lock()
	defer r.clientMu.Unlock()
	fn(&r.clientTb)
}

// Rooms runs fn with only room-mutex held.
func (r *Registry) Rooms(fn func(*RoomTable)) {
	r.roomMu.Lock()
	defer r.roomMu.Unlock()
	fn(&r.roomTb)
}

// Both runs fn with client-mutex acquired before room-mutex, the only
// lock order spec.md §5 permits for callers that must mutate both
// collections.
func (r *Registry) Both(fn func(*ClientTable, *RoomTable)) {
	r.clientMu.Lock()
	defer r.clientMu.Unlock()
	r.roomMu.Lock()
	defer r.roomMu.Unlock()
	fn(&r.clientTb, &r.roomTb)
}
