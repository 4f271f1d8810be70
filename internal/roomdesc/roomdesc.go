// Package roomdesc renders the room description block shared by the
// Connection Handler's `list` reply and the Lobby Controller's idle-room
// `refresh` reply (spec.md §4.3, §4.4), so the two call sites can never
// drift apart.
package roomdesc

import (
	"fmt"
	"strings"

	"totem/internal/registry"
)

// Describe renders one room's description block: id, one line per
// occupied seat's nickname, spectator count, and a phase line. Call this
// with client-mutex already held (before room-mutex) if client is known
// to hold an in-progress Client record for each seat handle; nicknames
// fall back to the raw handle when the client record cannot be found
// (e.g. already removed).
func Describe(ct *registry.ClientTable, rm *registry.Room) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %d:\n", rm.ID)
	for _, seat := range rm.Seats {
		if seat == nil {
			continue
		}
		nick := seat.Handle
		if c, ok := ct.Find(seat.Handle); ok && c.Nickname != "" {
			nick = c.Nickname
		}
		fmt.Fprintf(&b, "%s\n", nick)
	}
	fmt.Fprintf(&b, "Spectators: %d\n", rm.SpectatorCount)
	if rm.State == registry.InProgress {
		b.WriteString("Match in progress.")
	} else {
		b.WriteString("Waiting to start the match.")
	}
	return b.String()
}
