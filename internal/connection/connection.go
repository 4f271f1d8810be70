// Package connection implements the Connection Handler: one goroutine
// pair per client socket, shepherding it from greeting to disconnect. It
// is grounded on the teacher's gateway.Connection/gateway.Gateway
// (readPump/writePump goroutine pair, buffered Send channel, a
// mutex-guarded connection map), re-targeted from a websocket+protobuf
// upgrade onto spec.md §6's raw newline-delimited TCP socket.
package connection

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"totem/internal/bus"
	"totem/internal/command"
	"totem/internal/registry"
	"totem/internal/roomdesc"
	"totem/internal/totemerr"
	"totem/internal/totemlog"
)

const (
	minNicknameLen = 3
	maxNicknameLen = 16

	// sendBuffer is the per-connection outbound queue depth, mirroring the
	// teacher's `Send chan []byte, 256` sizing.
	sendBuffer = 256

	// leaveDrainDelay gives the Lobby Controller a chance to process the
	// synthetic leave before the client record is removed (spec.md §4.3
	// step 5).
	leaveDrainDelay = 20 * time.Millisecond
)

// Conn is one client socket's handler state.
type Conn struct {
	handle string
	nick   string
	raw    net.Conn
	send   chan string
	mgr    *Manager
}

// Manager is the connection-handler-wide registry of live sockets,
// mirroring the teacher's Gateway (mutex-guarded map keyed by connection
// id). It implements room.Sender and lobby's reply interface so GR/LC can
// write to any connection by handle without importing this package.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{conns: make(map[string]*Conn)}
}

// Send writes line to the named connection's outbound queue, dropping it
// if the connection is gone or its queue is full (mirrors the teacher's
// non-blocking broadcastToUser).
func (m *Manager) Send(handle, line string) {
	m.mu.RLock()
	c, ok := m.conns[handle]
	m.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- line:
	default:
	}
}

func (m *Manager) register(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.handle] = c
}

func (m *Manager) remove(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, handle)
}

// Serve owns one accepted socket for its entire lifetime: nickname
// negotiation, command-phase line dispatch, and disconnect cleanup. It
// returns once the connection is fully torn down.
func (m *Manager) Serve(ctx context.Context, raw net.Conn, reg *registry.Registry, cb *bus.Bus) {
	handle := uuid.NewString()
	ctx = totemlog.WithCorrelationID(ctx, handle)

	c := &Conn{
		handle: handle,
		raw:    raw,
		send:   make(chan string, sendBuffer),
		mgr:    m,
	}
	m.register(c)

	reg.Clients(func(t *registry.ClientTable) { t.Insert(ctx, handle) })

	totemlog.Info(ctx, "connection handler: client connected", zap.String("remote_addr", raw.RemoteAddr().String()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.send <- "Welcome to Totem."
	c.send <- "Enter a nickname (3-16 characters):"

	c.readPump(ctx, reg, cb)

	close(c.send)
	wg.Wait()

	totemlog.Info(ctx, "connection handler: client disconnected")
}

func (c *Conn) writePump() {
	for line := range c.send {
		if _, err := c.raw.Write([]byte(line + "\n")); err != nil {
			return
		}
	}
}

func (c *Conn) readPump(ctx context.Context, reg *registry.Registry, cb *bus.Bus) {
	defer c.teardown(ctx, reg, cb)

	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 0, 256), 256)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		if c.nick == "" {
			ctx = c.negotiateNickname(ctx, reg, line)
			continue
		}

		c.handleCommandLine(ctx, reg, cb, line)
	}
}

// negotiateNickname implements spec.md §4.3 step 3, returning a context
// carrying the assigned nickname for subsequent log calls on this
// connection.
func (c *Conn) negotiateNickname(ctx context.Context, reg *registry.Registry, line string) context.Context {
	if len(line) < minNicknameLen || len(line) > maxNicknameLen {
		c.send <- totemerr.ErrNicknameLength.Error()
		return ctx
	}

	var assigned bool
	reg.Clients(func(t *registry.ClientTable) {
		if _, taken := t.FindByNickname(line); taken {
			return
		}
		cl, ok := t.Find(c.handle)
		if !ok || cl.Nickname != "" {
			return
		}
		cl.Nickname = line
		assigned = true
	})

	if !assigned {
		c.send <- totemerr.ErrNicknameUnavailable.Error()
		return ctx
	}

	c.nick = line
	ctx = totemlog.WithNickname(ctx, line)
	totemlog.Info(ctx, "connection handler: nickname assigned")
	c.send <- "Welcome, " + line + ". Type 'list', 'create <id>', 'join <id>' or 'spectate <id>'."
	return ctx
}

// handleCommandLine implements spec.md §4.3 step 4.
func (c *Conn) handleCommandLine(ctx context.Context, reg *registry.Registry, cb *bus.Bus, line string) {
	cmd, err := command.Parse(line)
	if err != nil {
		c.send <- err.Error()
		return
	}

	if cmd.Kind == command.List {
		c.send <- c.renderRoomList(reg)
		return
	}

	env := command.Envelope{Sender: c.handle, Command: cmd}
	if !cb.Send(ctx, cmd.Kind.Priority(), env) {
		totemlog.Warn(ctx, "connection handler: command bus closed, dropping command")
	}
}

// renderRoomList self-serves `list` directly against the registry,
// bypassing the Command Bus entirely (spec.md §4.3).
func (c *Conn) renderRoomList(reg *registry.Registry) string {
	var blocks []string
	reg.Both(func(ct *registry.ClientTable, rt *registry.RoomTable) {
		for _, rm := range rt.List() {
			blocks = append(blocks, roomdesc.Describe(ct, rm))
		}
	})
	if len(blocks) == 0 {
		return "No rooms."
	}
	return strings.Join(blocks, "\n")
}

// teardown implements spec.md §4.3 step 5: emit a synthetic leave, give
// LC a moment to process it, then remove the client record.
func (c *Conn) teardown(ctx context.Context, reg *registry.Registry, cb *bus.Bus) {
	cb.Send(ctx, command.Priority0, command.Envelope{
		Sender:  c.handle,
		Command: command.Command{Kind: command.Leave},
	})
	time.Sleep(leaveDrainDelay)

	reg.Clients(func(t *registry.ClientTable) { t.Remove(ctx, c.handle) })
	c.mgr.remove(c.handle)
	c.raw.Close()
}
