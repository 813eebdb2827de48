// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/propstream/propstream/internal/identity"
)

// DefaultQueueSize is the outbound event buffer per connection. A slow
// client fills its own buffer and starts losing events; it never blocks
// delivery to other clients.
const DefaultQueueSize = 64

var (
	// ErrConnectionClosed is returned by Send after the connection's
	// terminal hook has run.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrQueueFull is returned by Send when the client's outbound buffer
	// is full.
	ErrQueueFull = errors.New("connection send queue full")
)

// Connection is a live, bidirectional channel to exactly one authenticated
// identity. It is owned by the process that accepted it and is never shared
// across processes or persisted.
type Connection struct {
	ID        ulid.ULID
	Identity  identity.Identity
	CreatedAt time.Time

	mu     sync.RWMutex
	out    chan Event
	closed bool
	rooms  map[string]struct{}

	closeOnce sync.Once
	onClose   func(*Connection)
}

// NewConnection creates an unregistered connection for the given identity.
// queueSize <= 0 selects DefaultQueueSize.
func NewConnection(id identity.Identity, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Connection{
		ID:        ulid.Make(),
		Identity:  id,
		CreatedAt: time.Now(),
		out:       make(chan Event, queueSize),
		rooms:     make(map[string]struct{}),
	}
}

// Send enqueues an event for delivery to the client. It never blocks:
// a closed connection or a full buffer yields an error the caller logs
// and moves past.
func (c *Connection) Send(event Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.out <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events returns the outbound event stream consumed by the transport's
// write pump. The channel is closed when the connection closes.
func (c *Connection) Events() <-chan Event {
	return c.out
}

// Closed reports whether the terminal hook has run.
func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close runs the connection's terminal hook exactly once: network drop,
// client quit and server shutdown all funnel through here, so room and
// registry state cannot leak or double-free.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.mu.Lock()
		c.closed = true
		close(c.out)
		c.mu.Unlock()
	})
}

// setOnClose installs the terminal hook. Called once by the subscription
// manager when the connection is admitted.
func (c *Connection) setOnClose(fn func(*Connection)) {
	c.onClose = fn
}

// joinRoom records a room membership on the connection. Returns false if
// the connection was already in the room or is closed.
func (c *Connection) joinRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

// leaveRoom removes a room membership. Returns false if absent.
func (c *Connection) leaveRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	return true
}

// Rooms returns a snapshot of the connection's room memberships.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// InRoom reports whether the connection is currently in the room.
func (c *Connection) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}
