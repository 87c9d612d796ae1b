package gameserver

import (
	"fmt"
	"sync"
)

// ClientEntity routes outbound events to a Go channel, bridging the gateway
// to the transport's write loop.
type ClientEntity struct {
	connID string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClientEntity creates a ClientEntity for the given connection identity.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns a ClientEntity with an open events channel.
func NewClientEntity(connID string, bufferSize int) *ClientEntity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &ClientEntity{
		connID: connID,
		events: make(chan []byte, bufferSize),
	}
}

// ConnID returns the connection identity.
func (e *ClientEntity) ConnID() string {
	return e.connID
}

// Push enqueues encoded event bytes for delivery.
//
// Postcondition: Data is enqueued, or an error if the entity is closed or
// its buffer is full.
func (e *ClientEntity) Push(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("connection %s is closed", e.connID)
	}
	select {
	case e.events <- data:
		return nil
	default:
		return fmt.Errorf("connection %s event buffer full", e.connID)
	}
}

// Events returns the read-only events channel. The transport's write loop
// reads from this channel until it is closed.
func (e *ClientEntity) Events() <-chan []byte {
	return e.events
}

// Close marks the entity as closed and closes the events channel. Safe to
// call multiple times.
//
// Postcondition: Further Push calls return an error.
func (e *ClientEntity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

// IsClosed reports whether the entity has been closed.
func (e *ClientEntity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
