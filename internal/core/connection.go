package core

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle stage of a Connection.
type State int32

const (
	// StateConnecting is a connection that has been upgraded but not registered yet.
	StateConnecting State = iota
	// StateOpen connections take part in broadcasts.
	StateOpen
	// StateClosing connections are being torn down.
	StateClosing
	// StateClosed connections are gone for good.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer is the transport side of a connection.
// Write must be safe to call concurrently with itself and with Close.
type Peer interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Connection is one live client tracked by the Relay.
type Connection struct {
	ID   string
	Name string

	peer  Peer
	state atomic.Int32
}

// NewConnection wraps a peer in the Connecting state.
func NewConnection(id, name string, peer Peer) *Connection {
	c := &Connection{ID: id, Name: name, peer: peer}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Info is a read-only snapshot of a connection.
type Info struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (c *Connection) info() Info {
	return Info{ID: c.ID, Name: c.Name, State: c.State().String()}
}
