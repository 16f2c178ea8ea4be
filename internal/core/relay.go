package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/emojichat/internal/proto"
	"github.com/vovakirdan/emojichat/internal/utils"
)

// Options tune relay behaviour.
type Options struct {
	// WriteTimeout bounds a single write to one peer during fan-out. Zero means no bound.
	WriteTimeout time.Duration
	// MaxConnections caps the active set. Zero means unlimited.
	MaxConnections int
}

// Relay tracks open connections and fans validated events out to them.
type Relay struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	opts Options
	log  *zerolog.Logger
}

// NewRelay creates an empty relay.
func NewRelay(opts Options, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		conns: make(map[string]*Connection),
		opts:  opts,
		log:   logger,
	}
}

// Full reports whether a new connection would be rejected.
func (r *Relay) Full() bool {
	if r.opts.MaxConnections <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) >= r.opts.MaxConnections
}

// Accept registers an already upgraded peer and moves it to Open.
// An empty name gets a generated display name.
func (r *Relay) Accept(peer Peer, name string) (*Connection, error) {
	id := utils.NewID()
	if name == "" {
		name = utils.DisplayName(id)
	}
	conn := NewConnection(id, name, peer)

	r.mu.Lock()
	if r.opts.MaxConnections > 0 && len(r.conns) >= r.opts.MaxConnections {
		r.mu.Unlock()
		r.log.Error().Str("name", name).Int("max", r.opts.MaxConnections).Msg("relay full, rejecting connection")
		return nil, ErrRelayFull
	}
	r.conns[id] = conn
	conn.transition(StateConnecting, StateOpen)
	total := len(r.conns)
	r.mu.Unlock()

	r.log.Info().Str("conn_id", id).Str("name", name).Int("connections", total).Msg("connection opened")
	return conn, nil
}

// HandleMessage validates a raw inbound frame and broadcasts it to everyone except the sender.
// Invalid frames are logged and dropped; the sender is never told. Returns the number of
// peers that received the event.
func (r *Relay) HandleMessage(ctx context.Context, conn *Connection, raw []byte) int {
	if conn.State() != StateOpen {
		return 0
	}

	ev, err := proto.Decode(raw)
	if err != nil {
		r.log.Debug().Err(err).Str("conn_id", conn.ID).Int("bytes", len(raw)).Msg("dropping inbound message")
		return 0
	}

	return r.Broadcast(ctx, ev, conn)
}

// Broadcast writes ev to every open connection except exclude. Writes run concurrently, each
// bounded by WriteTimeout; a peer whose write fails is disconnected.
func (r *Relay) Broadcast(ctx context.Context, ev proto.Event, exclude *Connection) int {
	data, err := proto.Encode(ev)
	if err != nil {
		r.log.Error().Err(err).Msg("encode broadcast")
		return 0
	}

	targets := r.snapshot(exclude)
	if len(targets) == 0 {
		return 0
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := r.write(ctx, c, data); err != nil {
				r.log.Warn().Err(err).Str("conn_id", c.ID).Msg("broadcast write failed, dropping connection")
				r.Disconnect(c)
				return
			}
			delivered.Add(1)
		}(c)
	}
	wg.Wait()

	return int(delivered.Load())
}

func (r *Relay) write(ctx context.Context, c *Connection, data []byte) error {
	if c.State() != StateOpen {
		return ErrConnClosed
	}
	if r.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.WriteTimeout)
		defer cancel()
	}
	return c.peer.Write(ctx, data)
}

// Disconnect removes conn from the active set and closes its peer.
// Only the first call has an effect; it returns whether this call removed the connection.
func (r *Relay) Disconnect(conn *Connection) bool {
	return r.disconnect(conn, "disconnected")
}

func (r *Relay) disconnect(conn *Connection, reason string) bool {
	r.mu.Lock()
	current, ok := r.conns[conn.ID]
	if !ok || current != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, conn.ID)
	total := len(r.conns)
	r.mu.Unlock()

	conn.transition(StateOpen, StateClosing)
	if err := conn.peer.Close(reason); err != nil {
		r.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("close peer")
	}
	conn.state.Store(int32(StateClosed))

	r.log.Info().Str("conn_id", conn.ID).Str("name", conn.Name).Int("connections", total).Msg("connection closed")
	return true
}

// Shutdown disconnects every open connection concurrently.
func (r *Relay) Shutdown(reason string) {
	targets := r.snapshot(nil)

	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			r.disconnect(c, reason)
		}(c)
	}
	wg.Wait()
}

// Count returns the number of registered connections.
func (r *Relay) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Connections returns a snapshot of every registered connection.
func (r *Relay) Connections() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.info())
	}
	return out
}

func (r *Relay) snapshot(exclude *Connection) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if c == exclude || c.State() != StateOpen {
			continue
		}
		out = append(out, c)
	}
	return out
}
