// Package client implements the client side of the chat relay: a Session that owns one
// logical WebSocket connection and reports activity through registered callbacks.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/emojichat/internal/proto"
	"github.com/vovakirdan/emojichat/internal/utils"
)

var (
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("session closed")
	// ErrAlreadyConnected is returned by Connect while a connection is open or being opened.
	ErrAlreadyConnected = errors.New("session already connected")
)

// State is the lifecycle stage of a Session.
type State int32

const (
	// StateIdle is a Session that has never tried to connect.
	StateIdle State = iota
	// StateConnecting is a Session with a dial in flight.
	StateConnecting
	// StateOpen sessions can send and receive.
	StateOpen
	// StateDisconnected sessions lost or never got a connection; Connect may be called again.
	StateDisconnected
	// StateClosed sessions are torn down for good.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler is the observer a Session reports to. Any field may be nil.
// Callbacks run on the Session's own goroutines and must not block for long.
type Handler struct {
	OnConnected func()
	// OnDisconnected receives the transport error, or nil for a clean close by the server.
	OnDisconnected func(err error)
	OnMessage      func(author, text string)
}

// Options configure a Session.
type Options struct {
	URL          string
	Protocol     string
	Name         string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zerolog.Logger
}

// Session maintains a single logical connection to the relay.
type Session struct {
	opts Options
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stop    func() bool
	state   State
	name    string
	conn    *websocket.Conn
	done    chan struct{}
	handler Handler
}

// New creates an idle Session. Cancelling ctx closes the Session.
func New(ctx context.Context, opts Options) *Session {
	if opts.Protocol == "" {
		opts.Protocol = proto.Subprotocol
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	name := opts.Name
	if name == "" {
		name = utils.DisplayName(utils.NewID())
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:   opts,
		log:    logger,
		ctx:    sctx,
		cancel: cancel,
		name:   name,
	}
	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s
}

// SetHandler replaces the registered observer.
func (s *Session) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.handler = h
}

// SetName changes the display name attached to outgoing messages.
func (s *Session) SetName(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// Name returns the display name attached to outgoing messages.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the relay. Success fires OnConnected; failure moves the Session to
// Disconnected, fires OnDisconnected and returns the reason. The attempt is bounded by
// DialTimeout and aborted by Close.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateOpen:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(s.ctx, s.opts.DialTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	conn, _, err := websocket.Dial(dialCtx, s.opts.URL, &websocket.DialOptions{
		Subprotocols: []string{s.opts.Protocol},
	})
	if err == nil && conn.Subprotocol() != s.opts.Protocol {
		conn.Close(websocket.StatusPolicyViolation, "subprotocol "+s.opts.Protocol+" required")
		err = fmt.Errorf("server did not accept subprotocol %q", s.opts.Protocol)
	}
	if err != nil {
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return ErrClosed
		}
		s.state = StateDisconnected
		h := s.handler
		s.mu.Unlock()

		s.log.Warn().Err(err).Str("url", s.opts.URL).Msg("connect failed")
		if h.OnDisconnected != nil {
			h.OnDisconnected(err)
		}
		return fmt.Errorf("connect: %w", err)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		conn.CloseNow()
		return ErrClosed
	}
	done := make(chan struct{})
	s.state = StateOpen
	s.conn = conn
	s.done = done
	h := s.handler
	s.mu.Unlock()

	s.log.Info().Str("url", s.opts.URL).Str("name", s.Name()).Msg("connected")
	if h.OnConnected != nil {
		h.OnConnected()
	}

	go s.readLoop(conn, done)
	return nil
}

// Send wraps text in a message envelope authored by the Session's display name.
// It reports whether a write was attempted; false means the Session was not open.
func (s *Session) Send(text string) bool {
	ev, err := proto.NewEvent(s.Name(), text)
	if err != nil {
		s.log.Debug().Err(err).Msg("refusing to send empty message")
		return false
	}
	payload, err := proto.Encode(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("encode outgoing message")
		return false
	}
	return s.write(payload)
}

// SendRaw writes payload verbatim as one text frame.
func (s *Session) SendRaw(payload string) bool {
	return s.write([]byte(payload))
}

func (s *Session) write(payload []byte) bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateOpen || conn == nil {
		s.log.Debug().Str("state", state.String()).Msg("send ignored, session not open")
		return false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		s.log.Warn().Err(err).Msg("write failed")
		s.drop(conn, err)
	}
	return true
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			s.drop(conn, err)
			return
		}
		if typ != websocket.MessageText {
			s.log.Debug().Int("bytes", len(data)).Msg("ignoring binary frame")
			continue
		}

		ev, err := proto.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Int("bytes", len(data)).Msg("dropping inbound message")
			continue
		}

		s.mu.Lock()
		onMessage := s.handler.OnMessage
		s.mu.Unlock()
		if onMessage != nil {
			onMessage(ev.Author, ev.Text)
		}
	}
}

// drop retires conn after a transport failure. Only the first report for the current
// connection fires OnDisconnected.
func (s *Session) drop(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn || s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	h := s.handler
	s.mu.Unlock()

	conn.CloseNow()

	switch websocket.CloseStatus(cause) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		cause = nil
	}
	s.log.Info().Err(cause).Msg("disconnected")
	if h.OnDisconnected != nil {
		h.OnDisconnected(cause)
	}
}

// disconnected returns a channel closed once the current connection is gone.
func (s *Session) disconnected() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close tears the transport down without a grace period and clears the handler.
// It is safe to call more than once and from any goroutine, including callbacks.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	s.handler = Handler{}
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.cancel()
	if conn != nil {
		conn.CloseNow()
	}
	s.log.Debug().Msg("session closed")
}

// Run keeps the Session connected until ctx is done or the Session is closed, waiting
// b.Next() between attempts. It returns ctx.Err() or ErrClosed.
func (s *Session) Run(ctx context.Context, b *Backoff) error {
	for {
		err := s.Connect(ctx)
		switch {
		case errors.Is(err, ErrClosed):
			return ErrClosed
		case err == nil || errors.Is(err, ErrAlreadyConnected):
			b.Reset()
			select {
			case <-s.disconnected():
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if s.State() == StateClosed {
			return ErrClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.Next()
		s.log.Info().Dur("delay", delay).Int("attempt", b.Attempt()).Msg("reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.ctx.Done():
			timer.Stop()
			return ErrClosed
		}
	}
}
