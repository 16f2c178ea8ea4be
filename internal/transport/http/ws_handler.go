package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/emojichat/internal/config"
	"github.com/vovakirdan/emojichat/internal/core"
)

// WSHandler upgrades HTTP connections and bridges them to the relay.
type WSHandler struct {
	relay *core.Relay
	log   *zerolog.Logger

	protocol          string
	readLimit         int64
	pingInterval      time.Duration
	messagesPerMinute int
	skipVerify        bool
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay *core.Relay, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		relay:             relay,
		log:               logger,
		protocol:          cfg.Protocol,
		readLimit:         cfg.MaxMessageBytes,
		pingInterval:      cfg.PingInterval,
		messagesPerMinute: cfg.MessagesPerMinute,
		skipVerify:        cfg.InsecureSkipVerify,
	}
}

// wsPeer adapts a websocket connection to core.Peer.
type wsPeer struct {
	conn *websocket.Conn
}

func (p *wsPeer) Write(ctx context.Context, data []byte) error {
	return p.conn.Write(ctx, websocket.MessageText, data)
}

func (p *wsPeer) Close(reason string) error {
	return p.conn.Close(websocket.StatusGoingAway, reason)
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if h.relay.Full() {
		h.log.Error().Str("remote", r.RemoteAddr).Msg("relay at capacity, refusing upgrade")
		stdhttp.Error(w, "relay at capacity", stdhttp.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{h.protocol},
		InsecureSkipVerify: h.skipVerify,
	})
	if err != nil {
		h.log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if conn.Subprotocol() != h.protocol {
		h.log.Warn().Str("remote", r.RemoteAddr).Str("want", h.protocol).Msg("client did not negotiate subprotocol")
		conn.Close(websocket.StatusPolicyViolation, "subprotocol "+h.protocol+" required")
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client, err := h.relay.Accept(&wsPeer{conn: conn}, r.URL.Query().Get("name"))
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, "relay at capacity")
		return
	}
	defer h.relay.Disconnect(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.keepAlive(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	limiter := newRateLimiter(h.messagesPerMinute, time.Minute)
	limiter.startReset(ctx.Done())

	// Fan-out must not be cancelled just because the sender went away.
	broadcastCtx := context.WithoutCancel(ctx)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if typ != websocket.MessageText {
			h.log.Debug().Str("conn_id", client.ID).Int("bytes", len(data)).Msg("ignoring binary frame")
			continue
		}
		if !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID).Msg("rate limit exceeded, dropping message")
			continue
		}

		h.relay.HandleMessage(broadcastCtx, client, data)
	}
}

// keepAlive pings the peer until ctx is done. A failed ping ends the connection.
func (h *WSHandler) keepAlive(ctx context.Context, conn *websocket.Conn) error {
	if h.pingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
