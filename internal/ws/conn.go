package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onetask/onetask-api/internal/config"
)

// controlWriteTimeout bounds writes of close and ping control frames.
const controlWriteTimeout = 5 * time.Second

// Conn is one live client connection. All outbound traffic goes through the
// buffered send channel and is written by a single pump goroutine, so payload
// writes never race. The registry owns the connection between Register and
// Unregister.
type Conn struct {
	id       uuid.UUID
	userID   uuid.UUID
	scope    Scope
	openedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	writeTimeout time.Duration
	pongTimeout  time.Duration
	maxMessage   int64

	logger *slog.Logger
}

// newConn wraps an upgraded WebSocket connection for the given user and scope.
func newConn(
	ws *websocket.Conn,
	userID uuid.UUID,
	scope Scope,
	cfg config.WebSocketConfig,
	logger *slog.Logger,
) *Conn {
	id := uuid.New()
	return &Conn{
		id:           id,
		userID:       userID,
		scope:        scope,
		openedAt:     time.Now().UTC(),
		ws:           ws,
		send:         make(chan []byte, cfg.SendBufferSize),
		done:         make(chan struct{}),
		writeTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		pongTimeout:  time.Duration(cfg.PongTimeoutSeconds) * time.Second,
		maxMessage:   cfg.MaxMessageBytes,
		logger: logger.With(
			slog.String("connection_id", id.String()),
			slog.String("user_id", userID.String()),
		),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID { return c.id }

// UserID returns the ID of the user who opened the connection.
func (c *Conn) UserID() uuid.UUID { return c.userID }

// Scope returns the routing scope the connection was opened under.
func (c *Conn) Scope() Scope { return c.scope }

// enqueue hands a payload to the write pump without blocking.
// It reports false when the connection is closing or its send buffer is
// full; the caller treats either as a delivery fault and evicts the
// connection.
func (c *Conn) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump blocks reading the connection until the client disconnects, the
// read deadline lapses without a pong, or an error occurs. Inbound frames are
// discarded; this surface only pushes server to client.
func (c *Conn) readPump() {
	if c.maxMessage > 0 {
		c.ws.SetReadLimit(c.maxMessage)
	}
	resetDeadline := func() error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
	}
	if err := resetDeadline(); err != nil {
		c.logger.Debug("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.ws.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				c.logger.Debug("connection read failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump serializes all outbound writes and keeps the connection alive
// with periodic pings. It exits when the connection closes or a write fails;
// a failed write closes the transport so the read loop unblocks and the
// handler tears the connection down.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.close(websocket.CloseGoingAway, "write deadline failed")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("connection write failed", slog.String("error", err.Error()))
				c.close(websocket.CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(controlWriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("connection ping failed", slog.String("error", err.Error()))
				c.close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

// close shuts the connection down exactly once: it signals both pumps, sends
// a best-effort close frame with the given code, and closes the transport.
// Safe to call from any goroutine and on any exit path.
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(controlWriteTimeout)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("failed to write close frame", slog.String("error", err.Error()))
		}
		if err := c.ws.Close(); err != nil {
			c.logger.Debug("failed to close transport", slog.String("error", err.Error()))
		}
	})
}
