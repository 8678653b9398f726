package hub

import (
	"Bridgeup/internal/event"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client status constants
const (
	StatusConnected   = "connected" // socket open, no join yet
	StatusOnline      = "online"
	StatusGettingCall = "ringing"
	StatusInCall      = "in_call"
)

// Client is one transport connection. It is bound to at most one user at a
// time; the binding changes only through the hub's join/leave lifecycle.
type Client struct {
	ID     string
	conn   *websocket.Conn
	hub    *Hub
	egress chan event.WsEvent

	userID   string
	userMu   sync.RWMutex
	joinedAt time.Time

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool         // tracks if client is closed
	closedMu       sync.RWMutex // protects closed flag
}

// number of workers to process inbound messages; sizes the hub's queue array
const workerPoolSize = 16

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 60 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB), SDP offers fit
	sendBufSize        = 256                    // per-connection outbound buffer size
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	kickOnFull         = true                   // when true, disconnect client when egress is full
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

func newClient(h *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:         uuid.New().String(),
		conn:       conn,
		hub:        h,
		egress:     make(chan event.WsEvent, sendBufSize),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}
}

// RegisterClient hands a freshly upgraded connection to the hub and starts its
// pumps. The socket stays anonymous until it sends a join.
func RegisterClient(conn *websocket.Conn, h *Hub) *Client {
	client := newClient(h, conn)

	// tracked before either pump runs so a fast join or close always finds it
	if !h.connect(client) {
		h.logger.Warn("failed to register client: hub stopped", zap.String("client_id", client.ID))
		client.Close()
		_ = conn.Close()
		return nil
	}
	go client.ReadMessages()
	go client.WriteMessage()
	h.logger.Debug("client connected", zap.String("client_id", client.ID))
	return client
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.hub.unregister <- c:
			// unregistered successfully
		case <-time.After(unregisterTimeout):
			c.hub.logger.Warn("failed to unregister client: timeout", zap.String("client_id", c.ID))
			c.hub.Disconnect(c)
		}
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		var ev event.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.logReadError(err)
			return
		}
		if ev.Event == "" {
			c.SafeSend(errorEvent("invalid_payload", "event name is required"), sendTimeout)
			continue
		}

		// events of one socket always land on the same worker so they are
		// handled in arrival order
		select {
		case c.hub.inbound[workerFor(c.ID)] <- inboundMessage{client: c, event: ev}:
			// accepted for processing
		case <-time.After(inboundSendTimeout):
			c.hub.logger.Warn("inbound queue full, dropping client", zap.String("client_id", c.ID))
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	logger := c.hub.logger.With(zap.String("client_id", c.ID), zap.String("user_id", c.UserID()))

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		logger.Debug("client disconnected")
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		logger.Info("client timed out - closing connection")
		return
	}
	if websocket.IsUnexpectedCloseError(err) {
		logger.Info("unexpected close", zap.Error(err))
		return
	}
	select {
	case <-c.ctx.Done():
		// closed by the server side
	default:
		logger.Warn("error reading from client", zap.Error(err))
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()

		// Safe close of connClosed channel using sync.Once
		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.logger.Debug("write failed", zap.String("client_id", c.ID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Debug("ping failed", zap.String("client_id", c.ID), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Close stops both pumps. The egress channel is left open so a concurrent
// sender can never panic on it; senders observe ctx instead.
func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()

		if c.conn == nil {
			return
		}
		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
				// WriteMessage closed it properly
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// SafeSend attempts to send an event to the client's egress channel.
// Returns true if sent successfully, false if client is closed or timeout.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	// Check if closed first (fast path)
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}

// trySend enqueues without waiting. Used for fan-out under the lifecycle lock.
func (c *Client) trySend(ev event.WsEvent) bool {
	if c.IsClosed() {
		return false
	}
	select {
	case c.egress <- ev:
		return true
	default:
		return false
	}
}

// UserID returns the user bound by the last join, or "" for an anonymous socket.
func (c *Client) UserID() string {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.userID
}

func (c *Client) bindUser(userID string) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.userID = userID
	if userID == "" {
		c.joinedAt = time.Time{}
	} else {
		c.joinedAt = time.Now()
	}
}

func (c *Client) JoinedAt() time.Time {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.joinedAt
}

func errorEvent(code, message string) event.WsEvent {
	return event.New(event.EventError, event.ErrorPayload{Code: code, Message: message})
}
