package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// SDP offers with many candidates run to several kilobytes.
	maxMessageSize = 64 * 1024

	// DefaultSendBuffer is the outbound queue length per socket.
	DefaultSendBuffer = 256
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	Conn *websocket.Conn
	Hub  *ManagerService

	handle   session.Handle
	identity models.Identity
	logger   *zap.Logger

	mu     sync.RWMutex
	send   chan models.Envelope
	closed bool
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, identity models.Identity, sendBuffer int) *WebSocketClient {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	h := session.NewHandle()
	return &WebSocketClient{
		Conn:     conn,
		Hub:      hub,
		handle:   h,
		identity: identity,
		logger:   hub.logger.With(zap.String("handle", h.String()), zap.String("user_id", identity.UserID)),
		send:     make(chan models.Envelope, sendBuffer),
	}
}

func (c *WebSocketClient) Handle() session.Handle    { return c.handle }
func (c *WebSocketClient) Identity() models.Identity { return c.identity }

func (c *WebSocketClient) Send(env models.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump send a close frame.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	// A pong is activity: it keeps an idle but connected user online.
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.Hub.Deliver(Inbound{Handle: c.handle, Envelope: models.Envelope{Type: models.EventHeartbeat}})
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket read error", zap.Error(err))
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.logger.Debug("dropping undecodable frame", zap.Error(err))
			continue
		}

		if !c.Hub.Deliver(Inbound{Handle: c.handle, Envelope: env}) {
			return
		}
	}
}

// writePump writes queued envelopes, one frame each, and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
