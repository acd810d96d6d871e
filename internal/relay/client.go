package relay

import (
	"encoding/json"
	"sync"
	"time"

	"cardlink/internal/logs"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Role — объявляется при подключении (?role=reader|client), см. serveSocket.
type Role string

const (
	RoleReader Role = "reader"
	RoleClient Role = "client"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendQueueSize  = 32
)

// Client — одно живое websocket-подключение (ридер или браузер).
type Client struct {
	id   string
	role Role
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, role Role) *Client {
	return &Client{
		id:   uuid.NewString(),
		role: role,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

func (c *Client) ID() string { return c.id }

// deliver — адресная отправка одного события этому подключению.
// Best-effort: медленный потребитель теряет сообщение, отключившийся — no-op.
func (c *Client) deliver(event string, data any) bool {
	msg, err := encodeEvent(event, data)
	if err != nil {
		logs.Logger.Errorf("relay: encode %s: %v", event, err)
		return false
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		logs.Logger.Warnf("relay: send queue full, dropping message for %s (%s)", c.id, c.role)
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// readPump — читает входящие envelope'ы и отдаёт их в hub.
// Паника или ошибка в обработчике одного события не валит соединение.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logs.Logger.Debugf("relay: read %s: %v", c.id, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			logs.Logger.Warnf("relay: malformed message from %s: %q", c.id, raw)
			continue
		}
		c.dispatchSafe(env)
	}
}

func (c *Client) dispatchSafe(env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			logs.Logger.Errorf("relay: handler panic on %s from %s: %v", env.Event, c.id, rec)
		}
	}()
	c.hub.Dispatch(c, env)
}

// writePump — единственный писатель в соединение; гарантирует порядок
// доставки в рамках одного подключения.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
