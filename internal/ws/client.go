package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
	sendQueueSize  = 256
)

// Client is one websocket connection bound to an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	connID string
	send   chan []byte
	// rooms is guarded by the hub's mutex.
	rooms  map[string]bool
	logger *zap.Logger
}

func (c *Client) UserID() string {
	return c.userID
}

// enqueue offers a message to the send queue without blocking.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendEvent delivers an event to this socket only. Callers run on the
// socket's read goroutine, never concurrently with unregister.
func (c *Client) SendEvent(event string, payload interface{}) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		c.logger.Error("event encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.enqueue(msg) {
		c.logger.Warn("dropping message for slow client", zap.String("userId", c.userID))
	}
}

func (c *Client) sendAck(ackID string, res AckResult) {
	if ackID == "" {
		return
	}
	msg, err := encodeAck(ackID, res)
	if err != nil {
		c.logger.Error("ack encode failed", zap.Error(err))
		return
	}
	c.enqueue(msg)
}

// readPump reads envelopes and hands them to dispatch until the
// connection dies.
func (c *Client) readPump(dispatch func(*Client, []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		dispatch(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
