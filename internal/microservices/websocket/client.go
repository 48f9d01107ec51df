package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// One downstream subscriber connection. Subscribers only listen; anything they send is discarded.

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // no pong within this window = dead connection
	PingPeriod     = (PongWait * 9) / 10 // 90% of pong wait, leaves room for network jitter
	MaxMessageSize = 512                 // maximum message size allowed from peer

	DefaultSendBuffer = 16 // queued payloads per subscriber before it counts as slow
)

var (
	ErrSlowSubscriber = errors.New("subscriber send buffer full")
	ErrClientClosed   = errors.New("subscriber connection closed")
)

type Client struct {
	ID          string          // unique client ID
	Conn        *websocket.Conn // WebSocket connection
	SendChannel chan []byte     // outbound payloads, drained by WritePump
	Hub         *Hub            // registry the client belongs to

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewClient creates a client with a send buffer of sendBuffer payloads
func NewClient(id string, conn *websocket.Conn, hub *Hub, sendBuffer int) *Client {
	if sendBuffer < 0 {
		sendBuffer = DefaultSendBuffer
	}
	logger := slog.Default()
	if hub != nil {
		logger = hub.logger
	}
	return &Client{
		ID:          id,
		Conn:        conn,
		SendChannel: make(chan []byte, sendBuffer),
		Hub:         hub,
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Send queues message without blocking. A full queue means the subscriber is not keeping up.
func (c *Client) Send(message []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.SendChannel <- message:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close stops the write pump, which sends a close frame and releases the socket. Safe to call twice.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Closed reports whether Close has been called
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) unregister() {
	if c.Hub != nil {
		c.Hub.Unregister(c)
		return
	}
	c.Close()
}

// ReadPump keeps read deadlines moving with pongs and notices when the peer goes away
func (c *Client) ReadPump() {
	defer c.unregister()

	c.Conn.SetReadLimit(MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("subscriber_read_failed",
					"client_id", c.ID,
					"error", err.Error(),
				)
			}
			return
		}
	}
}

// WritePump writes queued payloads in order and pings the peer every PingPeriod
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.SendChannel:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("subscriber_write_failed",
					"client_id", c.ID,
					"error", err.Error(),
				)
				c.unregister()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.unregister()
				return
			}
		case <-c.done:
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(WriteWait))
			return
		}
	}
}
