package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/game"
	"github.com/quizbattle/quizroom/internal/v1/metrics"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

// wsConnection is the subset of *websocket.Conn the gateway uses.
// Tests substitute an in-memory implementation.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client binds one WebSocket to one seat in a room. It satisfies
// game.Conn: Send never blocks the room lock, and CloseWithCode only
// signals the write pump instead of touching the socket directly.
type client struct {
	conn   wsConnection
	logger *zap.Logger

	// Set after a successful admission.
	room      *game.Room
	peerID    string
	authToken string

	mu     sync.Mutex
	closed bool

	send      chan []byte
	closeCode chan int
}

func newClient(conn wsConnection, logger *zap.Logger) *client {
	return &client{
		conn:      conn,
		logger:    logger,
		send:      make(chan []byte, sendBufferSize),
		closeCode: make(chan int, 1),
	}
}

// Send queues one JSON frame for delivery. Returns false when the
// socket is closed or the buffer is full; the frame is dropped.
func (c *client) Send(v any) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal outbound frame", zap.Error(err))
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		metrics.SendFailures.Inc()
		c.logger.Warn("send buffer full, dropping frame", zap.String("peer_id", c.peerID))
		return false
	}
}

// CloseWithCode asks the write pump to emit a close frame and shut the
// socket down. Safe to call with the room lock held.
func (c *client) CloseWithCode(code int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.closeCode <- code:
	default:
	}
}

// writePump serializes all socket writes. It exits on the first write
// error or once a close code arrives.
func (c *client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case code := <-c.closeCode:
			// Drain already queued frames so a rejection or handoff
			// reason reaches the client before the close frame.
			for {
				select {
				case message := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
			return
		}
	}
}
