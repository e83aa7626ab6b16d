package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thoughtswap/thoughtswap/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8192
	sendBufferSize = 64
)

// Client is one websocket connection. Identity is attached once resolution
// completes; inbound commands wait on the Ready barrier so no command runs
// against an unresolved identity.
type Client struct {
	ID string

	conn *websocket.Conn
	send chan []byte
	log  *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	sendMu     sync.Mutex
	sendClosed bool

	mu   sync.RWMutex
	user *models.User
}

func NewClient(id string, conn *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		ID:    id,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		log:   log,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SetUser attaches the resolved identity and releases the dispatch barrier.
func (c *Client) SetUser(u *models.User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// User returns the resolved identity, or nil before resolution.
func (c *Client) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) Ready() <-chan struct{} { return c.ready }
func (c *Client) Done() <-chan struct{}  { return c.done }

// Enqueue appends a frame to the outbox without blocking. A saturated outbox
// drops the frame; recovery happens through state restoration on reconnect.
func (c *Client) Enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// CloseAfterDrain seals the outbox; the write pump flushes what is queued,
// sends a close frame and tears the connection down. Safe to call more than
// once.
func (c *Client) CloseAfterDrain() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// Close tears the connection down; safe to call more than once.
func (c *Client) Close() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump delivers inbound frames to onEvent sequentially, preserving
// per-connection order. Dispatch waits for identity resolution first.
func (c *Client) readPump(onEvent func(Event)) {
	defer c.Close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		select {
		case <-c.ready:
		case <-c.done:
			return
		}
		onEvent(ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
