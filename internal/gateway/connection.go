package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"signalhub/pkg/interfaces"
)

// writeTimeout bounds both the socket write deadline and how long a
// caller waits for space on the write channel.
const writeTimeout = 5 * time.Second

// Connection wraps a websocket with a single writer goroutine.
// Concurrent WriteJSON calls from broadcasts, call relays and the read
// pump all funnel through writeCh, so the underlying socket only ever
// sees one writer. Identity is fixed at construction: authentication
// happens before the upgrade.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	userID    string
	connID    string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket for the given user and
// starts its writer goroutine.
func NewConnection(conn *websocket.Conn, userID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		userID:  userID,
		connID:  uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop drains writeCh onto the socket until the context ends or a
// write fails. The channel is never closed: producers race teardown, so
// a close would turn a late WriteJSON into a panic. Canceling the
// context on the way out makes those producers fail fast instead, and
// any queued frames are dropped with the channel.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. Fails fast once the connection is
// closed and times out rather than blocking on a saturated client.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) ConnID() string {
	return c.connID
}

var _ interfaces.Conn = (*Connection)(nil)
