package ws

import (
	"net"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to the session transport handle.
// Gorilla permits one concurrent writer, so every write goes through the
// mutex; reads stay on the handler's loop goroutine.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// Send marshals v and writes it as one text frame.
func (c *wsConn) Send(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// SendBinary writes one binary frame.
func (c *wsConn) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		// A failed write leaves the connection unusable.
		c.closed = true
		c.conn.Close()
		return err
	}
	return nil
}

// Open reports whether the handle still accepts writes.
func (c *wsConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close shuts the underlying connection down. Closing twice is safe.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
