package ws

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/linkchat/internal/transport"
)

// GorillaConn adapts a gorilla/websocket connection to transport.FrameConn.
type GorillaConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewGorillaConn wraps conn.
func NewGorillaConn(conn *websocket.Conn) *GorillaConn {
	return &GorillaConn{conn: conn}
}

// ReadFrame implements transport.FrameConn.
// The read limit makes gorilla refuse a longer message from its frame
// header and answer it with a 1009 close.
func (c *GorillaConn) ReadFrame(p []byte) (int, error) {
	c.conn.SetReadLimit(int64(len(p)))
	_, data, err := c.conn.ReadMessage()
	if errors.Is(err, websocket.ErrReadLimit) {
		return 0, fmt.Errorf("%w: more than %d bytes", transport.ErrFrameTooLarge, len(p))
	}
	if err != nil {
		return 0, err
	}
	if len(data) > len(p) {
		return 0, fmt.Errorf("%w: %d bytes", transport.ErrFrameTooLarge, len(data))
	}
	return copy(p, data), nil
}

// WriteFrame implements transport.FrameConn.
func (c *GorillaConn) WriteFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

// CloseRead implements transport.FrameConn.
func (c *GorillaConn) CloseRead() error {
	return c.conn.SetReadDeadline(time.Now())
}

// CloseWrite implements transport.FrameConn.
func (c *GorillaConn) CloseWrite() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return c.conn.UnderlyingConn().SetWriteDeadline(time.Now())
}

// Close implements transport.FrameConn.
func (c *GorillaConn) Close() error {
	return c.conn.Close()
}

// SetDeadline implements transport.FrameConn.
func (c *GorillaConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

// RemoteAddr implements transport.FrameConn.
func (c *GorillaConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Compile-time check
var _ transport.FrameConn = (*GorillaConn)(nil)
