// Package ws provides the WebSocket transport. Every frame travels as one
// binary WebSocket message. Connections are served with gobwas/ws on raw
// listeners and with gorilla/websocket behind net/http.
package ws

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/linkchat/internal/transport"
)

const closeWriteTimeout = time.Second

// Conn adapts a gobwas/ws connection to transport.FrameConn.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	state  gobwas.State
	mu     sync.Mutex
}

// NewServerConn wraps the server side of an upgraded connection.
func NewServerConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: conn, state: gobwas.StateServerSide}
}

// NewClientConn wraps the client side of a dialed connection. br holds any
// bytes the handshake read past the response and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader) *Conn {
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return &Conn{conn: conn, reader: r, state: gobwas.StateClientSide}
}

// ReadFrame implements transport.FrameConn.
// Control frames are answered while waiting for the next binary message.
// A message longer than p is rejected from its frame header, before the
// payload is read.
func (c *Conn) ReadFrame(p []byte) (int, error) {
	control := wsutil.ControlFrameHandler(lockedWriter{c}, c.state)
	rd := &wsutil.Reader{
		Source:         c.reader,
		State:          c.state,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return 0, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return 0, err
			}
			continue
		}
		if hdr.OpCode != gobwas.OpBinary {
			if err := rd.Discard(); err != nil {
				return 0, err
			}
			continue
		}
		if hdr.Length > int64(len(p)) {
			return 0, fmt.Errorf("%w: %d bytes", transport.ErrFrameTooLarge, hdr.Length)
		}
		return readMessage(rd, p)
	}
}

// readMessage reads the rest of the current message into p. Continuation
// frames count against the same limit.
func readMessage(rd *wsutil.Reader, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := rd.Read(p[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}

	var extra [1]byte
	for {
		m, err := rd.Read(extra[:])
		if m > 0 {
			return 0, fmt.Errorf("%w: more than %d bytes", transport.ErrFrameTooLarge, len(p))
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

// WriteFrame implements transport.FrameConn.
func (c *Conn) WriteFrame(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeMessage(gobwas.OpBinary, p)
}

// CloseRead implements transport.FrameConn.
func (c *Conn) CloseRead() error {
	return c.conn.SetReadDeadline(time.Now())
}

// CloseWrite implements transport.FrameConn. It sends a close frame when no
// write is in flight and then fails all further writes.
func (c *Conn) CloseWrite() error {
	if c.mu.TryLock() {
		c.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		_ = c.writeMessage(gobwas.OpClose, gobwas.NewCloseFrameBody(gobwas.StatusNormalClosure, ""))
		c.mu.Unlock()
	}
	return c.conn.SetWriteDeadline(time.Now())
}

// Close implements transport.FrameConn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetDeadline implements transport.FrameConn.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// RemoteAddr implements transport.FrameConn.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) writeMessage(op gobwas.OpCode, p []byte) error {
	if c.state.ServerSide() {
		return wsutil.WriteServerMessage(c.conn, op, p)
	}
	return wsutil.WriteClientMessage(c.conn, op, p)
}

// lockedWriter serializes control frame replies with regular writes.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.conn.Write(p)
}

// Compile-time check
var _ transport.FrameConn = (*Conn)(nil)
