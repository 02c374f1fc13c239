// Package tcp provides the TCP transport. Frames travel with a 4-byte
// big-endian length prefix so that stream reads return whole frames.
package tcp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/omochice/linkchat/internal/transport"
)

const lengthPrefixLen = 4

// Conn adapts net.Conn to transport.FrameConn.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	mu     sync.Mutex
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: bufio.NewReader(conn)}
}

// NewConnWithReader wraps conn but reads from reader, which must be a
// buffered view of conn. It is used after the first bytes were peeked for
// protocol detection.
func NewConnWithReader(conn net.Conn, reader io.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// NewStream wraps conn as a chat.Stream.
func NewStream(conn net.Conn) *transport.Stream {
	return transport.NewStream(NewConn(conn))
}

// ReadFrame implements transport.FrameConn.
func (c *Conn) ReadFrame(p []byte) (int, error) {
	var hdr [lengthPrefixLen]byte
	if _, err := io.ReadFull(c.reader, hdr[:]); err != nil {
		return 0, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if uint64(size) > uint64(len(p)) {
		return 0, fmt.Errorf("%w: %d bytes", transport.ErrFrameTooLarge, size)
	}
	n, err := io.ReadFull(c.reader, p[:size])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// WriteFrame implements transport.FrameConn.
func (c *Conn) WriteFrame(p []byte) error {
	buf := make([]byte, lengthPrefixLen+len(p))
	binary.BigEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[lengthPrefixLen:], p)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(buf)
	return err
}

// CloseRead implements transport.FrameConn.
func (c *Conn) CloseRead() error {
	if cr, ok := c.conn.(interface{ CloseRead() error }); ok {
		return cr.CloseRead()
	}
	return c.conn.SetReadDeadline(time.Now())
}

// CloseWrite implements transport.FrameConn.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
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

// Compile-time check
var _ transport.FrameConn = (*Conn)(nil)
