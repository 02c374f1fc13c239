// Package transport adapts framed network connections to chat.Stream and
// runs the accepting side of the connection handshake.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/linkchat/internal/chat"
)

// ErrFrameTooLarge is returned when an incoming frame does not fit the
// caller's buffer.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// FrameConn is a connection that carries whole frames.
// Each transport provides one; Stream turns it into a chat.Stream.
type FrameConn interface {
	// ReadFrame reads exactly one frame into p.
	ReadFrame(p []byte) (int, error)
	// WriteFrame writes p as one frame.
	WriteFrame(p []byte) error
	// CloseRead unblocks pending and future reads.
	CloseRead() error
	// CloseWrite unblocks pending and future writes.
	CloseWrite() error
	Close() error
	SetDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Stream adapts a FrameConn to chat.Stream. Each half closes at most once;
// a closed half cannot be obtained again.
type Stream struct {
	fc FrameConn

	readClosed  atomic.Bool
	writeClosed atomic.Bool
	readOnce    sync.Once
	writeOnce   sync.Once
	closeOnce   sync.Once
}

// NewStream wraps fc.
func NewStream(fc FrameConn) *Stream {
	return &Stream{fc: fc}
}

// Reader implements chat.Stream.
func (s *Stream) Reader() (io.ReadCloser, error) {
	if s.readClosed.Load() {
		return nil, fmt.Errorf("%w: reader closed", chat.ErrStreamUnavailable)
	}
	return readHalf{s}, nil
}

// Writer implements chat.Stream.
func (s *Stream) Writer() (io.WriteCloser, error) {
	if s.writeClosed.Load() {
		return nil, fmt.Errorf("%w: writer closed", chat.ErrStreamUnavailable)
	}
	return writeHalf{s}, nil
}

// Close implements chat.Stream.
func (s *Stream) Close() error {
	err := net.ErrClosed
	s.closeOnce.Do(func() {
		s.readClosed.Store(true)
		s.writeClosed.Store(true)
		err = s.fc.Close()
	})
	return err
}

// RemoteAddr implements chat.Stream.
func (s *Stream) RemoteAddr() string {
	if addr := s.fc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// SetDeadline sets read and write deadlines on the underlying connection.
func (s *Stream) SetDeadline(t time.Time) error {
	return s.fc.SetDeadline(t)
}

// Conn returns the wrapped FrameConn.
func (s *Stream) Conn() FrameConn { return s.fc }

type readHalf struct{ s *Stream }

func (h readHalf) Read(p []byte) (int, error) {
	if h.s.readClosed.Load() {
		return 0, net.ErrClosed
	}
	return h.s.fc.ReadFrame(p)
}

func (h readHalf) Close() error {
	err := net.ErrClosed
	h.s.readOnce.Do(func() {
		h.s.readClosed.Store(true)
		err = h.s.fc.CloseRead()
	})
	return err
}

type writeHalf struct{ s *Stream }

func (h writeHalf) Write(p []byte) (int, error) {
	if h.s.writeClosed.Load() {
		return 0, net.ErrClosed
	}
	if err := h.s.fc.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h writeHalf) Close() error {
	err := net.ErrClosed
	h.s.writeOnce.Do(func() {
		h.s.writeClosed.Store(true)
		err = h.s.fc.CloseWrite()
	})
	return err
}

// Compile-time check
var _ chat.Stream = (*Stream)(nil)
