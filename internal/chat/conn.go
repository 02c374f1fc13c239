// Package chat provides the connection core shared by all transports: the
// per-peer connection records, their read and write workers, the heartbeat
// monitor and the Manager facade the application talks to.
package chat

import (
	"io"
	"time"
)

// Stream is a connected duplex link to one remote peer.
// This interface isolates transport details from the connection core.
//
// Streams are message-preserving: every Write on the writer half carries
// exactly one frame and every Read on the reader half yields exactly one.
type Stream interface {
	// Reader returns the readable half. It fails with an error wrapping
	// ErrStreamUnavailable once that half has been closed.
	Reader() (io.ReadCloser, error)

	// Writer returns the writable half. It fails with an error wrapping
	// ErrStreamUnavailable once that half has been closed.
	Writer() (io.WriteCloser, error)

	// Close closes the underlying connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// deadliner is implemented by streams that support I/O deadlines.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// AcceptFunc receives a stream once the remote peer has identified itself.
// Manager.AddConnection satisfies it.
type AcceptFunc func(peerID string, s Stream) error
