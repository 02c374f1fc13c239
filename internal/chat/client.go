package chat

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client is the bookkeeping record of one active peer connection.
//
// A record owns one stream and its two halves, one bounded outbound queue and
// at most one read and one write worker. The closing flag is set exactly once;
// whoever sets it performs the teardown, everybody else backs off.
type Client struct {
	peerID   string
	connID   string
	stream   Stream
	reader   io.ReadCloser
	writer   io.WriteCloser
	outgoing chan []byte
	openedAt time.Time

	closing atomic.Bool
	misses  atomic.Int32

	// done is closed by teardown; the write worker exits on it when the
	// shutdown sentinel could not be queued.
	done       chan struct{}
	writerDone chan struct{}
	readerDone chan struct{}
}

func newClient(peerID string, s Stream, r io.ReadCloser, w io.WriteCloser, queueSize int) *Client {
	return &Client{
		peerID:     peerID,
		connID:     uuid.NewString(),
		stream:     s,
		reader:     r,
		writer:     w,
		outgoing:   make(chan []byte, queueSize),
		openedAt:   time.Now(),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// PeerID returns the identifier the record is registered under.
func (c *Client) PeerID() string { return c.peerID }

// ConnID returns a unique id for this connection instance, used in logs to
// tell a replaced connection from its successor.
func (c *Client) ConnID() string { return c.connID }

// RemoteAddr returns the remote address of the underlying stream.
func (c *Client) RemoteAddr() string { return c.stream.RemoteAddr() }

// Misses returns the number of heartbeat probes not yet answered.
func (c *Client) Misses() int { return int(c.misses.Load()) }

// QueueLen returns the number of frames waiting for the write worker.
func (c *Client) QueueLen() int { return len(c.outgoing) }

// Closing reports whether teardown has started.
func (c *Client) Closing() bool { return c.closing.Load() }

// offer enqueues one encoded frame without blocking. It fails when the queue
// is full or the record is closing.
func (c *Client) offer(frame []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.outgoing <- frame:
		return true
	default:
		return false
	}
}

// stop queues the shutdown sentinel behind any pending frames.
func (c *Client) stop() bool {
	select {
	case c.outgoing <- nil:
		return true
	default:
		return false
	}
}

// miss records one unanswered probe unless teardown has started.
func (c *Client) miss() (int32, bool) {
	for {
		if c.closing.Load() {
			return 0, false
		}
		n := c.misses.Load()
		if c.misses.CompareAndSwap(n, n+1) {
			return n + 1, true
		}
	}
}
