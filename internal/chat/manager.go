package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/linkchat/pkg/protocol"
)

const (
	DefaultQueueSize         = 10
	DefaultMaxFrameSize      = 64 * 1024
	DefaultHeartbeatInterval = 6 * time.Second
	DefaultMaxMisses         = 3
	DefaultDrainTimeout      = 200 * time.Millisecond
)

// Option configures a Manager.
type Option func(*Manager)

// WithQueueSize sets the capacity of each per-connection outbound queue.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithMaxFrameSize bounds the size of a single encoded frame in either
// direction.
func WithMaxFrameSize(n int) Option {
	return func(m *Manager) {
		if n >= protocol.HeaderLen {
			m.maxFrameSize = n
		}
	}
}

// WithHeartbeat sets the probe period and the number of unanswered probes
// tolerated before a peer is evicted. A zero interval disables the monitor.
func WithHeartbeat(interval time.Duration, maxMisses int) Option {
	return func(m *Manager) {
		m.interval = interval
		if maxMisses > 0 {
			m.maxMisses = int32(maxMisses)
		}
	}
}

// WithDrainTimeout bounds how long teardown waits for queued frames to be
// written before the stream is closed.
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.drainTimeout = d
		}
	}
}

// WithLogger sets the logger used by the Manager and its workers.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithDispatcher attaches d at construction time.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) {
		m.AttachDispatcher(d)
	}
}

// Manager owns every connection record of one endpoint. It tracks which
// peers are connected, routes outbound frames to the right queue, runs the
// heartbeat monitor and tears connections down exactly once.
type Manager struct {
	localID      string
	queueSize    int
	maxFrameSize int
	interval     time.Duration
	maxMisses    int32
	drainTimeout time.Duration
	logger       zerolog.Logger

	hub        *Hub
	dispatcher atomic.Pointer[dispatcherRef]
	stats      counters

	helloFrame      []byte
	helloReplyFrame []byte

	// mu orders registrations against Shutdown so that no worker is started
	// once the final sweep has begun.
	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	hbDone  chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a Manager that stamps localID on every frame it sends.
func NewManager(localID string, opts ...Option) (*Manager, error) {
	if !protocol.ValidSenderID(localID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocalID, localID)
	}

	m := &Manager{
		localID:      localID,
		queueSize:    DefaultQueueSize,
		maxFrameSize: DefaultMaxFrameSize,
		interval:     DefaultHeartbeatInterval,
		maxMisses:    DefaultMaxMisses,
		drainTimeout: DefaultDrainTimeout,
		logger:       log.Logger,
		hub:          NewHub(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "chat").Str("local_id", localID).Logger()

	var err error
	if m.helloFrame, err = protocol.Encode(protocol.Hello{Sender: localID}); err != nil {
		return nil, err
	}
	if m.helloReplyFrame, err = protocol.Encode(protocol.HelloReply{Sender: localID}); err != nil {
		return nil, err
	}
	return m, nil
}

// LocalID returns the identifier stamped on outgoing frames.
func (m *Manager) LocalID() string { return m.localID }

// AttachDispatcher routes incoming messages and lifecycle events to d,
// replacing any dispatcher attached before.
func (m *Manager) AttachDispatcher(d Dispatcher) {
	if d == nil {
		m.DetachDispatcher()
		return
	}
	m.dispatcher.Store(&dispatcherRef{d: d})
}

// DetachDispatcher removes the current dispatcher. Frames arriving while no
// dispatcher is attached are dropped.
func (m *Manager) DetachDispatcher() {
	m.dispatcher.Store(nil)
}

func (m *Manager) currentDispatcher() Dispatcher {
	if ref := m.dispatcher.Load(); ref != nil {
		return ref.d
	}
	return nil
}

// Start launches the heartbeat monitor. It is a no-op when the monitor is
// disabled or already running.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.closed || m.interval <= 0 {
		return
	}
	m.started = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.hbDone = make(chan struct{})
	go m.runHeartbeat(ctx, m.hbDone)

	m.logger.Info().
		Dur("interval", m.interval).
		Int32("max_misses", m.maxMisses).
		Msg("heartbeat started")
}

// Shutdown stops the heartbeat monitor, tears down every connection with
// MANAGER_SHUTDOWN and waits for all workers to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel, hbDone := m.cancel, m.hbDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-hbDone
	}

	m.RemoveAll(protocol.CloseManagerShutdown)
	m.wg.Wait()
	m.logger.Info().Msg("manager stopped")
}

// AddConnection registers s under peerID and starts its read and write
// workers. An existing record for the same peer is torn down with KICKED
// before the new one takes its place.
func (m *Manager) AddConnection(peerID string, s Stream) error {
	reader, err := s.Reader()
	if err != nil {
		return fmt.Errorf("%w: reader: %v", ErrStreamUnavailable, err)
	}
	writer, err := s.Writer()
	if err != nil {
		if cerr := reader.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Str("peer_id", peerID).Msg("could not close reader")
		}
		return fmt.Errorf("%w: writer: %v", ErrStreamUnavailable, err)
	}

	if old, ok := m.hub.Lookup(peerID); ok {
		m.logger.Info().Str("peer_id", peerID).Str("conn_id", old.connID).Msg("replacing connection")
		m.teardown(old, protocol.CloseKicked, false)
	}

	c := newClient(peerID, s, reader, writer, m.queueSize)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	old, replaced := m.hub.Register(c)
	m.wg.Add(2)
	go m.readLoop(c)
	go m.writeLoop(c)
	m.mu.RUnlock()

	m.stats.opened.Add(1)
	m.logger.Info().
		Str("peer_id", peerID).
		Str("conn_id", c.connID).
		Str("remote", s.RemoteAddr()).
		Msg("connection added")

	// Another registration for the same peer may have slipped in between the
	// lookup and the store.
	if replaced && old != nil {
		m.teardown(old, protocol.CloseKicked, false)
	}
	return nil
}

// RemoveConnection tears down the connection registered under peerID.
// Removing an unknown peer, or one already being removed, is a no-op.
func (m *Manager) RemoveConnection(peerID string, code protocol.CloseCode) {
	c, ok := m.hub.Lookup(peerID)
	if !ok {
		m.logger.Debug().Str("peer_id", peerID).Msg("remove of unknown peer ignored")
		return
	}
	m.teardown(c, code, false)
}

// RemoveAll tears down every registered connection with code.
func (m *Manager) RemoveAll(code protocol.CloseCode) {
	clients := m.hub.Snapshot()
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			m.teardown(c, code, false)
		}(c)
	}
	wg.Wait()
}

// Send queues payload as an APP_MESSAGE for peerID. It never blocks and
// reports false when the peer is unknown, its queue is full or the frame
// would exceed the maximum frame size.
func (m *Manager) Send(peerID string, payload []byte) bool {
	c, ok := m.hub.Lookup(peerID)
	if !ok {
		m.stats.dropped.Add(1)
		m.logger.Debug().Str("peer_id", peerID).Msg("send to unknown peer")
		return false
	}
	frame, ok := m.appFrame(payload)
	if !ok {
		return false
	}
	return m.enqueue(c, frame)
}

// Broadcast queues payload for every connected peer and returns the number
// of queues that accepted it.
func (m *Manager) Broadcast(payload []byte) int {
	return m.BroadcastExcept("", payload)
}

// BroadcastExcept is Broadcast skipping the peer registered as except.
func (m *Manager) BroadcastExcept(except string, payload []byte) int {
	frame, ok := m.appFrame(payload)
	if !ok {
		return 0
	}
	sent := 0
	for _, c := range m.hub.Snapshot() {
		if c.peerID == except {
			continue
		}
		if m.enqueue(c, frame) {
			sent++
		}
	}
	return sent
}

// SendSetupFinished queues a SERVER_SETUP_FINISHED frame for peerID.
func (m *Manager) SendSetupFinished(peerID string) bool {
	c, ok := m.hub.Lookup(peerID)
	if !ok {
		return false
	}
	frame, err := protocol.Encode(protocol.SetupFinished{Sender: m.localID})
	if err != nil {
		return false
	}
	return m.enqueue(c, frame)
}

// BroadcastSetupFinished queues a SERVER_SETUP_FINISHED frame for every peer.
func (m *Manager) BroadcastSetupFinished() int {
	frame, err := protocol.Encode(protocol.SetupFinished{Sender: m.localID})
	if err != nil {
		return 0
	}
	sent := 0
	for _, c := range m.hub.Snapshot() {
		if m.enqueue(c, frame) {
			sent++
		}
	}
	return sent
}

// Disconnect notifies peerID with a CONNECTION_CLOSED frame carrying code
// and then tears the connection down with the same code. The notice is
// best-effort: it is written only if the drain completes in time.
func (m *Manager) Disconnect(peerID string, code protocol.CloseCode) bool {
	c, ok := m.hub.Lookup(peerID)
	if !ok {
		return false
	}
	frame, err := protocol.Encode(protocol.ConnectionClosed{Sender: m.localID, Code: code})
	if err != nil {
		m.logger.Warn().Err(err).Str("peer_id", peerID).Msg("could not encode close notice")
		return false
	}
	if !c.offer(frame) {
		m.logger.Debug().Str("peer_id", peerID).Msg("close notice dropped")
	}
	m.teardown(c, code, false)
	return true
}

// Kick disconnects peerID with KICKED.
func (m *Manager) Kick(peerID string) bool {
	return m.Disconnect(peerID, protocol.CloseKicked)
}

// Peers returns the ids of all connected peers in sorted order.
func (m *Manager) Peers() []string { return m.hub.PeerIDs() }

// Len returns the number of connected peers.
func (m *Manager) Len() int { return m.hub.ClientCount() }

// Client returns the record registered under peerID.
func (m *Manager) Client(peerID string) (*Client, bool) {
	return m.hub.Lookup(peerID)
}

// Connected reports whether peerID has a registered connection.
func (m *Manager) Connected(peerID string) bool {
	_, ok := m.hub.Lookup(peerID)
	return ok
}

// QueueLen returns the number of frames waiting to be written to peerID.
func (m *Manager) QueueLen(peerID string) (int, bool) {
	c, ok := m.hub.Lookup(peerID)
	if !ok {
		return 0, false
	}
	return c.QueueLen(), true
}

// Stats returns a snapshot of the cumulative counters.
func (m *Manager) Stats() Stats { return m.stats.snapshot() }

func (m *Manager) appFrame(payload []byte) ([]byte, bool) {
	if protocol.HeaderLen+len(payload) > m.maxFrameSize {
		m.stats.dropped.Add(1)
		m.logger.Warn().Int("size", protocol.HeaderLen+len(payload)).Msg("message exceeds max frame size")
		return nil, false
	}
	frame, err := protocol.Encode(protocol.AppMessage{Sender: m.localID, Payload: payload})
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not encode message")
		return nil, false
	}
	return frame, true
}

func (m *Manager) enqueue(c *Client, frame []byte) bool {
	if c.offer(frame) {
		return true
	}
	m.stats.dropped.Add(1)
	m.logger.Warn().Str("peer_id", c.peerID).Msg("outbound queue full, message dropped")
	return false
}

// teardown closes c exactly once. fromWriter is set when the write worker
// itself triggers the teardown and cannot drain its own queue.
func (m *Manager) teardown(c *Client, code protocol.CloseCode, fromWriter bool) {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	logger := m.logger.With().Str("peer_id", c.peerID).Str("conn_id", c.connID).Logger()
	logger.Info().Stringer("code", code).Msg("removing connection")

	if c.stop() && !fromWriter && m.drainTimeout > 0 {
		timer := time.NewTimer(m.drainTimeout)
		select {
		case <-c.writerDone:
		case <-timer.C:
			logger.Debug().Msg("drain timed out")
		}
		timer.Stop()
	}
	close(c.done)

	// Each half is closed on its own so one failure does not leak the rest.
	if err := c.reader.Close(); err != nil {
		logger.Debug().Err(err).Msg("could not close reader")
	}
	if err := c.writer.Close(); err != nil {
		logger.Debug().Err(err).Msg("could not close writer")
	}
	if err := c.stream.Close(); err != nil {
		logger.Debug().Err(err).Msg("could not close stream")
	}

	m.hub.Unregister(c)
	m.stats.closed.Add(1)

	if d := m.currentDispatcher(); d != nil {
		d.OnConnectionClosed(c.peerID, code)
	} else {
		logger.Debug().Stringer("code", code).Msg("no dispatcher for close event")
	}
}
