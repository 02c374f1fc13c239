// Package client implements chat clients on top of the connection core.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/pkg/protocol"
)

// Client defines the interface for chat clients.
// Both TCP and WebSocket implementations satisfy this interface.
type Client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendMessage(content string) error
	Join() error
	Leave() error
	Messages() <-chan protocol.ChatMessage
}

var (
	ErrNotConnected = errors.New("client: not connected to server")
	ErrQueueFull    = errors.New("client: outbound queue full")
)

// DialFunc connects to address and runs the handshake as localID.
type DialFunc func(ctx context.Context, address, localID string, timeout time.Duration) (string, *transport.Stream, error)

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the default settings.
func WithConfig(cfg config.Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session is a chat client holding one connection to the server.
type Session struct {
	dial     DialFunc
	address  string
	username string
	cfg      config.Config
	logger   zerolog.Logger

	mu       sync.RWMutex
	manager  *chat.Manager
	serverID string

	messages  chan protocol.ChatMessage
	setup     chan struct{}
	setupOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	closeCode atomic.Int32
	stopOnce  sync.Once
}

// NewSession creates a Session that connects with dial.
func NewSession(dial DialFunc, address, username string, opts ...Option) *Session {
	s := &Session{
		dial:     dial,
		address:  address,
		username: username,
		cfg:      config.DefaultConfig(),
		logger:   log.Logger,
		messages: make(chan protocol.ChatMessage, 64),
		setup:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "client").Str("user", username).Logger()
	return s
}

// Connect establishes a connection to the server.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manager != nil {
		return errors.New("client: already connected")
	}

	manager, err := chat.NewManager(s.cfg.LocalID, append(s.cfg.ManagerOptions(s.logger), chat.WithDispatcher(s))...)
	if err != nil {
		return err
	}

	timeout := s.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = transport.DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	serverID, stream, err := s.dial(ctx, s.address, s.cfg.LocalID, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	if err := manager.AddConnection(serverID, stream); err != nil {
		stream.Close()
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	manager.Start()

	s.manager = manager
	s.serverID = serverID
	s.logger.Info().Str("server_id", serverID).Str("addr", s.address).Msg("connected")
	return nil
}

// Disconnect closes the connection and the Messages channel.
func (s *Session) Disconnect() {
	s.mu.RLock()
	manager := s.manager
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		s.markDone(protocol.CloseManagerShutdown)
		if manager != nil {
			manager.Shutdown()
		}
		close(s.messages)
	})
}

// IsConnected reports whether the connection to the server is up.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	manager, serverID := s.manager, s.serverID
	s.mu.RUnlock()

	return manager != nil && manager.Connected(serverID)
}

// SendMessage sends a text message to the server.
func (s *Session) SendMessage(content string) error {
	return s.send(protocol.ChatMessage{Kind: protocol.ChatKindText, Sender: s.username, Content: content})
}

// Join announces the user to the room.
func (s *Session) Join() error {
	return s.send(protocol.ChatMessage{Kind: protocol.ChatKindJoin, Sender: s.username})
}

// Leave announces the departure and says goodbye to the server.
func (s *Session) Leave() error {
	if err := s.send(protocol.ChatMessage{Kind: protocol.ChatKindLeave, Sender: s.username}); err != nil {
		return err
	}

	s.mu.RLock()
	manager, serverID := s.manager, s.serverID
	s.mu.RUnlock()
	manager.Disconnect(serverID, protocol.CloseSayGoodbye)
	return nil
}

// Messages returns the channel for receiving messages.
func (s *Session) Messages() <-chan protocol.ChatMessage {
	return s.messages
}

// SetupFinished is closed once the server has acknowledged the join.
func (s *Session) SetupFinished() <-chan struct{} {
	return s.setup
}

// Done is closed when the connection to the server is gone.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseCode returns why the connection ended. It is only meaningful after
// Done is closed.
func (s *Session) CloseCode() protocol.CloseCode {
	return protocol.CloseCode(s.closeCode.Load())
}

// ServerID returns the identifier the server announced in the handshake.
func (s *Session) ServerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverID
}

func (s *Session) send(msg protocol.ChatMessage) error {
	s.mu.RLock()
	manager, serverID := s.manager, s.serverID
	s.mu.RUnlock()

	if manager == nil || !manager.Connected(serverID) {
		return ErrNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if !manager.Send(serverID, data) {
		return ErrQueueFull
	}
	return nil
}

// OnAppMessage implements chat.Dispatcher.
func (s *Session) OnAppMessage(peerID string, payload []byte) {
	var msg protocol.ChatMessage
	if err := msg.Decode(payload); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed chat message")
		return
	}
	select {
	case s.messages <- msg:
	case <-s.done:
	}
}

// OnRemoteClose implements chat.RemoteCloseHandler. A close notice from the
// server ends the session with the server's code.
func (s *Session) OnRemoteClose(peerID string, code protocol.CloseCode) {
	s.logger.Info().Stringer("code", code).Msg("server closed the connection")
	s.markDone(code)

	s.mu.RLock()
	manager := s.manager
	s.mu.RUnlock()
	if manager != nil {
		manager.RemoveConnection(peerID, protocol.CloseGetGoodbye)
	}
}

// OnConnectionClosed implements chat.Dispatcher.
func (s *Session) OnConnectionClosed(peerID string, code protocol.CloseCode) {
	s.logger.Info().Stringer("code", code).Msg("disconnected")
	s.markDone(code)
}

// OnSetupFinished implements chat.Dispatcher.
func (s *Session) OnSetupFinished() {
	s.setupOnce.Do(func() { close(s.setup) })
}

func (s *Session) markDone(code protocol.CloseCode) {
	s.doneOnce.Do(func() {
		s.closeCode.Store(int32(code))
		close(s.done)
	})
}

// Compile-time checks
var (
	_ Client                  = (*Session)(nil)
	_ chat.Dispatcher         = (*Session)(nil)
	_ chat.RemoteCloseHandler = (*Session)(nil)
)
