// Package server hosts a chat room. Peers connect over raw TCP or
// WebSocket; every chat line is relayed to the other peers.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v2"
	"github.com/rs/zerolog"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/internal/transport/tcp"
	"github.com/omochice/linkchat/internal/transport/ws"
	"github.com/omochice/linkchat/pkg/protocol"
)

// Server represents a chat server.
//
// With an empty WSListen address both protocols share the Listen port and
// are told apart by their first bytes. Otherwise raw TCP is served on Listen
// and WebSocket on WSListen under ws.Path.
type Server struct {
	cfg      config.Config
	logger   zerolog.Logger
	manager  *chat.Manager
	acceptor *transport.Acceptor
	names    *xsync.MapOf[string, string]

	listener   net.Listener
	tcp        *tcp.Server
	wsListener net.Listener
	httpServer *http.Server

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Server instance.
func New(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		names:  xsync.NewMapOf[string](),
		quit:   make(chan struct{}),
	}

	opts := append(cfg.ManagerOptions(logger), chat.WithDispatcher(s))
	manager, err := chat.NewManager(cfg.LocalID, opts...)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	s.acceptor = &transport.Acceptor{
		LocalID:          cfg.LocalID,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Accept:           manager.AddConnection,
		Logger:           s.logger,
	}
	return s, nil
}

// Listen binds the listening sockets without accepting connections yet.
func (s *Server) Listen() error {
	if s.cfg.WSListen == "" {
		listener, err := net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		s.listener = listener
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("server started (TCP and WebSocket)")
		return nil
	}

	s.tcp = tcp.New(s.cfg.Listen, s.acceptor)
	if err := s.tcp.Listen(); err != nil {
		return err
	}
	wsListener, err := net.Listen("tcp", s.cfg.WSListen)
	if err != nil {
		s.tcp.Stop()
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.wsListener = wsListener
	s.logger.Info().Str("addr", wsListener.Addr().String()).Msg("WebSocket server started")
	return nil
}

// Start serves connections until Stop is called.
func (s *Server) Start() error {
	if s.listener == nil && s.tcp == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.manager.Start()

	if s.listener != nil {
		s.wg.Add(1)
		go s.acceptConnections()
	} else {
		mux := http.NewServeMux()
		mux.Handle(ws.Path, ws.Handler(s.acceptor))
		s.httpServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: s.cfg.HandshakeTimeout,
		}

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			if err := s.tcp.Start(); err != nil {
				s.logger.Error().Err(err).Msg("TCP server error")
			}
		}()
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(s.wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("WebSocket server error")
			}
		}()
	}

	<-s.quit
	return nil
}

// Stop notifies every peer with MANAGER_SHUTDOWN, closes the listeners and
// waits for all connections to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.tcp != nil {
			s.tcp.Stop()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		} else if s.wsListener != nil {
			s.wsListener.Close()
		}

		var wg sync.WaitGroup
		for _, peerID := range s.manager.Peers() {
			wg.Add(1)
			go func(peerID string) {
				defer wg.Done()
				s.manager.Disconnect(peerID, protocol.CloseManagerShutdown)
			}(peerID)
		}
		wg.Wait()

		s.manager.Shutdown()
		s.wg.Wait()
		s.logger.Info().Msg("server stopped")
	})
}

// Addr returns the server's listening address (for single port mode).
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// TCPAddr returns the raw TCP listening address.
func (s *Server) TCPAddr() string {
	if s.tcp != nil {
		return s.tcp.Addr()
	}
	return s.Addr()
}

// WSAddr returns the WebSocket listening address.
func (s *Server) WSAddr() string {
	if s.wsListener != nil {
		return s.wsListener.Addr().String()
	}
	return s.Addr()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.manager.Len()
}

// Users returns the user names that joined, keyed by peer id.
func (s *Server) Users() map[string]string {
	users := make(map[string]string, s.names.Size())
	s.names.Range(func(peerID, name string) bool {
		users[peerID] = name
		return true
	})
	return users
}

// Kick notifies peerID with KICKED and disconnects it.
func (s *Server) Kick(peerID string) bool {
	return s.manager.Kick(peerID)
}

// Manager returns the connection manager.
func (s *Server) Manager() *chat.Manager {
	return s.manager
}

// acceptConnections accepts connections on single port and determines protocol.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("failed to accept connection")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection determines whether the connection is HTTP (WebSocket) or TCP.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	timeout := s.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = transport.DefaultHandshakeTimeout
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	kind, reader, err := detectProtocol(conn)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed to peek connection")
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	switch kind {
	case protocolHTTP:
		ws.Admit(s.acceptor, &bufferedConn{Conn: conn, reader: reader})
	default:
		s.acceptor.Admit(transport.NewStream(tcp.NewConnWithReader(conn, reader)))
	}
}
