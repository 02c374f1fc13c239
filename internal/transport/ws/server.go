package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	gobwas "github.com/gobwas/ws"
	"github.com/gorilla/websocket"

	"github.com/omochice/linkchat/internal/transport"
)

// Path is the HTTP path WebSocket clients connect to.
const Path = "/ws"

// Server accepts WebSocket connections on a raw listener, upgrading them
// with gobwas/ws, and admits them through an Acceptor.
type Server struct {
	address  string
	listener net.Listener
	acceptor *transport.Acceptor
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a WebSocket server that admits connections through acceptor.
func New(address string, acceptor *transport.Acceptor) *Server {
	return &Server{
		address:  address,
		acceptor: acceptor,
		quit:     make(chan struct{}),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.listener = listener
	s.acceptor.Logger.Info().Str("addr", listener.Addr().String()).Msg("WebSocket server started")
	return nil
}

// Start binds the listener if needed and accepts connections until Stop.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.acceptor.Logger.Warn().Err(err).Msg("failed to accept WebSocket connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Serve(conn)
		}()
	}
}

// Serve upgrades conn and admits it. conn may be a buffered view of the
// socket when the first bytes were peeked for protocol detection.
func (s *Server) Serve(conn net.Conn) {
	Admit(s.acceptor, conn)
}

// Admit upgrades conn with gobwas/ws and hands it to acceptor.
func Admit(acceptor *transport.Acceptor, conn net.Conn) error {
	if _, err := gobwas.Upgrade(conn); err != nil {
		acceptor.Logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed to upgrade connection")
		conn.Close()
		return err
	}
	return acceptor.Admit(transport.NewStream(NewServerConn(conn)))
}

// Stop stops the WebSocket server.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// Handler returns an http.Handler that upgrades requests with
// gorilla/websocket and admits them through acceptor.
func Handler(acceptor *transport.Acceptor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			acceptor.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade connection")
			return
		}
		acceptor.Admit(transport.NewStream(NewGorillaConn(conn)))
	})
}
