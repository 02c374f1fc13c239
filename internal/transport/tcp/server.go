package tcp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/omochice/linkchat/internal/transport"
)

// Server accepts TCP connections and admits them through an Acceptor.
type Server struct {
	address  string
	listener net.Listener
	acceptor *transport.Acceptor
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a TCP server that admits connections through acceptor.
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
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener
	s.acceptor.Logger.Info().Str("addr", listener.Addr().String()).Msg("TCP server started")
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
			s.acceptor.Logger.Warn().Err(err).Msg("failed to accept TCP connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptor.Admit(NewStream(conn))
		}()
	}
}

// Stop stops the TCP server. Admitted streams belong to the acceptor and
// are not closed.
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
