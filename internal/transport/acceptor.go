package transport

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/linkchat/internal/chat"
)

// DefaultHandshakeTimeout bounds the HELLO exchange on new connections.
const DefaultHandshakeTimeout = 5 * time.Second

// Acceptor admits freshly accepted streams: it answers the peer's HELLO and
// hands the stream to Accept under the identifier the peer announced.
type Acceptor struct {
	LocalID          string
	HandshakeTimeout time.Duration
	Accept           chat.AcceptFunc
	Logger           zerolog.Logger
}

// Admit runs the handshake on s. The stream is closed if the handshake or
// Accept fails.
func (a *Acceptor) Admit(s *Stream) error {
	timeout := a.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	peerID, err := chat.Answer(s, a.LocalID, timeout)
	if err != nil {
		a.Logger.Warn().Err(err).Str("remote", s.RemoteAddr()).Msg("handshake failed")
		s.Close()
		return err
	}
	if err := a.Accept(peerID, s); err != nil {
		a.Logger.Warn().Err(err).Str("peer_id", peerID).Msg("connection rejected")
		s.Close()
		return fmt.Errorf("accept %s: %w", peerID, err)
	}
	return nil
}

// Dial runs the dialing side of the handshake on s and returns the remote
// peer's identifier. The stream is closed on failure.
func Dial(s *Stream, localID string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	peerID, err := chat.Greet(s, localID, timeout)
	if err != nil {
		s.Close()
		return "", err
	}
	return peerID, nil
}
