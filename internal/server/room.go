package server

import (
	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/pkg/protocol"
)

// OnAppMessage relays a chat line to every other peer.
func (s *Server) OnAppMessage(peerID string, payload []byte) {
	var msg protocol.ChatMessage
	if err := msg.Decode(payload); err != nil {
		s.logger.Warn().Err(err).Str("peer_id", peerID).Msg("dropping malformed chat message")
		return
	}

	logger := s.logger.With().Str("peer_id", peerID).Str("user", msg.Sender).Logger()
	switch msg.Kind {
	case protocol.ChatKindJoin:
		s.names.Store(peerID, msg.Sender)
		logger.Info().Msg("user joined")
		if !s.manager.SendSetupFinished(peerID) {
			logger.Warn().Msg("could not send setup finished")
		}
	case protocol.ChatKindLeave:
		s.names.Delete(peerID)
		logger.Info().Msg("user left")
	default:
		logger.Debug().Str("content", msg.Content).Msg("message received")
	}

	n := s.manager.BroadcastExcept(peerID, payload)
	logger.Debug().Int("recipients", n).Stringer("kind", msg.Kind).Msg("message relayed")
}

// OnRemoteClose answers a client's close notice by dropping its
// connection. The departure is announced once the teardown reports back.
func (s *Server) OnRemoteClose(peerID string, code protocol.CloseCode) {
	s.logger.Info().Str("peer_id", peerID).Stringer("code", code).Msg("client closed the connection")
	s.manager.RemoveConnection(peerID, protocol.CloseGetGoodbye)
}

// OnConnectionClosed announces the departure of users that did not leave
// on their own.
func (s *Server) OnConnectionClosed(peerID string, code protocol.CloseCode) {
	s.logger.Info().Str("peer_id", peerID).Stringer("code", code).Msg("client disconnected")

	name, ok := s.names.LoadAndDelete(peerID)
	if !ok {
		return
	}
	leave := protocol.ChatMessage{Kind: protocol.ChatKindLeave, Sender: name}
	data, err := leave.Encode()
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not encode leave notice")
		return
	}
	s.manager.Broadcast(data)
}

// OnSetupFinished is only sent by servers; a client sending it is ignored.
func (s *Server) OnSetupFinished() {
	s.logger.Debug().Msg("ignoring setup finished from client")
}

// Compile-time checks
var (
	_ chat.Dispatcher         = (*Server)(nil)
	_ chat.RemoteCloseHandler = (*Server)(nil)
)
