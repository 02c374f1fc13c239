package ws

import (
	"context"
	"fmt"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gorilla/websocket"

	"github.com/omochice/linkchat/internal/transport"
)

// Dial connects to the WebSocket endpoint at url with gobwas/ws, runs the
// HELLO handshake as localID and returns the remote peer id with the ready
// stream.
func Dial(ctx context.Context, url, localID string, timeout time.Duration) (string, *transport.Stream, error) {
	conn, br, _, err := gobwas.Dial(ctx, url)
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	s := transport.NewStream(NewClientConn(conn, br))
	peerID, err := transport.Dial(s, localID, timeout)
	if err != nil {
		return "", nil, err
	}
	return peerID, s, nil
}

// DialGorilla is Dial using gorilla/websocket.
func DialGorilla(ctx context.Context, url, localID string, timeout time.Duration) (string, *transport.Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	s := transport.NewStream(NewGorillaConn(conn))
	peerID, err := transport.Dial(s, localID, timeout)
	if err != nil {
		return "", nil, err
	}
	return peerID, s, nil
}
