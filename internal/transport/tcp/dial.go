package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/omochice/linkchat/internal/transport"
)

// Dial connects to address, runs the HELLO handshake as localID and returns
// the remote peer id with the ready stream.
func Dial(ctx context.Context, address, localID string, timeout time.Duration) (string, *transport.Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	s := NewStream(conn)
	peerID, err := transport.Dial(s, localID, timeout)
	if err != nil {
		return "", nil, err
	}
	return peerID, s, nil
}
