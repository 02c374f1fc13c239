// Package tcp provides a TCP client for the chat server.
package tcp

import (
	"github.com/omochice/linkchat/internal/client"
	"github.com/omochice/linkchat/internal/transport/tcp"
)

// New creates a chat client that connects to the raw TCP address.
func New(address, username string, opts ...client.Option) *client.Session {
	return client.NewSession(tcp.Dial, address, username, opts...)
}
