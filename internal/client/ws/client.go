// Package ws provides a WebSocket client for the chat server.
package ws

import (
	"github.com/omochice/linkchat/internal/client"
	"github.com/omochice/linkchat/internal/transport/ws"
)

// New creates a chat client that connects to the WebSocket URL with
// gobwas/ws.
func New(url, username string, opts ...client.Option) *client.Session {
	return client.NewSession(ws.Dial, url, username, opts...)
}

// NewGorilla is New using gorilla/websocket.
func NewGorilla(url, username string, opts ...client.Option) *client.Session {
	return client.NewSession(ws.DialGorilla, url, username, opts...)
}
