package chat

import "errors"

var (
	ErrStreamUnavailable = errors.New("chat: stream unavailable")
	ErrManagerClosed     = errors.New("chat: manager closed")
	ErrInvalidLocalID    = errors.New("chat: invalid local id")
	ErrHandshake         = errors.New("chat: handshake failed")
)
