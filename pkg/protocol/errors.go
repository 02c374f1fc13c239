package protocol

import "errors"

var (
	ErrFrameTooShort      = errors.New("protocol: frame too short")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrInvalidSenderID    = errors.New("protocol: invalid sender id")
	ErrInvalidCloseCode   = errors.New("protocol: invalid close code")
	ErrUnexpectedBody     = errors.New("protocol: unexpected frame body")
	ErrInvalidChatMessage = errors.New("protocol: invalid chat message")
)
