// Package protocol defines the peer-to-peer wire frames and the chat payload
// carried inside application frames.
//
// Every frame starts with a fixed 21-byte header: the message type as four
// ASCII digits followed by the 17-byte sender identifier. The body depends on
// the type:
//
//	HELLO, HELLO_REPLY, SERVER_SETUP_FINISHED  no body
//	CONNECTION_CLOSED                          close code, three ASCII digits
//	APP_MESSAGE                                opaque payload, rest of the frame
package protocol

import (
	"fmt"
	"strconv"
)

const (
	// TypeLen is the width of the message type field.
	TypeLen = 4
	// SenderLen is the fixed width of a sender identifier (a MAC address such
	// as "AA:BB:CC:DD:EE:FF").
	SenderLen = 17
	// HeaderLen is the size of every frame header.
	HeaderLen = TypeLen + SenderLen
	// CloseCodeLen is the width of the CONNECTION_CLOSED body.
	CloseCodeLen = 3
)

// Message is one decoded frame. The set of implementations is closed:
// Hello, HelloReply, ConnectionClosed, SetupFinished and AppMessage.
type Message interface {
	Type() MessageType
	SenderID() string
	frame()
}

// Hello is a liveness probe.
type Hello struct {
	Sender string
}

// HelloReply answers a Hello.
type HelloReply struct {
	Sender string
}

// ConnectionClosed tells the receiver why the sender is closing the link.
type ConnectionClosed struct {
	Sender string
	Code   CloseCode
}

// SetupFinished signals that setup-phase negotiation is complete.
type SetupFinished struct {
	Sender string
}

// AppMessage carries an application-defined payload.
type AppMessage struct {
	Sender  string
	Payload []byte
}

func (Hello) Type() MessageType            { return TypeHello }
func (HelloReply) Type() MessageType       { return TypeHelloReply }
func (ConnectionClosed) Type() MessageType { return TypeConnectionClosed }
func (SetupFinished) Type() MessageType    { return TypeSetupFinished }
func (AppMessage) Type() MessageType       { return TypeAppMessage }

func (m Hello) SenderID() string            { return m.Sender }
func (m HelloReply) SenderID() string       { return m.Sender }
func (m ConnectionClosed) SenderID() string { return m.Sender }
func (m SetupFinished) SenderID() string    { return m.Sender }
func (m AppMessage) SenderID() string       { return m.Sender }

func (Hello) frame()            {}
func (HelloReply) frame()       {}
func (ConnectionClosed) frame() {}
func (SetupFinished) frame()    {}
func (AppMessage) frame()       {}

// ValidSenderID reports whether id fits the fixed sender field.
func ValidSenderID(id string) bool {
	return len(id) == SenderLen
}

// Encode serializes msg into its wire form. A sender identifier of the wrong
// width or an unknown close code is a caller error and is reported before
// anything is written.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownMessageType)
	}
	sender := msg.SenderID()
	if !ValidSenderID(sender) {
		return nil, fmt.Errorf("%w: %q is %d bytes, want %d", ErrInvalidSenderID, sender, len(sender), SenderLen)
	}

	switch m := msg.(type) {
	case Hello, HelloReply, SetupFinished:
		return appendHeader(make([]byte, 0, HeaderLen), m.Type(), sender), nil
	case ConnectionClosed:
		if !m.Code.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidCloseCode, int(m.Code))
		}
		buf := appendHeader(make([]byte, 0, HeaderLen+CloseCodeLen), m.Type(), sender)
		return strconv.AppendInt(buf, int64(m.Code), 10), nil
	case AppMessage:
		buf := appendHeader(make([]byte, 0, HeaderLen+len(m.Payload)), m.Type(), sender)
		return append(buf, m.Payload...), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}
}

// Decode parses one complete frame. The header is always read first; the
// message type then decides how the rest of data is interpreted.
func Decode(data []byte) (Message, error) {
	mt, sender, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[HeaderLen:]

	switch mt {
	case TypeHello:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s with %d body bytes", ErrUnexpectedBody, mt, len(body))
		}
		return Hello{Sender: sender}, nil
	case TypeHelloReply:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s with %d body bytes", ErrUnexpectedBody, mt, len(body))
		}
		return HelloReply{Sender: sender}, nil
	case TypeSetupFinished:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s with %d body bytes", ErrUnexpectedBody, mt, len(body))
		}
		return SetupFinished{Sender: sender}, nil
	case TypeConnectionClosed:
		code, err := decodeCloseCode(body)
		if err != nil {
			return nil, err
		}
		return ConnectionClosed{Sender: sender, Code: code}, nil
	case TypeAppMessage:
		var payload []byte
		if len(body) > 0 {
			payload = make([]byte, len(body))
			copy(payload, body)
		}
		return AppMessage{Sender: sender, Payload: payload}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, int(mt))
	}
}

func appendHeader(buf []byte, mt MessageType, sender string) []byte {
	buf = strconv.AppendInt(buf, int64(mt), 10)
	return append(buf, sender...)
}

func decodeHeader(data []byte) (MessageType, string, error) {
	if len(data) < HeaderLen {
		return 0, "", fmt.Errorf("%w: %d bytes (need at least %d)", ErrFrameTooShort, len(data), HeaderLen)
	}
	n, ok := parseDigits(data[:TypeLen])
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownMessageType, data[:TypeLen])
	}
	mt := MessageType(n)
	if !mt.Valid() {
		return 0, "", fmt.Errorf("%w: %d", ErrUnknownMessageType, n)
	}
	return mt, string(data[TypeLen:HeaderLen]), nil
}

func decodeCloseCode(body []byte) (CloseCode, error) {
	if len(body) < CloseCodeLen {
		return 0, fmt.Errorf("%w: close code needs %d bytes, got %d", ErrFrameTooShort, CloseCodeLen, len(body))
	}
	if len(body) > CloseCodeLen {
		return 0, fmt.Errorf("%w: %d bytes after close code", ErrUnexpectedBody, len(body)-CloseCodeLen)
	}
	n, ok := parseDigits(body)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCloseCode, body)
	}
	code := CloseCode(n)
	if !code.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCloseCode, n)
	}
	return code, nil
}

// parseDigits accepts ASCII digits only; strconv.Atoi would also take signs.
func parseDigits(b []byte) (int, bool) {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
