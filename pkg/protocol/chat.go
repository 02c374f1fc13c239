package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ChatKind represents the type of chat message
type ChatKind int

const (
	ChatKindText ChatKind = iota
	ChatKindJoin
	ChatKindLeave
)

// String returns the string representation of ChatKind
func (k ChatKind) String() string {
	switch k {
	case ChatKindText:
		return "TEXT"
	case ChatKindJoin:
		return "JOIN"
	case ChatKindLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// ChatMessage is the chat room payload carried inside an AppMessage.
type ChatMessage struct {
	Kind    ChatKind
	Sender  string
	Content string
}

// Field numbers of the chat message in protobuf wire format:
//
//	message ChatMessage {
//	  ChatKind kind    = 1;
//	  string   sender  = 2;
//	  string   content = 3;
//	}
const (
	chatFieldKind    protowire.Number = 1
	chatFieldSender  protowire.Number = 2
	chatFieldContent protowire.Number = 3
)

// Encode encodes the message into bytes using the protobuf wire format.
// Zero-valued fields are omitted, as proto3 does.
func (m *ChatMessage) Encode() ([]byte, error) {
	var b []byte
	if m.Kind != ChatKindText {
		b = protowire.AppendTag(b, chatFieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Kind))
	}
	if m.Sender != "" {
		b = protowire.AppendTag(b, chatFieldSender, protowire.BytesType)
		b = protowire.AppendString(b, m.Sender)
	}
	if m.Content != "" {
		b = protowire.AppendTag(b, chatFieldContent, protowire.BytesType)
		b = protowire.AppendString(b, m.Content)
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}

// Decode decodes protobuf wire bytes into the message. Unknown fields are
// skipped; unknown kinds degrade to TEXT.
func (m *ChatMessage) Decode(data []byte) error {
	*m = ChatMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidChatMessage, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == chatFieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: kind: %v", ErrInvalidChatMessage, protowire.ParseError(n))
			}
			m.Kind = chatKindFromWire(v)
			data = data[n:]
		case num == chatFieldSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("%w: sender: %v", ErrInvalidChatMessage, protowire.ParseError(n))
			}
			m.Sender = v
			data = data[n:]
		case num == chatFieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("%w: content: %v", ErrInvalidChatMessage, protowire.ParseError(n))
			}
			m.Content = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrInvalidChatMessage, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// chatKindFromWire returns ChatKindText for unknown values rather than an
// error so that newer peers can add kinds without breaking older ones.
func chatKindFromWire(v uint64) ChatKind {
	switch ChatKind(v) {
	case ChatKindJoin:
		return ChatKindJoin
	case ChatKindLeave:
		return ChatKindLeave
	default:
		return ChatKindText
	}
}
