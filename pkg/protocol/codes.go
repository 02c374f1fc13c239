package protocol

import "strconv"

// MessageType identifies the frame variant carried after the header.
type MessageType int

// Frame type codes as they appear in the first four header bytes.
const (
	TypeHello            MessageType = 1000
	TypeHelloReply       MessageType = 1001
	TypeConnectionClosed MessageType = 1100
	TypeSetupFinished    MessageType = 1101
	TypeAppMessage       MessageType = 1102
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case TypeHello:
		return "HELLO"
	case TypeHelloReply:
		return "HELLO_REPLY"
	case TypeConnectionClosed:
		return "CONNECTION_CLOSED"
	case TypeSetupFinished:
		return "SERVER_SETUP_FINISHED"
	case TypeAppMessage:
		return "APP_MESSAGE"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(mt)) + ")"
	}
}

// Valid reports whether mt is one of the five known frame types.
func (mt MessageType) Valid() bool {
	switch mt {
	case TypeHello, TypeHelloReply, TypeConnectionClosed, TypeSetupFinished, TypeAppMessage:
		return true
	}
	return false
}

// CloseCode explains why a connection was torn down.
type CloseCode int

const (
	CloseServerNotResponding CloseCode = 101
	CloseReadFailure         CloseCode = 102
	CloseWriteFailure        CloseCode = 103
	CloseManagerShutdown     CloseCode = 104
	CloseKicked              CloseCode = 105
	CloseSayGoodbye          CloseCode = 106
	CloseGetGoodbye          CloseCode = 107
)

func (c CloseCode) String() string {
	switch c {
	case CloseServerNotResponding:
		return "SERVER_NOT_RESPONDING"
	case CloseReadFailure:
		return "READ_FAILURE"
	case CloseWriteFailure:
		return "WRITE_FAILURE"
	case CloseManagerShutdown:
		return "MANAGER_SHUTDOWN"
	case CloseKicked:
		return "KICKED"
	case CloseSayGoodbye:
		return "SAY_GOODBYE"
	case CloseGetGoodbye:
		return "GET_GOODBYE"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
	}
}

// Valid reports whether c is a known close code.
func (c CloseCode) Valid() bool {
	return c >= CloseServerNotResponding && c <= CloseGetGoodbye
}
