package chat

import (
	"fmt"
	"time"

	"github.com/omochice/linkchat/pkg/protocol"
)

const handshakeBufSize = 256

// Greet runs the dialing side of the handshake on s: it sends HELLO stamped
// with localID and waits for the HELLO_REPLY that names the remote peer.
func Greet(s Stream, localID string, timeout time.Duration) (string, error) {
	if err := withDeadline(s, timeout); err != nil {
		return "", err
	}
	if err := writeFrame(s, protocol.Hello{Sender: localID}); err != nil {
		return "", err
	}
	msg, err := readFrame(s)
	if err != nil {
		return "", err
	}
	reply, ok := msg.(protocol.HelloReply)
	if !ok {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrHandshake, protocol.TypeHelloReply, msg.Type())
	}
	if err := withDeadline(s, 0); err != nil {
		return "", err
	}
	return reply.Sender, nil
}

// Answer runs the accepting side of the handshake on s: it waits for HELLO
// and answers with HELLO_REPLY stamped with localID.
func Answer(s Stream, localID string, timeout time.Duration) (string, error) {
	if err := withDeadline(s, timeout); err != nil {
		return "", err
	}
	msg, err := readFrame(s)
	if err != nil {
		return "", err
	}
	hello, ok := msg.(protocol.Hello)
	if !ok {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrHandshake, protocol.TypeHello, msg.Type())
	}
	if err := writeFrame(s, protocol.HelloReply{Sender: localID}); err != nil {
		return "", err
	}
	if err := withDeadline(s, 0); err != nil {
		return "", err
	}
	return hello.Sender, nil
}

func withDeadline(s Stream, timeout time.Duration) error {
	d, ok := s.(deadliner)
	if !ok {
		return nil
	}
	var t time.Time
	if timeout > 0 {
		t = time.Now().Add(timeout)
	}
	if err := d.SetDeadline(t); err != nil {
		return fmt.Errorf("%w: set deadline: %v", ErrHandshake, err)
	}
	return nil
}

func writeFrame(s Stream, msg protocol.Message) error {
	w, err := s.Writer()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrHandshake, msg.Type(), err)
	}
	return nil
}

func readFrame(s Stream) (protocol.Message, error) {
	r, err := s.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	buf := make([]byte, handshakeBufSize)
	n, err := r.Read(buf)
	if n == 0 && err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrHandshake, err)
	}
	msg, err := protocol.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return msg, nil
}
