package ws_test

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/websocket"

	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/internal/transport/ws"
)

func TestConn_Frames(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	client := ws.NewClientConn(clientSide, nil)
	server := ws.NewServerConn(serverSide)

	tests := []struct {
		name string
		from *ws.Conn
		to   *ws.Conn
		data string
	}{
		{name: "client to server", from: client, to: server, data: "1102BB:BB:BB:BB:BB:BBhi"},
		{name: "server to client", from: server, to: client, data: "1001AA:AA:AA:AA:AA:AA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			go func() { errCh <- tt.from.WriteFrame([]byte(tt.data)) }()

			buf := make([]byte, 256)
			n, err := tt.to.ReadFrame(buf)
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if got := string(buf[:n]); got != tt.data {
				t.Errorf("ReadFrame() = %q, want %q", got, tt.data)
			}
			if err := <-errCh; err != nil {
				t.Errorf("WriteFrame() error = %v", err)
			}
		})
	}
}

func TestConn_ReadFrame_TooLarge(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	writeErr := make(chan error, 1)
	go func() { writeErr <- ws.NewClientConn(clientSide, nil).WriteFrame(make([]byte, 1<<20)) }()

	_, err := ws.NewServerConn(serverSide).ReadFrame(make([]byte, 64))
	if !errors.Is(err, transport.ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want %v", err, transport.ErrFrameTooLarge)
	}

	// The payload must be left unread: the writer is still blocked on the
	// pipe and only fails once the reading side goes away.
	select {
	case err := <-writeErr:
		t.Fatalf("WriteFrame() returned %v before the reader closed", err)
	case <-time.After(20 * time.Millisecond):
	}
	serverSide.Close()
	if err := <-writeErr; err == nil {
		t.Error("WriteFrame() error = nil, want payload left unread")
	}
}

func TestConn_ReadFrame_AnswersPing(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	server := ws.NewServerConn(serverSide)
	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := server.ReadFrame(buf)
		done <- result{string(buf[:n]), err}
	}()

	if err := wsutil.WriteClientMessage(clientSide, gobwas.OpPing, []byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	pong, err := gobwas.ReadFrame(clientSide)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Header.OpCode != gobwas.OpPong || string(pong.Payload) != "ping" {
		t.Errorf("got %v %q, want pong %q", pong.Header.OpCode, pong.Payload, "ping")
	}

	if err := wsutil.WriteClientBinary(clientSide, []byte("after ping")); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	got := <-done
	if got.err != nil || got.data != "after ping" {
		t.Errorf("ReadFrame() = %q, %v, want %q", got.data, got.err, "after ping")
	}
}

func TestGorillaConn_ReadFrame_TooLarge(t *testing.T) {
	upgrader := websocket.Upgrader{}
	readErr := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			readErr <- err
			return
		}
		defer conn.Close()
		_, err = ws.NewGorillaConn(conn).ReadFrame(make([]byte, 64))
		readErr <- err
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage(websocket.BinaryMessage, make([]byte, 512)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := <-readErr; !errors.Is(err, transport.ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want %v", err, transport.ErrFrameTooLarge)
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := client.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Errorf("client read error = %v, want close %d", err, websocket.CloseMessageTooBig)
	}
}

func TestConn_CloseReadUnblocksReader(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	c := ws.NewServerConn(serverSide)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadFrame(make([]byte, 64))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.CloseRead()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("ReadFrame() error = nil after CloseRead")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFrame() still blocked after CloseRead")
	}
}
