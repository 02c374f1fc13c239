package tcp_test

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/internal/transport/tcp"
)

func TestConn_Frames(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	w := tcp.NewConn(client)
	r := tcp.NewConn(server)

	frames := []string{
		"1000AA:AA:AA:AA:AA:AA",
		"1102AA:AA:AA:AA:AA:AAhello",
		"1102AA:AA:AA:AA:AA:AA",
	}
	go func() {
		for _, f := range frames {
			if err := w.WriteFrame([]byte(f)); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 1024)
	for _, want := range frames {
		n, err := r.ReadFrame(buf)
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("ReadFrame() = %q, want %q", got, want)
		}
	}
}

func TestConn_ReadFrame_TooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go tcp.NewConn(client).WriteFrame(make([]byte, 128))

	_, err := tcp.NewConn(server).ReadFrame(make([]byte, 64))
	if !errors.Is(err, transport.ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want %v", err, transport.ErrFrameTooLarge)
	}
}

func TestConn_ReadFrame_TruncatedIsEOF(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte{0, 0, 0, 10, '1', '0'})
		client.Close()
	}()

	_, err := tcp.NewConn(server).ReadFrame(make([]byte, 64))
	if !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() error = %v, want %v", err, io.EOF)
	}
}

func TestConn_CloseReadUnblocksReader(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := tcp.NewConn(server)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadFrame(make([]byte, 64))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.CloseRead(); err != nil {
		t.Fatalf("CloseRead() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("ReadFrame() error = nil after CloseRead")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFrame() still blocked after CloseRead")
	}
}

func TestConn_CloseWriteUnblocksWriter(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := tcp.NewConn(client)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.WriteFrame([]byte("nobody reads this"))
	}()

	time.Sleep(20 * time.Millisecond)
	c.CloseWrite()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("WriteFrame() error = nil after CloseWrite")
		}
	case <-time.After(time.Second):
		t.Fatal("WriteFrame() still blocked after CloseWrite")
	}
}
