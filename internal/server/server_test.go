package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/server"
	"github.com/omochice/linkchat/internal/testutil"
	"github.com/omochice/linkchat/internal/testutil/testlog"
	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/internal/transport/tcp"
	"github.com/omochice/linkchat/internal/transport/ws"
	"github.com/omochice/linkchat/pkg/protocol"
)

const (
	serverID    = "5E:5E:5E:5E:5E:5E"
	waitTimeout = 2 * time.Second
)

func newServer(t *testing.T, wsListen string) *server.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.LocalID = serverID
	cfg.Listen = "127.0.0.1:0"
	cfg.WSListen = wsListen
	cfg.HeartbeatInterval = 0
	srv, err := server.New(cfg, testlog.New(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Start()
	t.Cleanup(srv.Stop)
	return srv
}

// peer is a bare endpoint talking to the server through its own Manager.
type peer struct {
	manager *chat.Manager
	chats   chan protocol.ChatMessage
	closes  chan protocol.CloseCode
	setups  chan struct{}
}

func newPeer(t *testing.T, localID string) *peer {
	t.Helper()

	p := &peer{
		chats:  make(chan protocol.ChatMessage, 16),
		closes: make(chan protocol.CloseCode, 16),
		setups: make(chan struct{}, 16),
	}
	m, err := chat.NewManager(localID,
		chat.WithLogger(testlog.New(t)),
		chat.WithHeartbeat(0, chat.DefaultMaxMisses),
		chat.WithDispatcher(chat.DispatcherFuncs{
			AppMessage: func(_ string, payload []byte) {
				var msg protocol.ChatMessage
				if err := msg.Decode(payload); err == nil {
					p.chats <- msg
				}
			},
			ConnectionClosed: func(_ string, code protocol.CloseCode) { p.closes <- code },
			SetupFinished:    func() { p.setups <- struct{}{} },
		}),
	)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Shutdown)
	p.manager = m
	return p
}

func (p *peer) attach(t *testing.T, dial func(context.Context) (string, *transport.Stream, error)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	peerID, stream, err := dial(ctx)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	if peerID != serverID {
		t.Fatalf("handshake peer = %q, want %q", peerID, serverID)
	}
	if err := p.manager.AddConnection(peerID, stream); err != nil {
		t.Fatalf("AddConnection() error = %v", err)
	}
}

func (p *peer) chat(t *testing.T, kind protocol.ChatKind, sender, content string) {
	t.Helper()

	msg := protocol.ChatMessage{Kind: kind, Sender: sender, Content: content}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !p.manager.Send(serverID, data) {
		t.Fatal("Send() = false")
	}
}

func tcpDialer(addr, localID string) func(context.Context) (string, *transport.Stream, error) {
	return func(ctx context.Context) (string, *transport.Stream, error) {
		return tcp.Dial(ctx, addr, localID, time.Second)
	}
}

func wsDialer(url, localID string) func(context.Context) (string, *transport.Stream, error) {
	return func(ctx context.Context) (string, *transport.Stream, error) {
		return ws.Dial(ctx, url, localID, time.Second)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalID = "nope"

	if _, err := server.New(cfg, testlog.New(t)); err == nil {
		t.Error("New() error = nil for invalid local id")
	}
}

func TestServer_Stop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	srv, err := server.New(cfg, testlog.New(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	srv.Stop()

	if err := testutil.Receive(t, errCh, time.Second); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if _, err := net.Dial("tcp", srv.Addr()); err == nil {
		t.Error("expected error after stop, got nil")
	}
	srv.Stop()
}

func TestServer_Modes(t *testing.T) {
	tests := []struct {
		name     string
		wsListen string
	}{
		{name: "single port", wsListen: ""},
		{name: "dual port", wsListen: "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.wsListen)
			if srv.TCPAddr() == "" || srv.WSAddr() == "" {
				t.Fatalf("TCPAddr() = %q, WSAddr() = %q", srv.TCPAddr(), srv.WSAddr())
			}

			alice := newPeer(t, "A1:00:00:00:00:01")
			bob := newPeer(t, "B0:00:00:00:00:02")
			alice.attach(t, tcpDialer(srv.TCPAddr(), "A1:00:00:00:00:01"))
			bob.attach(t, wsDialer("ws://"+srv.WSAddr()+ws.Path, "B0:00:00:00:00:02"))

			testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 2 }, "server registers both peers")

			alice.chat(t, protocol.ChatKindText, "alice", "over tcp")
			got := testutil.Receive(t, bob.chats, waitTimeout)
			if got.Content != "over tcp" || got.Sender != "alice" {
				t.Errorf("bob received %+v", got)
			}

			bob.chat(t, protocol.ChatKindText, "bob", "over websocket")
			got = testutil.Receive(t, alice.chats, waitTimeout)
			if got.Content != "over websocket" || got.Sender != "bob" {
				t.Errorf("alice received %+v", got)
			}
		})
	}
}

func TestServer_JoinSendsSetupFinished(t *testing.T) {
	srv := newServer(t, "")
	p := newPeer(t, "A1:00:00:00:00:01")
	p.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))

	p.chat(t, protocol.ChatKindJoin, "alice", "")

	testutil.Receive(t, p.setups, waitTimeout)
	if got := srv.Users()["A1:00:00:00:00:01"]; got != "alice" {
		t.Errorf("Users()[peer] = %q, want %q", got, "alice")
	}
}

func TestServer_SayGoodbye(t *testing.T) {
	srv := newServer(t, "")
	alice := newPeer(t, "A1:00:00:00:00:01")
	bob := newPeer(t, "B0:00:00:00:00:02")
	alice.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))
	bob.attach(t, tcpDialer(srv.Addr(), "B0:00:00:00:00:02"))

	bob.chat(t, protocol.ChatKindJoin, "bob", "")
	testutil.Receive(t, bob.setups, waitTimeout)
	testutil.Receive(t, alice.chats, waitTimeout) // bob joined

	// The close notice makes the server drop bob and tell the room he left.
	bob.manager.Disconnect(serverID, protocol.CloseSayGoodbye)

	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 1 }, "server removes bob")
	got := testutil.Receive(t, alice.chats, waitTimeout)
	if got.Kind != protocol.ChatKindLeave || got.Sender != "bob" {
		t.Errorf("alice received %+v, want bob leave", got)
	}
}

func TestServer_RemoteCloseNotice(t *testing.T) {
	srv := newServer(t, "")
	alice := newPeer(t, "A1:00:00:00:00:01")
	alice.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))
	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 1 }, "server registers alice")

	// carol speaks raw frames so her side stays open after the notice.
	const carolID = "C0:00:00:00:00:03"
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, stream, err := tcp.Dial(ctx, srv.Addr(), carolID, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer stream.Close()
	w, err := stream.Writer()
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	send := func(msg protocol.Message) {
		t.Helper()
		frame, err := protocol.Encode(msg)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if _, err := w.Write(frame); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	join, _ := (&protocol.ChatMessage{Kind: protocol.ChatKindJoin, Sender: "carol"}).Encode()
	send(protocol.AppMessage{Sender: carolID, Payload: join})
	testutil.Receive(t, alice.chats, waitTimeout) // carol joined

	send(protocol.ConnectionClosed{Sender: carolID, Code: protocol.CloseReadFailure})

	// The LEAVE is only sent once carol is unregistered.
	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 1 }, "server drops carol")
	got := testutil.Receive(t, alice.chats, waitTimeout)
	if got.Kind != protocol.ChatKindLeave || got.Sender != "carol" {
		t.Errorf("alice received %+v, want carol leave", got)
	}
	select {
	case extra := <-alice.chats:
		t.Errorf("alice received extra %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServer_Kick(t *testing.T) {
	srv := newServer(t, "")
	p := newPeer(t, "A1:00:00:00:00:01")
	p.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))
	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 1 }, "server registers peer")

	if !srv.Kick("A1:00:00:00:00:01") {
		t.Fatal("Kick() = false")
	}

	if code := testutil.Receive(t, p.closes, waitTimeout); code != protocol.CloseKicked {
		t.Errorf("first close event = %v, want %v", code, protocol.CloseKicked)
	}
	if srv.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", srv.ClientCount())
	}
}

func TestServer_StopNotifiesPeers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalID = serverID
	cfg.Listen = "127.0.0.1:0"
	cfg.HeartbeatInterval = 0
	srv, err := server.New(cfg, testlog.New(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Start()

	p := newPeer(t, "A1:00:00:00:00:01")
	p.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))
	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 1 }, "server registers peer")

	srv.Stop()

	if code := testutil.Receive(t, p.closes, waitTimeout); code != protocol.CloseManagerShutdown {
		t.Errorf("first close event = %v, want %v", code, protocol.CloseManagerShutdown)
	}
}

func TestServer_MalformedChatIsDropped(t *testing.T) {
	srv := newServer(t, "")
	alice := newPeer(t, "A1:00:00:00:00:01")
	bob := newPeer(t, "B0:00:00:00:00:02")
	alice.attach(t, tcpDialer(srv.Addr(), "A1:00:00:00:00:01"))
	bob.attach(t, tcpDialer(srv.Addr(), "B0:00:00:00:00:02"))
	testutil.Eventually(t, waitTimeout, func() bool { return srv.ClientCount() == 2 }, "server registers peers")

	alice.manager.Send(serverID, []byte{0x80})
	alice.chat(t, protocol.ChatKindText, "alice", "valid")

	got := testutil.Receive(t, bob.chats, waitTimeout)
	if got.Content != "valid" {
		t.Errorf("bob received %+v, want only the valid message", got)
	}
	if srv.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", srv.ClientCount())
	}
}
