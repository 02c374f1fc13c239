package chat_test

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/pkg/protocol"
)

var errMockClosed = errors.New("mock: closed")

// mockStream is an in-memory chat.Stream. Frames pushed with deliver are
// returned one per Read; frames written by the writer half are published on
// written.
type mockStream struct {
	remoteAddr string

	incoming chan []byte
	written  chan []byte

	// gate, when set, blocks every Write until a value is received or the
	// writer half is closed. writing is signalled when a Write starts.
	gate    chan struct{}
	writing chan struct{}

	readerErr error
	writeErr  error

	readerClosed chan struct{}
	writerClosed chan struct{}
	readerOnce   sync.Once
	writerOnce   sync.Once

	readerCloses atomic.Int32
	writerCloses atomic.Int32
	streamCloses atomic.Int32
}

func newMockStream(addr string) *mockStream {
	return &mockStream{
		remoteAddr:   addr,
		incoming:     make(chan []byte, 32),
		written:      make(chan []byte, 256),
		writing:      make(chan struct{}, 256),
		readerClosed: make(chan struct{}),
		writerClosed: make(chan struct{}),
	}
}

func (s *mockStream) deliver(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		panic(err)
	}
	s.incoming <- data
}

func (s *mockStream) Reader() (io.ReadCloser, error) {
	if s.readerErr != nil {
		return nil, s.readerErr
	}
	return mockReader{s}, nil
}

func (s *mockStream) Writer() (io.WriteCloser, error) {
	return mockWriter{s}, nil
}

func (s *mockStream) Close() error {
	s.streamCloses.Add(1)
	s.closeReader()
	s.closeWriter()
	return nil
}

func (s *mockStream) RemoteAddr() string { return s.remoteAddr }

func (s *mockStream) closeReader() {
	s.readerOnce.Do(func() { close(s.readerClosed) })
}

func (s *mockStream) closeWriter() {
	s.writerOnce.Do(func() { close(s.writerClosed) })
}

type mockReader struct{ s *mockStream }

func (r mockReader) Read(p []byte) (int, error) {
	select {
	case data, ok := <-r.s.incoming:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	case <-r.s.readerClosed:
		return 0, errMockClosed
	}
}

func (r mockReader) Close() error {
	r.s.readerCloses.Add(1)
	r.s.closeReader()
	return nil
}

type mockWriter struct{ s *mockStream }

func (w mockWriter) Write(p []byte) (int, error) {
	s := w.s
	select {
	case <-s.writerClosed:
		return 0, errMockClosed
	default:
	}
	s.writing <- struct{}{}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.writerClosed:
			return 0, errMockClosed
		}
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	s.written <- cp
	return len(p), nil
}

func (w mockWriter) Close() error {
	w.s.writerCloses.Add(1)
	w.s.closeWriter()
	return nil
}

type closeEvent struct {
	peerID string
	code   protocol.CloseCode
}

type appEvent struct {
	peerID  string
	payload string
}

// recorder is a chat.Dispatcher that publishes every callback on a channel.
type recorder struct {
	apps   chan appEvent
	closes chan closeEvent
	setups chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		apps:   make(chan appEvent, 64),
		closes: make(chan closeEvent, 64),
		setups: make(chan struct{}, 64),
	}
}

func (r *recorder) OnAppMessage(peerID string, payload []byte) {
	r.apps <- appEvent{peerID: peerID, payload: string(payload)}
}

func (r *recorder) OnConnectionClosed(peerID string, code protocol.CloseCode) {
	r.closes <- closeEvent{peerID: peerID, code: code}
}

func (r *recorder) OnSetupFinished() {
	r.setups <- struct{}{}
}

// remoteRecorder also takes close notices apart from teardown.
type remoteRecorder struct {
	*recorder
	remotes chan closeEvent
}

func newRemoteRecorder() *remoteRecorder {
	return &remoteRecorder{recorder: newRecorder(), remotes: make(chan closeEvent, 64)}
}

func (r *remoteRecorder) OnRemoteClose(peerID string, code protocol.CloseCode) {
	r.remotes <- closeEvent{peerID: peerID, code: code}
}

// Compile-time checks
var (
	_ chat.Stream             = (*mockStream)(nil)
	_ chat.Dispatcher         = (*recorder)(nil)
	_ chat.RemoteCloseHandler = (*remoteRecorder)(nil)
)
