package chat

import "github.com/omochice/linkchat/pkg/protocol"

// Dispatcher receives decoded application messages and lifecycle events.
// Callbacks run on the goroutine that observed the event (a read worker, the
// heartbeat monitor or the caller of a Manager method) and may call back into
// the Manager.
type Dispatcher interface {
	// OnAppMessage delivers the payload of an APP_MESSAGE frame.
	OnAppMessage(peerID string, payload []byte)

	// OnConnectionClosed reports a torn down connection, or a
	// CONNECTION_CLOSED notice received from the peer when the dispatcher
	// does not implement RemoteCloseHandler.
	OnConnectionClosed(peerID string, code protocol.CloseCode)

	// OnSetupFinished reports a SERVER_SETUP_FINISHED frame.
	OnSetupFinished()
}

// RemoteCloseHandler is implemented by dispatchers that tell a peer's
// CONNECTION_CLOSED notice apart from local teardown. The connection is
// still registered while OnRemoteClose runs.
type RemoteCloseHandler interface {
	OnRemoteClose(peerID string, code protocol.CloseCode)
}

// DispatcherFuncs adapts plain functions to Dispatcher. Nil fields are
// skipped.
type DispatcherFuncs struct {
	AppMessage       func(peerID string, payload []byte)
	ConnectionClosed func(peerID string, code protocol.CloseCode)
	SetupFinished    func()
}

func (f DispatcherFuncs) OnAppMessage(peerID string, payload []byte) {
	if f.AppMessage != nil {
		f.AppMessage(peerID, payload)
	}
}

func (f DispatcherFuncs) OnConnectionClosed(peerID string, code protocol.CloseCode) {
	if f.ConnectionClosed != nil {
		f.ConnectionClosed(peerID, code)
	}
}

func (f DispatcherFuncs) OnSetupFinished() {
	if f.SetupFinished != nil {
		f.SetupFinished()
	}
}

type dispatcherRef struct {
	d Dispatcher
}
