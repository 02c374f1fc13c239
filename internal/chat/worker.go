package chat

import (
	"errors"
	"io"

	"github.com/omochice/linkchat/pkg/protocol"
)

// readLoop reads frames from c until the stream fails or teardown starts.
func (m *Manager) readLoop(c *Client) {
	defer m.wg.Done()
	defer close(c.readerDone)

	logger := m.logger.With().Str("peer_id", c.peerID).Str("conn_id", c.connID).Logger()
	buf := make([]byte, m.maxFrameSize)

	for {
		n, err := c.reader.Read(buf)
		if c.closing.Load() {
			logger.Debug().Msg("read worker stopped")
			return
		}

		if n > 0 {
			msg, derr := protocol.Decode(buf[:n])
			if derr != nil {
				logger.Warn().Err(derr).Int("size", n).Msg("malformed frame")
				m.teardown(c, protocol.CloseReadFailure, false)
				return
			}
			m.stats.framesIn.Add(1)
			m.handleFrame(c, msg)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("peer closed connection")
			} else {
				logger.Warn().Err(err).Msg("read failed")
			}
			m.teardown(c, protocol.CloseReadFailure, false)
			return
		}
	}
}

func (m *Manager) handleFrame(c *Client, msg protocol.Message) {
	switch msg.(type) {
	case protocol.Hello:
		if !c.offer(m.helloReplyFrame) {
			m.stats.dropped.Add(1)
			m.logger.Debug().Str("peer_id", c.peerID).Msg("hello reply dropped")
		}
		return
	case protocol.HelloReply:
		c.misses.Store(0)
		return
	}

	d := m.currentDispatcher()
	if d == nil {
		m.stats.dropped.Add(1)
		m.logger.Debug().
			Str("peer_id", c.peerID).
			Stringer("type", msg.Type()).
			Msg("no dispatcher attached, frame dropped")
		return
	}

	switch msg := msg.(type) {
	case protocol.AppMessage:
		d.OnAppMessage(c.peerID, msg.Payload)
	case protocol.ConnectionClosed:
		if h, ok := d.(RemoteCloseHandler); ok {
			h.OnRemoteClose(c.peerID, msg.Code)
			return
		}
		d.OnConnectionClosed(c.peerID, msg.Code)
	case protocol.SetupFinished:
		d.OnSetupFinished()
	}
}

// writeLoop writes queued frames to c in FIFO order until the shutdown
// sentinel arrives, a write fails or teardown gives up on the drain.
func (m *Manager) writeLoop(c *Client) {
	defer m.wg.Done()
	defer close(c.writerDone)

	logger := m.logger.With().Str("peer_id", c.peerID).Str("conn_id", c.connID).Logger()

	for {
		select {
		case frame := <-c.outgoing:
			if frame == nil {
				logger.Debug().Msg("write worker stopped")
				return
			}
			if _, err := c.writer.Write(frame); err != nil {
				if !c.closing.Load() {
					logger.Warn().Err(err).Msg("write failed")
				}
				m.teardown(c, protocol.CloseWriteFailure, true)
				return
			}
			m.stats.framesOut.Add(1)
		case <-c.done:
			logger.Debug().Msg("write worker stopped")
			return
		}
	}
}
