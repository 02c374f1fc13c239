package chat

import (
	"context"
	"time"

	"github.com/omochice/linkchat/pkg/protocol"
)

func (m *Manager) runHeartbeat(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug().Msg("heartbeat stopped")
			return
		case <-ticker.C:
			m.Probe()
		}
	}
}

// Probe runs one heartbeat round. Every peer that has already missed the
// maximum number of probes is removed with SERVER_NOT_RESPONDING; every other
// peer gets a HELLO and its miss counter is incremented. A HELLO_REPLY from
// the peer resets the counter.
func (m *Manager) Probe() {
	for _, c := range m.hub.Snapshot() {
		if c.closing.Load() {
			continue
		}
		if c.misses.Load() >= m.maxMisses {
			m.logger.Warn().
				Str("peer_id", c.peerID).
				Int32("misses", c.misses.Load()).
				Msg("peer not responding")
			m.teardown(c, protocol.CloseServerNotResponding, false)
			continue
		}
		n, ok := c.miss()
		if !ok {
			continue
		}
		if n > 1 {
			m.logger.Debug().Str("peer_id", c.peerID).Int32("attempt", n).Msg("probing peer")
		}
		if !c.offer(m.helloFrame) {
			m.stats.dropped.Add(1)
			m.logger.Debug().Str("peer_id", c.peerID).Msg("probe dropped")
		}
	}
}
