package chat

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v2"
)

// Hub is the registry of live connection records keyed by peer identifier.
// Lookups and iteration are safe while other goroutines add and remove.
type Hub struct {
	clients *xsync.MapOf[string, *Client]
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: xsync.NewMapOf[*Client](),
	}
}

// Register stores c under its peer id and returns the record it replaced.
func (h *Hub) Register(c *Client) (*Client, bool) {
	old, loaded := h.clients.LoadAndStore(c.peerID, c)
	if !loaded {
		return nil, false
	}
	return old, true
}

// Unregister removes c, but only if it is still the record stored under its
// peer id. A connection that was replaced leaves its successor in place.
func (h *Hub) Unregister(c *Client) bool {
	removed := false
	h.clients.Compute(c.peerID, func(old *Client, loaded bool) (*Client, bool) {
		if !loaded {
			return nil, true
		}
		if old != c {
			return old, false
		}
		removed = true
		return nil, true
	})
	return removed
}

// Lookup returns the record registered under peerID.
func (h *Hub) Lookup(peerID string) (*Client, bool) {
	return h.clients.Load(peerID)
}

// Snapshot returns the records registered at the time of the call.
func (h *Hub) Snapshot() []*Client {
	out := make([]*Client, 0, h.clients.Size())
	h.clients.Range(func(_ string, c *Client) bool {
		out = append(out, c)
		return true
	})
	return out
}

// PeerIDs returns the registered peer ids in sorted order.
func (h *Hub) PeerIDs() []string {
	ids := make([]string, 0, h.clients.Size())
	h.clients.Range(func(id string, _ *Client) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	return h.clients.Size()
}
