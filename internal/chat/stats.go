package chat

import "sync/atomic"

// Stats is a snapshot of the Manager's cumulative counters.
type Stats struct {
	Opened        int64 // connections registered
	Closed        int64 // connections torn down
	FramesIn      int64 // frames decoded by read workers
	FramesOut     int64 // frames written by write workers
	FramesDropped int64 // frames lost to a full queue, an unknown peer or a missing dispatcher
}

type counters struct {
	opened    atomic.Int64
	closed    atomic.Int64
	framesIn  atomic.Int64
	framesOut atomic.Int64
	dropped   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Opened:        c.opened.Load(),
		Closed:        c.closed.Load(),
		FramesIn:      c.framesIn.Load(),
		FramesOut:     c.framesOut.Load(),
		FramesDropped: c.dropped.Load(),
	}
}
