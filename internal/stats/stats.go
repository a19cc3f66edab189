// Package stats holds the scheduler's monotonic counters and renders a JSON
// snapshot. This is deliberately the lightweight half of the teacher's two
// coexisting metric stores; there is no Prometheus registry here (see
// DESIGN.md).
package stats

import "sync/atomic"

// Counters is the four-counter set SPEC_FULL.md tracks at both
// process-wide and per-function granularity. All fields are independent
// atomics; a snapshot may interleave near-simultaneous increments by at
// most one event, which is an acceptable tradeoff for a JSON observability
// surface.
type Counters struct {
	ColdStarts     atomic.Int64
	WarmStarts     atomic.Int64
	RequestsQueued atomic.Int64
	RequestsFailed atomic.Int64
}

func (c *Counters) Reset() {
	c.ColdStarts.Store(0)
	c.WarmStarts.Store(0)
	c.RequestsQueued.Store(0)
	c.RequestsFailed.Store(0)
}

// Snapshot is the read-only view of a Counters used for JSON rendering.
type Snapshot struct {
	ColdStarts     int64 `json:"cold_starts"`
	WarmStarts     int64 `json:"warm_starts"`
	RequestsQueued int64 `json:"requests_queued"`
	RequestsFailed int64 `json:"requests_failed"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ColdStarts:     c.ColdStarts.Load(),
		WarmStarts:     c.WarmStarts.Load(),
		RequestsQueued: c.RequestsQueued.Load(),
		RequestsFailed: c.RequestsFailed.Load(),
	}
}

// Global is the process-wide counter set; PerFunction is the identical
// shape tracked by each Pool. They're kept as distinct names (rather than
// using Counters directly everywhere) so call sites stay self-documenting
// about which granularity they're touching.
type Global = Counters
type PerFunction = Counters
