package pool

import (
	"context"
	"time"

	"github.com/oriys/warmpool/internal/container"
	"github.com/oriys/warmpool/internal/obslog"
	"github.com/oriys/warmpool/internal/stats"
)

// Sweep reclaims every idle container whose last use exceeds warmTime.
// Because idle is kept in ascending LastUsedAt order, the scan can stop at
// the first container still within the warm window.
func (p *Pool) Sweep(now time.Time, warmTime time.Duration) int {
	p.mu.Lock()
	var reclaim []*container.Container
	cut := 0
	for ; cut < len(p.idle); cut++ {
		c := p.idle[cut]
		if !c.IsIdleEligible(now, warmTime) {
			break
		}
		c.State = container.Reclaiming
		reclaim = append(reclaim, c)
	}
	p.idle = p.idle[cut:]
	p.mu.Unlock()

	for _, c := range reclaim {
		p.adapter.Destroy(&c.Handle)
	}

	if len(reclaim) > 0 {
		p.mu.Lock()
		for _, c := range reclaim {
			c.State = container.Destroyed
		}
		p.mu.Unlock()
	}
	return len(reclaim)
}

// HealthSweep probes every currently idle container and evicts any that
// fail the probe. A supplemental safety net alongside the warm-time sweep.
func (p *Pool) HealthSweep(ctx context.Context) int {
	p.mu.Lock()
	candidates := make([]*container.Container, len(p.idle))
	copy(candidates, p.idle)
	p.mu.Unlock()

	var dead []*container.Container
	for _, c := range candidates {
		if !p.adapter.ProbeHealth(ctx, &c.Handle) {
			dead = append(dead, c)
		}
	}
	if len(dead) == 0 {
		return 0
	}

	p.mu.Lock()
	deadSet := make(map[string]bool, len(dead))
	for _, c := range dead {
		deadSet[c.ID] = true
	}
	kept := p.idle[:0:0]
	var evicted []*container.Container
	for _, c := range p.idle {
		if deadSet[c.ID] {
			c.State = container.Destroyed
			evicted = append(evicted, c)
			continue
		}
		kept = append(kept, c)
	}
	p.idle = kept
	p.mu.Unlock()

	// Only containers still idle when the lock was retaken are evicted; one
	// acquired while its probe was in flight is left to its caller.
	for _, c := range evicted {
		p.adapter.Destroy(&c.Handle)
		obslog.Op().Info("evicted unhealthy idle container", "function_id", p.FunctionID, "container_id", c.ID)
	}
	return len(evicted)
}

// Drain stops accepting new acquires, destroys all idle containers, and
// fails every queued waiter with ErrDraining. In-flight (busy) invocations
// are left to finish on their own.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.closing = true
	idle := p.idle
	p.idle = nil
	waiters := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w.resultCh <- acquireResult{err: ErrDraining}
	}
	for _, c := range idle {
		c.State = container.Destroyed
		p.adapter.Destroy(&c.Handle)
	}
}

// Snapshot is a point-in-time view of pool occupancy plus this function's
// own counter breakdown, for the /stats surface's per_function entries.
type Snapshot struct {
	stats.Snapshot
	Idle           int `json:"idle"`
	Busy           int `json:"busy"`
	Starting       int `json:"starting"`
	QueueDepth     int `json:"queue_depth"`
	ConcurrencyCap int `json:"concurrency_cap"`
}

func (p *Pool) Stats() Snapshot {
	p.mu.Lock()
	snap := Snapshot{
		Idle:           len(p.idle),
		Busy:           len(p.busy),
		Starting:       p.starting,
		QueueDepth:     len(p.queue),
		ConcurrencyCap: p.Cap,
	}
	p.mu.Unlock()
	snap.Snapshot = p.Counters.Snapshot()
	return snap
}
