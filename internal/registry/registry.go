// Package registry maps function identifiers to Pools, creating them on
// demand, and owns the scheduler-wide reuse strategy and counters. Grounded
// on the teacher's registry-of-pools pattern, simplified from sync.Map to a
// plain map guarded by an RWMutex since a handful of function pools is not
// the read-heavy, rarely-written table sync.Map is meant for.
package registry

import (
	"strings"
	"sync"

	"github.com/oriys/warmpool/internal/pool"
	"github.com/oriys/warmpool/internal/runtime"
	"github.com/oriys/warmpool/internal/stats"
)

// Registry owns every function's Pool plus the process-wide stats and
// reuse strategy.
type Registry struct {
	adapter       runtime.Adapter
	image         string
	defaultCap    int
	launchRetries int

	strategy *pool.Strategy
	Stats    *stats.Global

	mu    sync.RWMutex
	pools map[string]*pool.Pool
}

func New(adapter runtime.Adapter, image string, defaultCap, launchRetries int, initialStrategy string) *Registry {
	return &Registry{
		adapter:       adapter,
		image:         image,
		defaultCap:    defaultCap,
		launchRetries: launchRetries,
		strategy:      pool.NewStrategy(parseStrategy(initialStrategy)),
		Stats:         &stats.Global{},
		pools:         make(map[string]*pool.Pool),
	}
}

func parseStrategy(s string) int32 {
	switch strings.ToLower(s) {
	case "mru":
		return pool.MRU
	default:
		return pool.LRU
	}
}

// PoolFor returns the Pool for functionID, creating it with the default
// concurrency cap if this is the first reference.
func (r *Registry) PoolFor(functionID string) *pool.Pool {
	r.mu.RLock()
	p, ok := r.pools[functionID]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[functionID]; ok {
		return p
	}
	p = pool.New(functionID, r.image, r.defaultCap, r.adapter, r.strategy, r.Stats, r.launchRetries)
	r.pools[functionID] = p
	return p
}

// Preconfigure installs a Pool with a non-default concurrency cap, used at
// startup for the preconfigured_pools config map. It has no effect if a
// pool already exists for functionID.
func (r *Registry) Preconfigure(functionID string, cap int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[functionID]; ok {
		return
	}
	r.pools[functionID] = pool.New(functionID, r.image, cap, r.adapter, r.strategy, r.Stats, r.launchRetries)
}

// SetStrategy swaps the active reuse strategy for every pool's next pick.
func (r *Registry) SetStrategy(s string) bool {
	switch strings.ToLower(s) {
	case "lru", "lcs":
		r.strategy.Set(pool.LRU)
		return true
	case "mru":
		r.strategy.Set(pool.MRU)
		return true
	default:
		return false
	}
}

func (r *Registry) StrategyName() string {
	if r.strategy.Get() == pool.MRU {
		return "mru"
	}
	return "lru"
}

// Pools returns a snapshot of the current function->Pool mapping, safe to
// range over without holding the registry lock.
func (r *Registry) Pools() map[string]*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*pool.Pool, len(r.pools))
	for k, v := range r.pools {
		out[k] = v
	}
	return out
}

// ResetStats zeroes every counter, global and per-function alike.
func (r *Registry) ResetStats() {
	r.Stats.Reset()
	for _, p := range r.Pools() {
		p.Counters.Reset()
	}
}

// Drain stops accepting new work across every pool, used during graceful
// shutdown.
func (r *Registry) Drain() {
	for _, p := range r.Pools() {
		p.Drain()
	}
}
