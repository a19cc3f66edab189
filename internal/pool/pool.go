// Package pool implements the per-function warm container pool: the
// admission/queueing state machine that decides, for every acquire, whether
// to reuse an idle container, launch a new one, or queue the caller behind
// the concurrency cap. This is the hard core of the scheduler; everything
// else in this repo is plumbing around it.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/warmpool/internal/container"
	"github.com/oriys/warmpool/internal/obslog"
	"github.com/oriys/warmpool/internal/runtime"
	"github.com/oriys/warmpool/internal/stats"
)

var (
	// ErrDraining is returned by Acquire once the pool has begun shutdown.
	ErrDraining = errors.New("pool: draining")
	// ErrLaunchFailed wraps the adapter error from a failed Launch after
	// retries are exhausted.
	ErrLaunchFailed = errors.New("pool: launch failed")
)

// Strategy selects which idle container Acquire reuses. It is a plain
// atomic wrapper so the Registry can flip it at runtime and every Pool
// observes the new value on its very next pick.
type Strategy struct {
	v atomic.Int32
}

const (
	LRU int32 = iota // reuse the oldest idle container
	MRU               // reuse the newest idle container
)

func NewStrategy(initial int32) *Strategy {
	s := &Strategy{}
	s.v.Store(initial)
	return s
}

func (s *Strategy) Get() int32    { return s.v.Load() }
func (s *Strategy) Set(v int32)   { s.v.Store(v) }

// Outcome classifies how a dispatch's invocation ended, which Release uses
// to decide whether the container is still healthy.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransportFailed
)

// ReuseKind tells the caller whether Acquire served a warm or cold
// container, for stats classification.
type ReuseKind int

const (
	Warm ReuseKind = iota
	Cold
)

type waiter struct {
	resultCh chan acquireResult
}

type acquireResult struct {
	c    *container.Container
	kind ReuseKind
	err  error
}

// Pool is the per-function scheduling unit.
type Pool struct {
	FunctionID string
	Image      string
	Cap        int

	adapter       runtime.Adapter
	strategy      *Strategy
	stats         *stats.Global
	launchRetries int

	// Counters is this function's own breakdown, mirroring the process-wide
	// totals in Registry.Stats. dispatch.Controller bumps ColdStarts/
	// WarmStarts/RequestsFailed here alongside the global counters; Acquire
	// bumps RequestsQueued directly since only the Pool itself observes a
	// caller entering the queue.
	Counters stats.PerFunction

	mu       sync.Mutex
	idle     []*container.Container // ascending LastUsedAt; head=oldest, tail=newest
	busy     map[string]*container.Container
	starting int
	queue    []*waiter
	closing  bool
}

func New(functionID, image string, cap int, adapter runtime.Adapter, strategy *Strategy, st *stats.Global, launchRetries int) *Pool {
	return &Pool{
		FunctionID:    functionID,
		Image:         image,
		Cap:           cap,
		adapter:       adapter,
		strategy:      strategy,
		stats:         st,
		launchRetries: launchRetries,
		busy:          make(map[string]*container.Container),
	}
}

// occupiedLocked counts every container that consumes a capacity slot:
// idle + busy + in-flight starts. Must be called with mu held.
func (p *Pool) occupiedLocked() int {
	return len(p.idle) + len(p.busy) + p.starting
}

// takeIdleLocked removes and returns one container from idle according to
// the active strategy. Caller must hold mu and have checked len(idle) > 0.
func (p *Pool) takeIdleLocked() *container.Container {
	var c *container.Container
	if p.strategy.Get() == MRU {
		last := len(p.idle) - 1
		c = p.idle[last]
		p.idle = p.idle[:last]
	} else {
		c = p.idle[0]
		p.idle = p.idle[1:]
	}
	return c
}

// Acquire reserves a container for one invocation: a warm reuse, a fresh
// launch, or a queued wait behind the concurrency cap.
func (p *Pool) Acquire(ctx context.Context) (*container.Handle, ReuseKind, error) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil, Cold, ErrDraining
	}

	if len(p.idle) > 0 {
		c := p.takeIdleLocked()
		c.State = container.Busy
		p.busy[c.ID] = c
		p.mu.Unlock()
		return &c.Handle, Warm, nil
	}

	if p.occupiedLocked() < p.Cap {
		p.starting++
		p.mu.Unlock()

		c, err := p.launchWithRetry(ctx)

		p.mu.Lock()
		p.starting--
		if err != nil {
			p.dispatchQueueLocked()
			p.mu.Unlock()
			return nil, Cold, err
		}
		p.busy[c.ID] = c
		p.mu.Unlock()
		return &c.Handle, Cold, nil
	}

	w := &waiter{resultCh: make(chan acquireResult, 1)}
	p.queue = append(p.queue, w)
	p.mu.Unlock()
	p.stats.RequestsQueued.Add(1)
	p.Counters.RequestsQueued.Add(1)

	select {
	case res := <-w.resultCh:
		if res.err != nil {
			return nil, Cold, res.err
		}
		return &res.c.Handle, res.kind, nil
	case <-ctx.Done():
		return p.handleWaiterCancel(w, ctx.Err())
	}
}

// launchWithRetry calls the adapter's Launch, retrying up to launchRetries
// additional times on failure before giving up.
func (p *Pool) launchWithRetry(ctx context.Context) (*container.Container, error) {
	var lastErr error
	for attempt := 0; attempt <= p.launchRetries; attempt++ {
		h, err := p.adapter.Launch(ctx, p.FunctionID, p.Image)
		if err == nil {
			return &container.Container{Handle: *h, State: container.Busy, LastUsedAt: time.Now()}, nil
		}
		lastErr = err
		obslog.Op().Warn("launch failed", "function_id", p.FunctionID, "attempt", attempt, "err", err)
	}
	return nil, errors.Join(ErrLaunchFailed, lastErr)
}

// Release returns handle after an invocation completes. A transport-level
// failure destroys the container instead of returning it to idle; otherwise
// it is either handed directly to a queued waiter or returned to idle.
func (p *Pool) Release(h *container.Handle, outcome Outcome) {
	p.mu.Lock()
	c, ok := p.busy[h.ID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.busy, h.ID)

	if outcome == OutcomeTransportFailed {
		c.State = container.Destroyed
		p.dispatchQueueLocked()
		p.mu.Unlock()
		p.adapter.Destroy(h)
		return
	}

	if len(p.queue) > 0 {
		w := p.queue[0]
		p.queue = p.queue[1:]
		c.State = container.Busy
		p.busy[c.ID] = c
		p.mu.Unlock()
		w.resultCh <- acquireResult{c: c, kind: Warm}
		return
	}

	c.State = container.Idle
	c.LastUsedAt = time.Now()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// dispatchQueueLocked is called right after capacity may have freed up (a
// launch failure returning its reserved slot, or a container dying) to let
// one queued waiter attempt a fresh launch on its own behalf. Must be
// called with mu held; the launch runs in a new goroutine, which takes mu
// itself once the launch returns. A waiter served this way gets its
// container as Cold.
func (p *Pool) dispatchQueueLocked() {
	if len(p.queue) == 0 || p.closing {
		return
	}
	if p.occupiedLocked() >= p.Cap {
		return
	}
	w := p.queue[0]
	p.queue = p.queue[1:]
	p.starting++

	go func() {
		c, err := p.launchWithRetry(context.Background())
		p.mu.Lock()
		p.starting--
		if err != nil {
			p.dispatchQueueLocked()
			p.mu.Unlock()
			w.resultCh <- acquireResult{err: err}
			return
		}
		p.busy[c.ID] = c
		p.mu.Unlock()
		w.resultCh <- acquireResult{c: c, kind: Cold}
	}()
}

// handleWaiterCancel removes w from the queue if it hasn't been served yet;
// if a handoff already raced ahead of the cancellation, the container it
// was given is released back rather than leaked.
func (p *Pool) handleWaiterCancel(w *waiter, cause error) (*container.Handle, ReuseKind, error) {
	p.mu.Lock()
	for i, q := range p.queue {
		if q == w {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.mu.Unlock()
			return nil, Cold, cause
		}
	}
	p.mu.Unlock()

	res := <-w.resultCh
	if res.err == nil {
		p.Release(&res.c.Handle, OutcomeOK)
	}
	return nil, Cold, cause
}
