// Package janitor runs the background reclamation loop: on every tick it
// snapshots the registry and sweeps each pool's idle containers past the
// warm-time window, plus a slower supplemental health-check sweep.
package janitor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/warmpool/internal/obslog"
	"github.com/oriys/warmpool/internal/registry"
)

// Janitor periodically sweeps every pool in reg.
type Janitor struct {
	reg                 *registry.Registry
	warmTime            time.Duration
	sleep               time.Duration
	healthCheckInterval time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(reg *registry.Registry, warmTime, sleep, healthCheckInterval time.Duration) *Janitor {
	return &Janitor{
		reg:                 reg,
		warmTime:            warmTime,
		sleep:               sleep,
		healthCheckInterval: healthCheckInterval,
		stop:                make(chan struct{}),
		done:                make(chan struct{}),
	}
}

// Run blocks, sweeping on every tick, until Stop is called.
func (j *Janitor) Run(ctx context.Context) {
	defer close(j.done)

	sweepTicker := time.NewTicker(j.sleep)
	defer sweepTicker.Stop()

	healthTicker := time.NewTicker(j.healthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case now := <-sweepTicker.C:
			j.sweepAll(ctx, now)
		case <-healthTicker.C:
			j.healthSweepAll(ctx)
		}
	}
}

// sweepAll fans out Sweep calls across every pool concurrently, one
// goroutine per pool with no concurrency limit; sweeps share no state so
// there is nothing to serialize on beyond the adapter's own concurrency.
func (j *Janitor) sweepAll(ctx context.Context, now time.Time) {
	pools := j.reg.Pools()
	g, _ := errgroup.WithContext(ctx)
	for fnID, p := range pools {
		fnID, p := fnID, p
		g.Go(func() error {
			n := p.Sweep(now, j.warmTime)
			if n > 0 {
				obslog.Op().Debug("janitor reclaimed idle containers", "function_id", fnID, "count", n)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (j *Janitor) healthSweepAll(ctx context.Context) {
	pools := j.reg.Pools()
	g, gctx := errgroup.WithContext(ctx)
	for fnID, p := range pools {
		fnID, p := fnID, p
		g.Go(func() error {
			n := p.HealthSweep(gctx)
			if n > 0 {
				obslog.Op().Info("janitor evicted unhealthy containers", "function_id", fnID, "count", n)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Stop signals Run to return and waits for it to do so.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
