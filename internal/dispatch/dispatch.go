// Package dispatch is the invocation controller: glue between an inbound
// request and the pool/runtime layers. It classifies acquire outcomes into
// the scheduler's stats, guarantees release on every exit path, and emits
// one batched request-log entry per dispatch.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/warmpool/internal/pool"
	"github.com/oriys/warmpool/internal/registry"
	"github.com/oriys/warmpool/internal/reqlog"
	"github.com/oriys/warmpool/internal/runtime"
)

// Controller wires a Registry, a runtime Adapter, and the request-log sink
// together for each invocation.
type Controller struct {
	Registry *registry.Registry
	Adapter  runtime.Adapter
	Log      *reqlog.Batcher
}

func New(reg *registry.Registry, adapter runtime.Adapter, log *reqlog.Batcher) *Controller {
	return &Controller{Registry: reg, Adapter: adapter, Log: log}
}

// Dispatch acquires a container for functionID, invokes it with payload,
// releases it, and returns the runtime response.
func (c *Controller) Dispatch(ctx context.Context, functionID string, payload []byte) (*runtime.Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	p := c.Registry.PoolFor(functionID)

	handle, kind, err := p.Acquire(ctx)
	if err != nil {
		c.logEntry(requestID, functionID, false, start, 0, err)
		if errors.Is(err, pool.ErrDraining) {
			return nil, err
		}
		c.Registry.Stats.RequestsFailed.Add(1)
		p.Counters.RequestsFailed.Add(1)
		return nil, err
	}

	if kind == pool.Warm {
		c.Registry.Stats.WarmStarts.Add(1)
		p.Counters.WarmStarts.Add(1)
	} else {
		c.Registry.Stats.ColdStarts.Add(1)
		p.Counters.ColdStarts.Add(1)
	}

	resp, invokeErr := c.Adapter.Invoke(ctx, handle, payload)
	if invokeErr != nil {
		// Only a transport-level failure means the container is presumed
		// dead; an adapter is free to return other invoke errors (per
		// runtime.Adapter's documented contract) without the container
		// having crashed.
		outcome := pool.OutcomeOK
		if errors.Is(invokeErr, runtime.ErrTransport) {
			outcome = pool.OutcomeTransportFailed
		}
		p.Release(handle, outcome)
		c.Registry.Stats.RequestsFailed.Add(1)
		p.Counters.RequestsFailed.Add(1)
		c.logEntry(requestID, functionID, kind == pool.Warm, start, 0, invokeErr)
		return nil, invokeErr
	}

	p.Release(handle, pool.OutcomeOK)
	c.logEntry(requestID, functionID, kind == pool.Warm, start, resp.StatusCode, nil)
	return resp, nil
}

func (c *Controller) logEntry(requestID, functionID string, warm bool, start time.Time, status int, err error) {
	if c.Log == nil {
		return
	}
	e := reqlog.Entry{
		Time:       time.Now(),
		RequestID:  requestID,
		FunctionID: functionID,
		Warm:       warm,
		DurationMS: time.Since(start).Milliseconds(),
		Status:     status,
	}
	if err != nil {
		e.Err = err.Error()
	}
	c.Log.Log(e)
}
