package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/oriys/warmpool/internal/container"
	"github.com/oriys/warmpool/internal/registry"
	"github.com/oriys/warmpool/internal/runtime"
)

// scriptedAdapter lets each test control exactly what Invoke returns without
// spawning any real process.
type scriptedAdapter struct {
	invokeErr  error
	invokeResp *runtime.Response
	destroyed  int
}

func (a *scriptedAdapter) Launch(ctx context.Context, functionID, image string) (*container.Handle, error) {
	return &container.Handle{ID: uuid.NewString(), FunctionID: functionID, Endpoint: "fake://" + functionID}, nil
}

func (a *scriptedAdapter) Invoke(ctx context.Context, h *container.Handle, payload []byte) (*runtime.Response, error) {
	if a.invokeErr != nil {
		return nil, a.invokeErr
	}
	return a.invokeResp, nil
}

func (a *scriptedAdapter) Destroy(h *container.Handle) { a.destroyed++ }

func (a *scriptedAdapter) ProbeHealth(ctx context.Context, h *container.Handle) bool { return true }

func TestDispatchRecordsPerFunctionAndGlobalStats(t *testing.T) {
	a := &scriptedAdapter{invokeResp: &runtime.Response{StatusCode: 200, Body: []byte("ok")}}
	reg := registry.New(a, "fake-image", 3, 1, "lru")
	ctrl := New(reg, a, nil)

	if _, err := ctrl.Dispatch(context.Background(), "fn-a", []byte("{}")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	global := reg.Stats.Snapshot()
	if global.ColdStarts != 1 {
		t.Fatalf("expected 1 global cold start, got %d", global.ColdStarts)
	}

	perFn := reg.PoolFor("fn-a").Stats()
	if perFn.ColdStarts != 1 {
		t.Fatalf("expected 1 per-function cold start, got %d", perFn.ColdStarts)
	}
}

func TestDispatchTransportFailureDestroysContainer(t *testing.T) {
	a := &scriptedAdapter{invokeErr: runtime.ErrTransport}
	reg := registry.New(a, "fake-image", 3, 1, "lru")
	ctrl := New(reg, a, nil)

	if _, err := ctrl.Dispatch(context.Background(), "fn-a", []byte("{}")); err == nil {
		t.Fatal("expected dispatch to surface the invoke error")
	}

	if a.destroyed != 1 {
		t.Fatalf("expected the dead container to be destroyed exactly once, got %d", a.destroyed)
	}

	global := reg.Stats.Snapshot()
	if global.RequestsFailed != 1 {
		t.Fatalf("expected 1 global request failure, got %d", global.RequestsFailed)
	}
	perFn := reg.PoolFor("fn-a").Stats()
	if perFn.RequestsFailed != 1 {
		t.Fatalf("expected 1 per-function request failure, got %d", perFn.RequestsFailed)
	}
}

func TestDispatchNonTransportInvokeErrorKeepsContainerAlive(t *testing.T) {
	appErr := errors.New("application-level failure, container still healthy")
	a := &scriptedAdapter{invokeErr: appErr}
	reg := registry.New(a, "fake-image", 3, 1, "lru")
	ctrl := New(reg, a, nil)

	if _, err := ctrl.Dispatch(context.Background(), "fn-a", []byte("{}")); err == nil {
		t.Fatal("expected dispatch to surface the invoke error")
	}

	if a.destroyed != 0 {
		t.Fatalf("expected a non-transport invoke error to leave the container alive, got %d destroys", a.destroyed)
	}

	p := reg.PoolFor("fn-a")
	if p.Stats().Idle != 1 {
		t.Fatalf("expected the container to be returned to idle, got idle=%d", p.Stats().Idle)
	}
}
