// Package local implements runtime.Adapter by spawning the configured image
// as an OS subprocess that speaks a tiny JSON-over-HTTP protocol ("/health",
// "/invoke"). It exists so the whole scheduler is exercisable without a real
// container engine, in the same spirit as the teacher's Docker backend
// spawning one OS process per VM bound to an allocated port.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/warmpool/internal/container"
	"github.com/oriys/warmpool/internal/obslog"
	"github.com/oriys/warmpool/internal/runtime"
)

// Config controls how the local adapter spawns and reaches worker processes.
type Config struct {
	// PortRangeMin/Max bound the ports allocated to spawned workers.
	PortRangeMin int
	PortRangeMax int
	// StartTimeout bounds how long Launch waits for the health probe to
	// succeed before giving up.
	StartTimeout time.Duration
	// InvokeTimeout bounds a single Invoke call.
	InvokeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PortRangeMin:  20000,
		PortRangeMax:  29000,
		StartTimeout:  5 * time.Second,
		InvokeTimeout: 10 * time.Second,
	}
}

// Adapter is a runtime.Adapter backed by local OS processes.
type Adapter struct {
	cfg Config

	nextPort atomic.Int32

	mu        sync.Mutex
	processes map[string]*os.Process // keyed by container id

	client *http.Client
}

func New(cfg Config) *Adapter {
	a := &Adapter{
		cfg:       cfg,
		processes: make(map[string]*os.Process),
		client:    &http.Client{Timeout: cfg.InvokeTimeout},
	}
	a.nextPort.Store(int32(cfg.PortRangeMin))
	return a
}

func (a *Adapter) allocatePort() int {
	for {
		p := a.nextPort.Add(1)
		if int(p) > a.cfg.PortRangeMax {
			a.nextPort.Store(int32(a.cfg.PortRangeMin))
			continue
		}
		return int(p)
	}
}

// Launch starts image as a subprocess listening on an allocated local port
// and waits for it to answer /health.
func (a *Adapter) Launch(ctx context.Context, functionID, image string) (*container.Handle, error) {
	if _, err := os.Stat(image); err != nil {
		return nil, fmt.Errorf("%w: %s", runtime.ErrImageMissing, image)
	}

	port := a.allocatePort()
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	cmd := exec.Command(image)
	cmd.Env = append(os.Environ(), "WARMPOOL_LISTEN_ADDR="+addr, "WARMPOOL_FUNCTION_ID="+functionID)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", runtime.ErrStartTimeout, err)
	}

	id := uuid.NewString()
	a.mu.Lock()
	a.processes[id] = cmd.Process
	a.mu.Unlock()

	h := &container.Handle{ID: id, FunctionID: functionID, Endpoint: "http://" + addr}

	if err := a.awaitHealthy(ctx, h); err != nil {
		a.Destroy(h)
		return nil, err
	}
	return h, nil
}

// awaitHealthy polls ProbeHealth until it succeeds, the context is
// cancelled, or StartTimeout elapses. Split out of Launch so the
// retry-until-ready loop is testable against a fake endpoint without
// spawning a real subprocess.
func (a *Adapter) awaitHealthy(ctx context.Context, h *container.Handle) error {
	deadline := time.Now().Add(a.cfg.StartTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if a.ProbeHealth(ctx, h) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return runtime.ErrHealthProbeFailed
}

func (a *Adapter) Invoke(ctx context.Context, h *container.Handle, payload []byte) (*runtime.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint+"/invoke", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runtime.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runtime.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runtime.ErrTransport, err)
	}
	return &runtime.Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (a *Adapter) ProbeHealth(ctx context.Context, h *container.Handle) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Destroy kills the subprocess backing h. Best-effort and idempotent.
func (a *Adapter) Destroy(h *container.Handle) {
	a.mu.Lock()
	proc, ok := a.processes[h.ID]
	if ok {
		delete(a.processes, h.ID)
	}
	a.mu.Unlock()
	if !ok || proc == nil {
		return
	}
	if err := proc.Kill(); err != nil {
		obslog.Op().Debug("local runtime: kill failed", "container_id", h.ID, "err", err)
	}
	_, _ = proc.Wait()
}
