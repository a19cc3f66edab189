// Package runtime abstracts the container engine that actually runs function
// code. The pool and dispatch layers depend only on this interface; they
// never know whether containers are OS processes, Docker containers, or
// microVMs.
package runtime

import (
	"context"
	"errors"

	"github.com/oriys/warmpool/internal/container"
)

var (
	// ErrImageMissing is returned by Launch when the configured image (or,
	// for the local adapter, worker binary) cannot be found.
	ErrImageMissing = errors.New("runtime: image missing")
	// ErrStartTimeout is returned by Launch when the container process
	// could not be started.
	ErrStartTimeout = errors.New("runtime: start timeout")
	// ErrHealthProbeFailed is returned by Launch when the container was
	// started but did not answer its health check within the adapter's own
	// startup deadline.
	ErrHealthProbeFailed = errors.New("runtime: health probe failed")
	// ErrTransport is returned by Invoke when the container could not be
	// reached at all (as opposed to answering with an application error).
	ErrTransport = errors.New("runtime: transport failure")
)

// Response is the result of a single Invoke call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Adapter is the capability set the pool needs from a container runtime. An
// Adapter carries no scheduling state of its own and must be safe for
// concurrent use by many goroutines.
type Adapter interface {
	// Launch starts a new container for functionID and blocks until it is
	// health-probed and reachable, or returns an error.
	Launch(ctx context.Context, functionID, image string) (*container.Handle, error)

	// Invoke sends payload to the container and returns its response. A
	// non-nil error with errors.Is(err, ErrTransport) indicates the
	// container should be presumed dead.
	Invoke(ctx context.Context, h *container.Handle, payload []byte) (*Response, error)

	// Destroy stops and removes the container. It is idempotent and never
	// returns an error to the caller; failures are logged internally.
	Destroy(h *container.Handle)

	// ProbeHealth performs an out-of-band liveness check, used by the
	// janitor's supplemental health sweep.
	ProbeHealth(ctx context.Context, h *container.Handle) bool
}
