package local

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/warmpool/internal/container"
	"github.com/oriys/warmpool/internal/runtime"
)

func TestAllocatePortWrapsAroundAtMax(t *testing.T) {
	a := New(Config{PortRangeMin: 5000, PortRangeMax: 5002, StartTimeout: time.Second, InvokeTimeout: time.Second})

	first := a.allocatePort()
	second := a.allocatePort()
	if first == second {
		t.Fatalf("expected distinct ports before wraparound, got %d twice", first)
	}
	if first < 5001 || first > 5002 || second < 5001 || second > 5002 {
		t.Fatalf("expected ports within (min, max], got %d and %d", first, second)
	}

	// Exhaust the remaining slot in the range; the next allocation must wrap
	// back around to PortRangeMin+1 rather than exceed PortRangeMax.
	third := a.allocatePort()
	if third > 5002 {
		t.Fatalf("expected wraparound to stay within range, got %d", third)
	}
	if third != first {
		t.Fatalf("expected wraparound to repeat the first allocated port %d, got %d", first, third)
	}
}

func TestAwaitHealthyBecomesReadyAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(Config{PortRangeMin: 5000, PortRangeMax: 5010, StartTimeout: 2 * time.Second, InvokeTimeout: time.Second})
	h := &container.Handle{ID: "c1", FunctionID: "fn", Endpoint: srv.URL}

	if err := a.awaitHealthy(context.Background(), h); err != nil {
		t.Fatalf("expected awaitHealthy to succeed once the probe returns 200, got %v", err)
	}
	if attempts.Load() < 3 {
		t.Fatalf("expected at least 3 probe attempts, got %d", attempts.Load())
	}
}

func TestAwaitHealthyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(Config{PortRangeMin: 5000, PortRangeMax: 5010, StartTimeout: 100 * time.Millisecond, InvokeTimeout: time.Second})
	h := &container.Handle{ID: "c1", FunctionID: "fn", Endpoint: srv.URL}

	err := a.awaitHealthy(context.Background(), h)
	if err != runtime.ErrHealthProbeFailed {
		t.Fatalf("expected ErrHealthProbeFailed, got %v", err)
	}
}

func TestInvokeReturnsResponseOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	a := New(DefaultConfig())
	h := &container.Handle{ID: "c1", FunctionID: "fn", Endpoint: srv.URL}

	resp, err := a.Invoke(context.Background(), h, []byte("{}"))
	if err != nil {
		t.Fatalf("expected a non-2xx response, not a transport error, got %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "boom" {
		t.Fatalf("expected body %q, got %q", "boom", resp.Body)
	}
}

func TestInvokeReturnsTransportErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	addr := srv.URL
	srv.Close() // nothing is listening anymore

	a := New(DefaultConfig())
	h := &container.Handle{ID: "c1", FunctionID: "fn", Endpoint: addr}

	_, err := a.Invoke(context.Background(), h, []byte("{}"))
	if err == nil {
		t.Fatal("expected a transport error against a closed server")
	}
	if !errors.Is(err, runtime.ErrTransport) {
		t.Fatalf("expected error to wrap runtime.ErrTransport, got %v", err)
	}
}
