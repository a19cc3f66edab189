// Package httpapi exposes the scheduler's HTTP surface: invoke, strategy
// control, and stats. Built on net/http.ServeMux's Go 1.22 method+path-value
// routing, matching the teacher's dataplane handler style.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/oriys/warmpool/internal/dispatch"
	"github.com/oriys/warmpool/internal/pool"
	"github.com/oriys/warmpool/internal/registry"
	"github.com/oriys/warmpool/internal/runtime"
)

// Handler bundles the dependencies every route needs.
type Handler struct {
	Ctrl  *dispatch.Controller
	Reg   *registry.Registry
	Ready func() bool
}

// Mux builds the full routing table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /invoke/{function_id}", h.invoke)
	mux.HandleFunc("POST /set_strategy", h.setStrategy)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("POST /stats/reset", h.statsReset)
	mux.HandleFunc("GET /health", h.health)
	return mux
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {
	fnID := r.PathValue("function_id")
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := h.Ctrl.Dispatch(r.Context(), fnID, payload)
	if err != nil {
		status, retryAfter := classifyError(err)
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		writeError(w, status, err)
		return
	}

	if resp.StatusCode != 0 {
		w.WriteHeader(resp.StatusCode)
	}
	_, _ = w.Write(resp.Body)
}

// classifyError maps a dispatch-layer error to an HTTP status and an
// optional Retry-After hint, mirroring the teacher's errors.Is switch in
// its invoke handler.
func classifyError(err error) (status int, retryAfterSeconds int) {
	switch {
	case errors.Is(err, pool.ErrDraining):
		return http.StatusServiceUnavailable, 1
	case errors.Is(err, runtime.ErrTransport):
		return http.StatusBadGateway, 0
	case errors.Is(err, runtime.ErrStartTimeout), errors.Is(err, runtime.ErrHealthProbeFailed):
		return http.StatusBadGateway, 0
	default:
		return http.StatusBadGateway, 0
	}
}

type setStrategyRequest struct {
	Strategy string `json:"strategy"`
}

func (h *Handler) setStrategy(w http.ResponseWriter, r *http.Request) {
	var req setStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.Reg.SetStrategy(req.Strategy) {
		writeError(w, http.StatusBadRequest, errors.New("unknown strategy: "+req.Strategy))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	snap := h.Reg.Stats.Snapshot()
	perFunction := make(map[string]pool.Snapshot)
	for fnID, p := range h.Reg.Pools() {
		perFunction[fnID] = p.Stats()
	}

	out := map[string]any{
		"total_cold_starts":     snap.ColdStarts,
		"total_warm_starts":     snap.WarmStarts,
		"total_requests_queued": snap.RequestsQueued,
		"total_requests_failed": snap.RequestsFailed,
		"strategy":              h.Reg.StrategyName(),
		"per_function":          perFunction,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) statsReset(w http.ResponseWriter, r *http.Request) {
	h.Reg.ResetStats()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil && !h.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
