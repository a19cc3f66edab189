package httpapi

import (
	"context"
	"net/http"
	"time"
)

// NewServer builds an *http.Server bound to addr serving h's routes.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown gracefully stops srv, bounded by ctx.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
