package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// newTelemetryMux serves the telemetry endpoints plus /healthz for pit tooling.
func newTelemetryMux(ts *TelemetryServer, path string) *http.ServeMux {
	mux := http.NewServeMux()
	ts.Register(mux, path)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

const httpShutdownTimeout = 3 * time.Second

// runHTTPServer serves handler on addr until ctx is canceled. A bind failure
// is returned before anything is served.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("telemetry listen %s: %w", addr, err)
	}
	logger.Info("telemetry server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	shutdownErr := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("telemetry server: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("telemetry server shutdown: %w", err)
	}
	return nil
}
