package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/observe"
)

// StatusHandler returns the status server routes: /healthz, /readyz and,
// with telemetry, /metrics.
func (a *App) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(
		health.Speech(a.queue),
		health.Apps(a.index),
	).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.MetricsHandler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// serveStatus runs the status server until ctx is done. A listen failure
// is logged and does not stop the assistant.
func (a *App) serveStatus(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		slog.Warn("status server disabled", "addr", a.cfg.Server.ListenAddr, "err", err)
		return nil
	}
	srv := &http.Server{
		Handler:           a.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("status server shutdown", "err", err)
	}
	return nil
}
