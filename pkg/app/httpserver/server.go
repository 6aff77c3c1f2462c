package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 30 * time.Second

// ServeAndWait runs the custody engine's operational HTTP server (health,
// readiness, metrics) until ctx is canceled or the listener fails, then shuts
// it down within shutdownTimeout.
//
// It returns an error when the listener fails or the shutdown does not finish
// in time. A canceled ctx is a clean stop.
func ServeAndWait(ctx context.Context, logger *zap.Logger, srv *http.Server, shutdownTimeout time.Duration) error {
	if srv == nil {
		return fmt.Errorf("nil http server")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ops_http"), zap.String("address", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Ops endpoints listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		logger.Info("Stopping ops endpoints", zap.NamedError("cause", context.Cause(ctx)))
	case listenErr = <-errCh:
		if listenErr != nil {
			logger.Error("Ops endpoints failed", zap.Error(listenErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops endpoints did not drain",
			zap.Duration("shutdown_timeout", shutdownTimeout),
			zap.Error(err))
		return fmt.Errorf("ops http shutdown: %w", err)
	}

	if listenErr != nil {
		return fmt.Errorf("ops http server failed: %w", listenErr)
	}
	logger.Info("Ops endpoints stopped")
	return nil
}
