package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"keymeter/internal/logging"
)

// notifyContext is signal.NotifyContext that also logs which signal ended
// the capture.
func notifyContext(parent context.Context, logger *logging.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping capture", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
