package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AKMHZJ/localserver/pkg/logger"
)

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and returns a
// cancellable context. The returned context is cancelled when either signal
// arrives; the reactor observes cancellation between polls.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	// writes to half-closed sockets raise SIGPIPE; ignore so the reactor
	// sees EPIPE from the write instead
	signal.Ignore(syscall.SIGPIPE)

	return ctx, cancel
}
