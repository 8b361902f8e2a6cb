package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the signals that trigger a graceful shutdown.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// NotifyShutdown returns a context that is cancelled on the first SIGINT or
// SIGTERM. Calling stop releases the signal registration; a second signal
// after that terminates the process with the default behavior.
func NotifyShutdown(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, ShutdownSignals...)
}
