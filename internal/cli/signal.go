/*
PURPOSE:
  Turns Ctrl-C / SIGTERM into context cancellation for the search.

REQUIREMENTS:
  User-specified:
  - Ctrl-C must not throw away what was already measured.

  Implementation-discovered:
  - A trial can run for minutes. The first signal lets it finish; a second
    one must kill the process, so the handler is released after the first.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/fio-tuner/main.go

RELATED FILES:
  - internal/engine/search.go (cancellation between trials)
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/fio-tuner/internal/output"
)

// SignalContext is canceled by the first SIGINT or SIGTERM. After that the
// default signal behavior is restored.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		if parent.Err() == nil {
			output.Logger.Warn("Interrupted: finishing the current trial. Press Ctrl-C again to abort immediately.")
		}
	}()
	return ctx, stop
}
