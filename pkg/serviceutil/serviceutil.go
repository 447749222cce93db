package serviceutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context that is canceled on Ctrl+C or SIGTERM, the
// returned cancel func stops listening for the signals.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal logs err along with attrs and exits with status 1.
func Fatal(message string, err error, attrs ...any) {
	slog.Error(message, append([]any{"err", err.Error()}, attrs...)...)
	os.Exit(1)
}
