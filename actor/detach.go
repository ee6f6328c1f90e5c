package actor

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrTaskPanicked is returned to a waiting caller when its task panicked.
var ErrTaskPanicked = errors.New("lattice: actor task panicked")

// detachTimeout bounds how long a detached side effect may run.
const detachTimeout = 30 * time.Second

// Detach runs fn in its own goroutine with a bounded context, logging and
// discarding any error. This is the explicit spawn-and-forget primitive for
// side effects (notifications, analytics writes) whose failures must not
// reach the critical path. It is syntactically distinct from calls whose
// errors propagate: a Detach call site cannot observe the outcome.
func Detach(logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("detached task failed", "task", name, "error", err)
		}
	}()
}
