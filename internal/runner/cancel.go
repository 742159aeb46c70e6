package runner

import (
	"context"
	"os"
	"sync"
	"time"

	"jenkinstrigger/internal/logger"
)

// remoteCancelTimeout bounds the one network call made on the way out
const remoteCancelTimeout = 30 * time.Second

// canceller owns the current cancel action for interrupt propagation. The
// runner swaps the action as the run advances (cancel queue item, then stop
// build); a single listener invokes whichever action is current and exits.
type canceller struct {
	mu     sync.Mutex
	target string
	action func(context.Context) error
	exit   func(int)
}

func newCanceller(exit func(int)) *canceller {
	return &canceller{exit: exit}
}

// Set replaces the current cancel action
func (c *canceller) Set(target string, action func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.action = action
}

// listen waits for one signal, then propagates the cancellation and exits.
// A forwarded cancellation is a deliberate stop, not a failure, so the exit
// code is zero even when the remote call fails.
func (c *canceller) listen(signals <-chan os.Signal) {
	go func() {
		if _, ok := <-signals; !ok {
			return
		}
		c.propagate()
		c.exit(0)
	}()
}

func (c *canceller) propagate() {
	c.mu.Lock()
	target, action := c.target, c.action
	c.mu.Unlock()

	if action == nil {
		return
	}

	logger.Info("Stopping " + target)
	ctx, cancel := context.WithTimeout(context.Background(), remoteCancelTimeout)
	defer cancel()
	if err := action(ctx); err != nil {
		logger.Error("Failed to propagate cancellation", "target", target, "error", err)
	}
}
