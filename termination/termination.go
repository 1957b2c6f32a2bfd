package termination

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var ErrTerminated = errors.New("terminated")

// Handle blocks until the process receives an interrupt or termination
// signal, waits delay to let in-flight work drain, then returns
// ErrTerminated. It returns nil if ctx is cancelled first.
func Handle(ctx context.Context, delay time.Duration) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		wait(ctx, delay)
		return ErrTerminated
	case <-ctx.Done():
		return nil
	}
}

func wait(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
