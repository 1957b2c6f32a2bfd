package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hl8/datalayer/o11y"
)

// ErrShouldBackoff tells the loop the work func found nothing to do, so the
// next call should wait.
var ErrShouldBackoff = errors.New("should back off")

type Config struct {
	// Name labels the loop's spans and metrics.
	Name string
	// NoWorkBackOff controls the waits between idle cycles. Defaults to an
	// exponential backoff from 50ms up to 5s.
	NoWorkBackOff backoff.BackOff
	// MaxWorkTime bounds the context each WorkFunc call runs with.
	MaxWorkTime time.Duration
	// WorkFunc does one cycle of work. Return ErrShouldBackoff to wait
	// before the next cycle.
	WorkFunc func(ctx context.Context) error

	waiter func(ctx context.Context, delay time.Duration)
}

// Run calls cfg.WorkFunc in a loop until ctx is cancelled. Each cycle gets
// its own span and deadline. A cycle that did work resets the backoff, an
// idle cycle waits for the backoff's next interval.
func Run(ctx context.Context, cfg Config) {
	cfg = withDefaults(cfg)
	cfg.NoWorkBackOff.Reset()
	provider := o11y.FromContext(ctx)

	for ctx.Err() == nil {
		delay := doWork(provider, cfg)
		if delay < 0 {
			cfg.NoWorkBackOff.Reset()
			continue
		}
		cfg.waiter(ctx, delay)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.waiter == nil {
		cfg.waiter = wait
	}
	if cfg.NoWorkBackOff == nil {
		b := &backoff.ExponentialBackOff{
			InitialInterval: time.Millisecond * 50,
			Multiplier:      2,
			MaxInterval:     time.Second * 5,
			MaxElapsedTime:  0,
			Clock:           backoff.SystemClock,
		}
		b.Reset()
		cfg.NoWorkBackOff = b
	}
	return cfg
}

func wait(ctx context.Context, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// doWork runs one cycle. It returns a negative duration when the loop should
// go straight into the next cycle, or the backoff delay to wait first.
func doWork(provider o11y.Provider, cfg Config) (delay time.Duration) {
	// The cycle deliberately does not inherit the run context, cancellation
	// mid-cycle would abandon in-flight work. MaxWorkTime bounds it instead.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxWorkTime)
	defer cancel()

	ctx = o11y.WithProvider(ctx, provider)
	ctx, span := provider.StartSpan(ctx, "worker loop: "+cfg.Name)
	span.RecordMetric(o11y.Timing("worker_loop", "loop_name", "result"))
	span.AddField("loop_name", cfg.Name)
	var err error
	defer o11y.End(span, &err)

	// Contain panics to the cycle, the same way net/http contains them to
	// the request.
	defer func() {
		if r := recover(); r != nil {
			err = o11y.HandlePanic(ctx, span, r)
		}
	}()

	delay = -1
	err = cfg.WorkFunc(ctx)
	if errors.Is(err, ErrShouldBackoff) {
		delay = cfg.NoWorkBackOff.NextBackOff()
		err = nil
	}

	span.AddField("backoff_ms", delay.Milliseconds())
	return delay
}
