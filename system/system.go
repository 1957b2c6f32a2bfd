package system

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/recontext"
	"github.com/hl8/datalayer/termination"
)

// System collects the long running services, health checks, metric
// producers and cleanups a binary is composed of, then runs them together
// until one fails or the process is told to stop.
type System struct {
	group *errgroup.Group
	ctx   context.Context

	services        []func(context.Context) error
	healthChecks    []HealthChecker
	metricProducers []MetricProducer
	gaugeProducers  []GaugeProducer
	cleanups        []func(ctx context.Context) error
}

func New(ctx context.Context) *System {
	group, ctx := errgroup.WithContext(ctx)
	return &System{
		group: group,
		ctx:   ctx,
	}
}

// AddService registers a long running func. Run starts each service in its
// own goroutine; when any returns an error the shared context is cancelled
// and the rest are expected to wind down.
func (s *System) AddService(f func(ctx context.Context) error) {
	s.services = append(s.services, f)
}

func (s *System) AddHealthCheck(h HealthChecker) {
	s.healthChecks = append(s.healthChecks, h)
}

func (s *System) AddMetrics(m MetricProducer) {
	s.metricProducers = append(s.metricProducers, m)
}

func (s *System) AddGauges(g GaugeProducer) {
	s.gaugeProducers = append(s.gaugeProducers, g)
}

// AddCleanup registers a func to run during Cleanup, after Run has
// returned.
func (s *System) AddCleanup(c func(ctx context.Context) error) {
	s.cleanups = append(s.cleanups, c)
}

func (s *System) HealthChecks() []HealthChecker {
	return s.healthChecks
}

var terminationTestHook = termination.Handle

// Run starts everything registered so far and blocks until a service
// errors or a termination signal arrives. The delay postpones acting on a
// termination signal, which gives load balancers time to drain.
func (s *System) Run(delay time.Duration) (err error) {
	_, uptimeSpan := o11y.StartSpan(s.ctx, "system: run")
	defer o11y.End(uptimeSpan, &err)
	uptimeSpan.RecordMetric(o11y.Timing("system.run", "result"))

	s.group.Go(func() error {
		return terminationTestHook(s.ctx, delay)
	})

	for _, f := range s.services {
		f := f // the goroutines start in parallel, don't share the loop var
		s.group.Go(func() error {
			return f(s.ctx)
		})
	}

	if len(s.metricProducers) > 0 || len(s.gaugeProducers) > 0 {
		s.group.Go(metricsReporter(s.ctx, s.metricProducers, s.gaugeProducers))
	}

	return s.group.Wait()
}

// Cleanup runs the cleanup funcs in the order they were added. By the time
// it is called the run context has usually been cancelled, so the cleanups
// get a derived context that keeps its values but takes a fresh deadline.
func (s *System) Cleanup(ctx context.Context) {
	ctx, cancel := recontext.WithNewTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, c := range s.cleanups {
		if err := c(ctx); err != nil {
			o11y.Log(ctx, "system: cleanup error", o11y.Field("error", err))
		}
	}
}
