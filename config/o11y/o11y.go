// Package o11y is the primary entrypoint to initialise the observability
// system used by the data layer, wiring the span provider, statsd metrics
// and rollbar error reporting together from one config struct.
package o11y

import (
	"context"
	"io"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rollbar/rollbar-go"

	"github.com/hl8/datalayer/config/secret"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/o11y/texttrace"
)

type Config struct {
	Statsd            string
	StatsNamespace    string
	RollbarToken      secret.String
	RollbarEnv        string
	RollbarServerRoot string
	Format            string
	Version           string
	Service           string

	// Optional
	Mode            string
	RollbarDisabled bool
	// Writer defaults to stdout, it is settable for tests
	Writer io.Writer
}

// Setup initialises the o11y system. The returned context carries the
// provider, and the returned func closes it down flushing any metrics.
func Setup(ctx context.Context, o Config) (context.Context, func(context.Context), error) {
	hostname, _ := os.Hostname()

	metrics, err := metricsFor(o, hostname)
	if err != nil {
		return nil, nil, err
	}

	out := o.Writer
	if out == nil {
		out = os.Stdout
	}
	var provider o11y.Provider = texttrace.New(texttrace.Config{
		Output:  out,
		Colour:  o.Format == "colour" || o.Format == "color",
		Metrics: metrics,
	})
	provider.AddGlobalField("service", o.Service)
	provider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		provider.AddGlobalField("mode", o.Mode)
	}

	if o.RollbarToken != "" {
		client := rollbar.NewAsync(o.RollbarToken.Raw(), o.RollbarEnv, o.Version, hostname, o.RollbarServerRoot)
		client.SetEnabled(!o.RollbarDisabled)
		provider = rollbarProvider{
			Provider:      provider,
			rollbarClient: client,
		}
	}

	ctx = o11y.WithProvider(ctx, provider)

	return ctx, provider.Close, nil
}

func metricsFor(o Config, hostname string) (o11y.ClosableMetricsProvider, error) {
	if o.Statsd == "" {
		return &statsd.NoOpClient{}, nil
	}
	tags := []string{
		"service:" + o.Service,
		"version:" + o.Version,
		"hostname:" + hostname,
	}
	if o.Mode != "" {
		tags = append(tags, "mode:"+o.Mode)
	}
	return statsd.New(o.Statsd,
		statsd.WithNamespace(o.StatsNamespace),
		statsd.WithTags(tags),
	)
}

type rollbarProvider struct {
	o11y.Provider
	rollbarClient *rollbar.Client
}

func (p rollbarProvider) Close(ctx context.Context) {
	p.Provider.Close(ctx)
	_ = p.rollbarClient.Close()
}

func (p rollbarProvider) RollBarClient() *rollbar.Client {
	return p.rollbarClient
}
