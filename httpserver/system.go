package httpserver

import (
	"context"
	"fmt"

	"github.com/hl8/datalayer/system"
)

// Load creates the server and registers its serve loop and connection
// gauges with the system.
func Load(ctx context.Context, cfg Config, sys *system.System) (*HTTPServer, error) {
	server, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("starting %q server: %w", cfg.Name, err)
	}

	sys.AddService(server.Serve)
	sys.AddMetrics(server.MetricsProducer())
	return server, nil
}
