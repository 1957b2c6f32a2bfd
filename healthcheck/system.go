package healthcheck

import (
	"context"
	"fmt"

	"github.com/hl8/datalayer/httpserver"
	"github.com/hl8/datalayer/system"
)

// Load starts the admin API on addr, checking everything registered with the
// system so far.
func Load(ctx context.Context, addr string, cfg Config, sys *system.System) (*httpserver.HTTPServer, error) {
	cfg.Checked = append(cfg.Checked, sys.HealthChecks()...)
	api, err := New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating health check API: %w", err)
	}

	return httpserver.Load(ctx, httpserver.Config{
		Name:    "admin",
		Addr:    addr,
		Handler: api.Handler(),
	}, sys)
}
