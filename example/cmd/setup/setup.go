// Package setup contains common wiring code used by all commands.
package setup

import (
	"context"
	"time"

	o11yconf "github.com/hl8/datalayer/config/o11y"
	"github.com/hl8/datalayer/config/secret"
	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/system"
	"github.com/hl8/datalayer/tenant"
)

type CLI struct {
	AdminAddr string `env:"ADMIN_ADDR" default:":8001" help:"The address for the admin api to listen on"`

	O11yStatsd       string        `name:"o11y-statsd" env:"O11Y_STATSD" help:"Address to send statsd metrics"`
	O11yFormat       string        `name:"o11y-format" env:"O11Y_FORMAT" enum:"color,text" default:"text" help:"Format used for stderr logging"`
	O11yRollbarToken secret.String `name:"o11y-rollbar-token" env:"O11Y_ROLLBAR_TOKEN"`
	O11yRollbarEnv   string        `name:"o11y-rollbar-env" env:"O11Y_ROLLBAR_ENV" default:"production"`

	DBHost     string        `env:"DB_HOST" default:"localhost"`
	DBPort     int           `env:"DB_PORT" default:"5432"`
	DBUser     string        `env:"DB_USER" default:"notes"`
	DBPassword secret.String `env:"DB_PASSWORD"`
	DBName     string        `env:"DB_NAME" default:"notes"`
	DBSSL      bool          `env:"DB_SSL" name:"db-ssl" default:"false"`

	TenantPrefix       string        `env:"TENANT_PREFIX" default:"hl8_tenant_" help:"Prefix for tenant database names"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" default:"200ms"`
}

func LoadO11y(version, mode string, cli CLI) (context.Context, func(context.Context), error) {
	cfg := o11yconf.Config{
		Statsd:            cli.O11yStatsd,
		RollbarToken:      cli.O11yRollbarToken,
		RollbarEnv:        cli.O11yRollbarEnv,
		RollbarServerRoot: "github.com/hl8/datalayer/example",
		Format:            cli.O11yFormat,
		Version:           version,
		Service:           "notes",
		StatsNamespace:    "hl8.notes.",
		Mode:              mode,
	}
	return o11yconf.Setup(context.Background(), cfg)
}

func LoadTenants(ctx context.Context, cli CLI, sys *system.System) (*tenant.Manager, error) {
	return tenant.Load(ctx, tenant.Config{
		DB: db.Config{
			Host: cli.DBHost,
			Port: cli.DBPort,
			User: cli.DBUser,
			Pass: cli.DBPassword,
			Name: cli.DBName,
			SSL:  cli.DBSSL,
		},
		AppName:            "notes",
		Prefix:             cli.TenantPrefix,
		SlowQueryThreshold: cli.SlowQueryThreshold,
	}, sys)
}
