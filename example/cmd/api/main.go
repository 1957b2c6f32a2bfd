package main

import (
	"context"
	"errors"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal
	"time"

	"github.com/alecthomas/kong"

	"github.com/hl8/datalayer/healthcheck"
	"github.com/hl8/datalayer/httpserver"
	"github.com/hl8/datalayer/migrations"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/system"
	"github.com/hl8/datalayer/tenant"
	"github.com/hl8/datalayer/termination"

	"github.com/hl8/datalayer/example/api"
	"github.com/hl8/datalayer/example/cmd/setup"
	migrationset "github.com/hl8/datalayer/example/migrations"
	"github.com/hl8/datalayer/example/notes"
)

var (
	version = "dev"
	date    = "unknown"
)

type cli struct {
	setup.CLI

	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"5s" help:"Delay shutdown by this amount" hidden:""`
	APIAddr       string        `env:"API_ADDR" default:":8000" help:"The address for the API to listen on"`
}

func main() {
	err := run(version, date)
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func run(version, date string) (err error) {
	cli := cli{}
	kong.Parse(&cli)

	ctx, o11yCleanup, err := setup.LoadO11y(version, "api", cli.CLI)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, runSpan := o11y.StartSpan(ctx, "main: run")
	defer o11y.End(runSpan, &err)

	o11y.Log(ctx, "starting api",
		o11y.Field("version", version),
		o11y.Field("date", date),
	)

	sys := system.New(ctx)
	defer sys.Cleanup(ctx)

	mgr, err := setup.LoadTenants(ctx, cli.CLI, sys)
	if err != nil {
		return err
	}

	runner := migrations.NewRunner(mgr, migrations.Config{FS: migrationset.FS})
	if _, err := runner.Up(ctx); err != nil {
		return err
	}

	svc := tenant.NewService(mgr)
	a := api.New(ctx, api.Options{
		Store:      notes.NewStore(svc),
		Tenants:    svc,
		Migrations: runner,
	})

	_, err = httpserver.Load(ctx, httpserver.Config{
		Name:    "api",
		Addr:    cli.APIAddr,
		Handler: a.Handler(),
	}, sys)
	if err != nil {
		return err
	}

	// Should be last so it collects all the health checks
	_, err = healthcheck.Load(ctx, cli.AdminAddr, healthcheck.Config{
		Tenants:    mgr,
		Migrations: runner,
	}, sys)
	if err != nil {
		return err
	}

	return sys.Run(cli.ShutdownDelay)
}
