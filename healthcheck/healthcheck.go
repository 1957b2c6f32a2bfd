// Package healthcheck implements the admin API: health checks, runtime
// profiling and data-layer introspection.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v4"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/migrations"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/system"
	"github.com/hl8/datalayer/tenant"
)

var once sync.Once

// TenantIntrospector is the view of the tenant manager the admin API serves.
type TenantIntrospector interface {
	Info() []tenant.ConnectionInfo
	TenantInfo(tenantID string) (tenant.ConnectionInfo, error)
	Stats() tenant.Stats
	SlowQueries() []db.SlowQueryRecord
}

// MigrationIntrospector is the view of the migration runner the admin API
// serves.
type MigrationIntrospector interface {
	Status(ctx context.Context) ([]migrations.Status, error)
	StatusTenant(ctx context.Context, tenantID string) ([]migrations.Status, error)
}

type Config struct {
	Checked []system.HealthChecker

	// Tenants enables the connection introspection endpoints.
	Tenants TenantIntrospector
	// Migrations enables the migration status endpoints.
	Migrations MigrationIntrospector
}

type API struct {
	router *gin.Engine
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*API, error) {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	r := gin.New()
	r.Use(
		middleware(o11y.FromContext(ctx), "admin"),
		recovery(),
	)
	r.UseRawPath = true

	a := &API{router: r, cfg: cfg}

	heathLive, heathReady, err := newHealthHandlers(cfg.Checked)
	if err != nil {
		return nil, fmt.Errorf("failed to create health checks: %w", err)
	}

	r.GET("/live", gin.WrapH(heathLive.Handler()))
	r.GET("/ready", gin.WrapH(heathReady.Handler()))

	debug := r.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	debug.GET("/:profile", gin.WrapF(pprof.Index))

	if cfg.Tenants != nil {
		admin := r.Group("/admin")
		admin.GET("/connections", a.getConnections)
		admin.GET("/connections/:tenant", a.getTenantConnection)
		admin.GET("/stats", a.getStats)
		admin.GET("/slow-queries", a.getSlowQueries)
	}
	if cfg.Migrations != nil {
		admin := r.Group("/admin/migrations")
		admin.GET("", a.getMigrationStatus)
		admin.GET("/tenants/:tenant", a.getTenantMigrationStatus)
	}

	return a, nil
}

func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) getConnections(c *gin.Context) {
	c.JSON(http.StatusOK, a.cfg.Tenants.Info())
}

func (a *API) getTenantConnection(c *gin.Context) {
	info, err := a.cfg.Tenants.TenantInfo(c.Param("tenant"))
	switch {
	case errors.Is(err, tenant.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tenant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, info)
	}
}

func (a *API) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.cfg.Tenants.Stats())
}

func (a *API) getSlowQueries(c *gin.Context) {
	c.JSON(http.StatusOK, a.cfg.Tenants.SlowQueries())
}

func (a *API) getMigrationStatus(c *gin.Context) {
	status, err := a.cfg.Migrations.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) getTenantMigrationStatus(c *gin.Context) {
	status, err := a.cfg.Migrations.StatusTenant(c.Request.Context(), c.Param("tenant"))
	switch {
	case errors.Is(err, tenant.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, status)
	}
}

func newHealthHandlers(checked []system.HealthChecker) (*health.Health, *health.Health, error) {
	heathLive, err := health.New()
	if err != nil {
		return nil, nil, err
	}

	heathReady, err := health.New()
	if err != nil {
		return nil, nil, err
	}

	for _, c := range checked {
		name, ready, live := c.HealthChecks()

		if ready != nil {
			err = heathReady.Register(health.Config{
				Name:      name,
				Timeout:   time.Second * 5,
				SkipOnErr: false,
				Check:     ready,
			})
			if err != nil {
				return nil, nil, err
			}
		}

		if live != nil {
			err = heathLive.Register(health.Config{
				Name:      name,
				Timeout:   time.Second * 5,
				SkipOnErr: false,
				Check:     live,
			})
			if err != nil {
				return nil, nil, err
			}
		}
	}

	return heathLive, heathReady, nil
}
