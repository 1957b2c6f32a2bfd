package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/migrations"
	"github.com/hl8/datalayer/system"
	"github.com/hl8/datalayer/tenant"
	"github.com/hl8/datalayer/testing/testcontext"
)

func TestAPI_Healthy(t *testing.T) {
	baseurl := startAPI(t, Config{Checked: []system.HealthChecker{&mockHealthChecks{
		ready: func(_ context.Context) error {
			return nil
		},
		live: func(_ context.Context) error {
			return nil
		},
	}}})

	body, status := get(t, baseurl, "live")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"status":"OK"`))

	body, status = get(t, baseurl, "ready")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"status":"OK"`))
}

func TestAPI_Unavailable(t *testing.T) {
	baseurl := startAPI(t, Config{Checked: []system.HealthChecker{&mockHealthChecks{
		ready: func(_ context.Context) error {
			return nil
		},
		live: func(_ context.Context) error {
			return errors.New("dead")
		},
	}}})

	body, status := get(t, baseurl, "live")
	assert.Check(t, cmp.Equal(status, http.StatusServiceUnavailable))
	assert.Check(t, cmp.Contains(body, `"status":"Unavailable"`))

	body, status = get(t, baseurl, "ready")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"status":"OK"`))
}

func TestAPI_NotReady(t *testing.T) {
	baseurl := startAPI(t, Config{Checked: []system.HealthChecker{&mockHealthChecks{
		ready: func(_ context.Context) error {
			return errors.New("not ready")
		},
		live: func(_ context.Context) error {
			return nil
		},
	}}})

	body, status := get(t, baseurl, "live")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"status":"OK"`))

	body, status = get(t, baseurl, "ready")
	assert.Check(t, cmp.Equal(status, http.StatusServiceUnavailable))
	assert.Check(t, cmp.Contains(body, `"status":"Unavailable"`))
}

func TestAPI_Debug(t *testing.T) {
	baseurl := startAPI(t, Config{})

	t.Run("standard", func(t *testing.T) {
		// The index page html
		body, status := get(t, baseurl, "debug/pprof")
		assert.Check(t, cmp.Equal(status, http.StatusOK))
		assert.Check(t, cmp.Contains(body, `Types of profiles available`))

		// Index served sub profiles
		body, status = get(t, baseurl, "debug/pprof/heap")
		assert.Check(t, cmp.Equal(status, http.StatusOK))
		assert.Check(t, len(body) > 100) // we should have some content

		_, status = get(t, baseurl, "debug/pprof/mutex")
		assert.Check(t, cmp.Equal(status, http.StatusOK))
	})

	t.Run("not-found", func(t *testing.T) {
		_, status := get(t, baseurl, "debug/pprof/nowt")
		assert.Check(t, cmp.Equal(status, http.StatusNotFound))
	})
}

func TestAPI_Connections(t *testing.T) {
	fake := &fakeIntrospector{
		info: []tenant.ConnectionInfo{
			{Database: "primary", Status: tenant.StatusConnected},
			{Database: "hl8_tenant_acme", TenantID: "acme", Status: tenant.StatusConnected},
		},
	}
	baseurl := startAPI(t, Config{Tenants: fake})

	body, status := get(t, baseurl, "admin/connections")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"hl8_tenant_acme"`))

	body, status = get(t, baseurl, "admin/connections/acme")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"acme"`))

	_, status = get(t, baseurl, "admin/connections/ghost")
	assert.Check(t, cmp.Equal(status, http.StatusNotFound))

	_, status = get(t, baseurl, "admin/connections/%20")
	assert.Check(t, cmp.Equal(status, http.StatusBadRequest))

	body, status = get(t, baseurl, "admin/stats")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, `"TenantConnections":1`))

	body, status = get(t, baseurl, "admin/slow-queries")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, "pg_sleep"))
}

func TestAPI_Migrations(t *testing.T) {
	fake := &fakeMigrations{
		status: []migrations.Status{
			{Version: 1, Path: "00001_init.sql", Applied: true, AppliedAt: time.Now()},
			{Version: 2, Path: "00002_add_things.sql"},
		},
	}
	baseurl := startAPI(t, Config{Migrations: fake})

	body, status := get(t, baseurl, "admin/migrations")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, "00002_add_things.sql"))

	body, status = get(t, baseurl, "admin/migrations/tenants/acme")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Contains(body, "00001_init.sql"))
	assert.Check(t, cmp.Equal(fake.lastTenant, "acme"))
}

type mockHealthChecks struct {
	ready, live func(ctx context.Context) error
}

func (m *mockHealthChecks) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return "mock healthcheck", m.ready, m.live
}

type fakeIntrospector struct {
	info []tenant.ConnectionInfo
}

func (f *fakeIntrospector) Info() []tenant.ConnectionInfo {
	return f.info
}

func (f *fakeIntrospector) TenantInfo(tenantID string) (tenant.ConnectionInfo, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return tenant.ConnectionInfo{}, err
	}
	for _, i := range f.info {
		if i.TenantID == tenantID {
			return i, nil
		}
	}
	return tenant.ConnectionInfo{}, tenant.ErrNotFound
}

func (f *fakeIntrospector) Stats() tenant.Stats {
	return tenant.Stats{TenantConnections: 1}
}

func (f *fakeIntrospector) SlowQueries() []db.SlowQueryRecord {
	return []db.SlowQueryRecord{{Query: "SELECT pg_sleep(1)", Duration: time.Second}}
}

type fakeMigrations struct {
	status     []migrations.Status
	lastTenant string
}

func (f *fakeMigrations) Status(context.Context) ([]migrations.Status, error) {
	return f.status, nil
}

func (f *fakeMigrations) StatusTenant(_ context.Context, tenantID string) ([]migrations.Status, error) {
	f.lastTenant = tenantID
	return f.status, nil
}

func startAPI(t *testing.T, cfg Config) string {
	t.Helper()

	ctx := testcontext.Background()

	api, err := New(ctx, cfg)
	assert.Assert(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
	})

	return srv.URL
}

func get(t *testing.T, baseurl, path string) (string, int) {
	t.Helper()

	r, err := http.Get(fmt.Sprintf("%s/%s", baseurl, path))
	assert.Assert(t, err)

	defer func() {
		assert.Assert(t, r.Body.Close())
	}()

	b, err := io.ReadAll(r.Body)
	assert.Assert(t, err)

	return string(b), r.StatusCode
}