package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/hl8/datalayer/closer"
	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/tenant"
)

type Config struct {
	// Dir is the migrations directory on disk. Ignored when FS is set.
	Dir string
	// FS optionally holds an embedded migration set.
	FS fs.FS
}

// Migration describes one source file of the ordered set.
type Migration struct {
	Version int64
	Path    string
}

// Applied describes one migration applied by a run.
type Applied struct {
	Version  int64
	Path     string
	Duration time.Duration
}

// Status describes one migration of the set against one database.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Handles resolves the database handles migration runs borrow. The tenant
// manager implements it.
type Handles interface {
	Primary() (*db.TxManager, error)
	TenantDB(ctx context.Context, tenantID string) (*db.TxManager, error)
}

// Runner applies the migration set to the primary database and, with the
// identical ordered set, to any tenant database. Database handles are
// borrowed per run and never cached here.
type Runner struct {
	mgr  Handles
	fsys fs.FS
	dir  string

	mu   sync.Mutex
	runs map[string]*runState
}

func NewRunner(mgr Handles, cfg Config) *Runner {
	fsys := cfg.FS
	if fsys == nil {
		fsys = os.DirFS(cfg.Dir)
	}
	return &Runner{
		mgr:  mgr,
		fsys: fsys,
		dir:  cfg.Dir,
		runs: map[string]*runState{},
	}
}

func (r *Runner) provider(ctx context.Context, tenantID string) (*goose.Provider, error) {
	var d *sql.DB
	if tenantID == "" {
		txm, err := r.mgr.Primary()
		if err != nil {
			return nil, err
		}
		d = txm.DB.DB
	} else {
		txm, err := r.mgr.TenantDB(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		d = txm.DB.DB
	}
	return goose.NewProvider(goose.DialectPostgres, d, r.fsys)
}

// emptySet reports whether the directory holds no migrations at all. Every
// operation treats an empty set as a no-op rather than a failure, so a
// service can ship before its first migration exists.
func (r *Runner) emptySet() bool {
	matches, err := fs.Glob(r.fsys, "*.sql")
	return err == nil && len(matches) == 0
}

// noMigrations catches the errors goose raises for an empty set.
func noMigrations(err error) bool {
	return errors.Is(err, goose.ErrNoMigrations) || errors.Is(err, goose.ErrNoMigrationFiles)
}

// Up applies all pending migrations to the primary database.
func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	return r.up(ctx, "")
}

// UpTenant applies the same ordered migration set to the tenant's database.
func (r *Runner) UpTenant(ctx context.Context, tenantID string) ([]Applied, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	return r.up(ctx, tenantID)
}

func (r *Runner) up(ctx context.Context, tenantID string) (_ []Applied, err error) {
	ctx, span := o11y.StartSpan(ctx, "migrations: up")
	defer o11y.End(span, &err)
	if tenantID != "" {
		span.AddField("tenant", tenantID)
	}

	if r.emptySet() {
		span.AddField("applied", 0)
		r.startRun(tenantID).complete(nil)
		return []Applied{}, nil
	}

	p, err := r.provider(ctx, tenantID)
	if err != nil {
		if noMigrations(err) {
			r.startRun(tenantID).complete(nil)
			return []Applied{}, nil
		}
		return nil, err
	}
	defer closer.ErrorHandler(p, &err)

	pending := pendingPaths(ctx, p)
	run := r.startRun(tenantID)

	results, err := p.Up(ctx)
	if err != nil {
		run.fail(err)
		return nil, &Error{TenantID: tenantID, Pending: pending, cause: err}
	}

	applied := make([]Applied, 0, len(results))
	for _, res := range results {
		applied = append(applied, Applied{
			Version:  res.Source.Version,
			Path:     res.Source.Path,
			Duration: res.Duration,
		})
	}
	span.AddField("applied", len(applied))
	run.complete(applied)
	return applied, nil
}

// DownTo rolls the primary database back to the given version.
func (r *Runner) DownTo(ctx context.Context, version int64) ([]Applied, error) {
	return r.downTo(ctx, "", version)
}

// DownToTenant rolls a tenant database back to the given version.
func (r *Runner) DownToTenant(ctx context.Context, tenantID string, version int64) ([]Applied, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	return r.downTo(ctx, tenantID, version)
}

func (r *Runner) downTo(ctx context.Context, tenantID string, version int64) (_ []Applied, err error) {
	ctx, span := o11y.StartSpan(ctx, "migrations: down-to")
	defer o11y.End(span, &err)
	span.AddField("version", version)
	if tenantID != "" {
		span.AddField("tenant", tenantID)
	}

	if r.emptySet() {
		return []Applied{}, nil
	}

	p, err := r.provider(ctx, tenantID)
	if err != nil {
		if noMigrations(err) {
			return []Applied{}, nil
		}
		return nil, err
	}
	defer closer.ErrorHandler(p, &err)

	results, err := p.DownTo(ctx, version)
	if err != nil {
		return nil, &Error{TenantID: tenantID, Version: version, cause: err}
	}

	reverted := make([]Applied, 0, len(results))
	for _, res := range results {
		reverted = append(reverted, Applied{
			Version:  res.Source.Version,
			Path:     res.Source.Path,
			Duration: res.Duration,
		})
	}
	r.markRolledBack(tenantID)
	return reverted, nil
}

// Status reports each migration of the set against the primary database.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	return r.status(ctx, "")
}

// StatusTenant reports each migration of the set against a tenant database.
func (r *Runner) StatusTenant(ctx context.Context, tenantID string) ([]Status, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, err
	}
	return r.status(ctx, tenantID)
}

func (r *Runner) status(ctx context.Context, tenantID string) (_ []Status, err error) {
	ctx, span := o11y.StartSpan(ctx, "migrations: status")
	defer o11y.End(span, &err)

	if r.emptySet() {
		return []Status{}, nil
	}

	p, err := r.provider(ctx, tenantID)
	if err != nil {
		if noMigrations(err) {
			return []Status{}, nil
		}
		return nil, err
	}
	defer closer.ErrorHandler(p, &err)

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, &Error{TenantID: tenantID, cause: err}
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version:   s.Source.Version,
			Path:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

// List returns the ordered migration set. The set is identical for the
// primary database and every tenant database.
func (r *Runner) List() ([]Migration, error) {
	collected, err := goose.CollectMigrations(r.dirOrDot(), 0, goose.MaxVersion)
	if err != nil {
		if noMigrations(err) {
			return []Migration{}, nil
		}
		return nil, &Error{cause: err}
	}
	out := make([]Migration, 0, len(collected))
	for _, m := range collected {
		out = append(out, Migration{Version: m.Version, Path: m.Source})
	}
	return out, nil
}

// Create writes a new timestamped SQL migration file into the directory.
func (r *Runner) Create(name string) error {
	if err := goose.Create(nil, r.dirOrDot(), name, "sql"); err != nil {
		return &Error{cause: err}
	}
	return nil
}

func (r *Runner) dirOrDot() string {
	if r.dir == "" {
		return "."
	}
	return r.dir
}

func pendingPaths(ctx context.Context, p *goose.Provider) []string {
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil
	}
	var pending []string
	for _, s := range statuses {
		if s.State == goose.StatePending {
			pending = append(pending, s.Source.Path)
		}
	}
	return pending
}
