package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/o11y"
)

// Strategy selects how tenant data is isolated. Only StrategyDatabase has
// executing logic; the other selectors are declared extension points.
type Strategy string

const (
	StrategyDatabase Strategy = "database"
	StrategySchema   Strategy = "schema"
	StrategyTable    Strategy = "table"
)

// DefaultPrefix is prepended to a tenant id to form its database name.
const DefaultPrefix = "hl8_tenant_"

type Config struct {
	// DB holds the primary connection settings. Tenant connections reuse
	// them with only the database name swapped.
	DB      db.Config
	AppName string

	// Prefix forms tenant database names as Prefix + tenant id.
	// Defaults to DefaultPrefix.
	Prefix   string
	Strategy Strategy

	SlowQueryThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Strategy == "" {
		c.Strategy = StrategyDatabase
	}
	return c
}

// Status describes one connection handle.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusError        Status = "error"
)

// ConnectionInfo is a point in time description of one handle.
type ConnectionInfo struct {
	StoreType   string
	Database    string
	Host        string
	Port        int
	Status      Status
	ConnectedAt time.Time
	// TenantID is empty for the primary handle.
	TenantID string
}

// Stats is a point in time snapshot of the manager.
type Stats struct {
	TenantConnections int
	Primary           ConnectionInfo
	Queries           db.QueryStats
}

type entry struct {
	db   *sqlx.DB
	txm  *db.TxManager
	info ConnectionInfo
}

// Manager exclusively owns the primary database handle and the lazy map of
// per-tenant handles. Everything else borrows handles through it and never
// caches them beyond one call.
type Manager struct {
	cfg        Config
	primary    *sqlx.DB
	primaryTxm *db.TxManager
	stats      *db.Stats

	mu          sync.RWMutex
	closed      bool
	tenants     map[string]*entry
	primaryInfo ConnectionInfo

	sf singleflight.Group

	// This is only for testing purposes
	TestConnector func(ctx context.Context, dbName string) (*sqlx.DB, error)
}

// New connects the primary handle. Tenant handles are not opened here, each
// is created on its first access.
func New(ctx context.Context, cfg Config) (_ *Manager, err error) {
	ctx, span := o11y.StartSpan(ctx, "tenant: new manager")
	defer o11y.End(span, &err)

	cfg = cfg.withDefaults()
	if cfg.Strategy != StrategyDatabase {
		return nil, fmt.Errorf("isolation strategy %q is not implemented", cfg.Strategy)
	}
	span.AddField("prefix", cfg.Prefix)

	m := &Manager{
		cfg:     cfg,
		stats:   db.NewStats(cfg.SlowQueryThreshold),
		tenants: map[string]*entry{},
	}
	m.primary, err = db.New(ctx, "primary", cfg.AppName, cfg.DB)
	if err != nil {
		return nil, err
	}
	m.primaryTxm = db.NewTxManager(m.primary, db.WithStats(m.stats))
	m.primaryInfo = ConnectionInfo{
		StoreType:   "postgres",
		Database:    cfg.DB.Name,
		Host:        cfg.DB.Host,
		Port:        cfg.DB.Port,
		Status:      StatusConnected,
		ConnectedAt: time.Now(),
	}
	return m, nil
}

// DatabaseName returns the deterministic database name for a tenant.
func (m *Manager) DatabaseName(tenantID string) string {
	return m.cfg.Prefix + tenantID
}

// Primary returns the transaction manager over the primary handle.
func (m *Manager) Primary() (*db.TxManager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, db.ErrNotInitialized
	}
	return m.primaryTxm, nil
}

// TenantDB returns the transaction manager bound to the tenant's own
// database, connecting on first access. Concurrent first accesses for the
// same tenant share one in-flight connection attempt, so a cold cache sees
// at most one connect call per tenant.
func (m *Manager) TenantDB(ctx context.Context, tenantID string) (*db.TxManager, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, db.ErrNotInitialized
	}
	if e, ok := m.tenants[tenantID]; ok {
		m.mu.RUnlock()
		return e.txm, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do(tenantID, func() (interface{}, error) {
		// a racing call may have won and inserted already
		m.mu.RLock()
		e, ok := m.tenants[tenantID]
		m.mu.RUnlock()
		if ok {
			return e, nil
		}

		e, err := m.connect(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			_ = e.db.Close()
			return nil, db.ErrNotInitialized
		}
		m.tenants[tenantID] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry).txm, nil
}

func (m *Manager) connect(ctx context.Context, tenantID string) (_ *entry, err error) {
	ctx, span := o11y.StartSpan(ctx, "tenant: connect")
	defer o11y.End(span, &err)
	span.AddField("tenant", tenantID)

	dbName := m.DatabaseName(tenantID)
	span.AddField("dbname", dbName)

	var d *sqlx.DB
	if m.TestConnector != nil {
		d, err = m.TestConnector(ctx, dbName)
	} else {
		cfg := m.cfg.DB
		cfg.Name = dbName
		d, err = db.New(ctx, "tenant-"+tenantID, m.cfg.AppName, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return &entry{
		db:  d,
		txm: db.NewTxManager(d, db.WithStats(m.stats), db.WithTenant(tenantID)),
		info: ConnectionInfo{
			StoreType:   "postgres",
			Database:    dbName,
			Host:        m.cfg.DB.Host,
			Port:        m.cfg.DB.Port,
			Status:      StatusConnected,
			ConnectedAt: time.Now(),
			TenantID:    tenantID,
		},
	}, nil
}

// CreateTenantDatabase issues the create DDL on the primary handle. It does
// not open a connection to the new database, first access does that.
func (m *Manager) CreateTenantDatabase(ctx context.Context, tenantID string) (err error) {
	if err := ValidateID(tenantID); err != nil {
		return err
	}
	ctx, span := o11y.StartSpan(ctx, "tenant: create database")
	defer o11y.End(span, &err)

	dbName := m.DatabaseName(tenantID)
	span.AddField("tenant", tenantID)
	span.AddField("dbname", dbName)

	txm, err := m.Primary()
	if err != nil {
		return err
	}
	q := fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{dbName}.Sanitize())
	if _, err := txm.NoTx().ExecContext(ctx, q); err != nil && !o11y.IsWarning(err) {
		return fmt.Errorf("%w: %w", ErrAdmin, err)
	}
	return nil
}

// DropTenantDatabase closes any cached connection for the tenant, then drops
// its database.
func (m *Manager) DropTenantDatabase(ctx context.Context, tenantID string) (err error) {
	if err := ValidateID(tenantID); err != nil {
		return err
	}
	ctx, span := o11y.StartSpan(ctx, "tenant: drop database")
	defer o11y.End(span, &err)

	dbName := m.DatabaseName(tenantID)
	span.AddField("tenant", tenantID)
	span.AddField("dbname", dbName)

	if err := m.CloseTenant(ctx, tenantID); err != nil {
		// dropping the database is the operation that matters
		o11y.LogError(ctx, "tenant: close before drop failed", err)
	}

	txm, err := m.Primary()
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{dbName}.Sanitize())
	if _, err := txm.NoTx().ExecContext(ctx, q); err != nil && !o11y.IsWarning(err) {
		return fmt.Errorf("%w: %w", ErrAdmin, err)
	}
	return nil
}

// CloseTenant removes the tenant's map entry and closes its handle.
func (m *Manager) CloseTenant(ctx context.Context, tenantID string) error {
	if err := ValidateID(tenantID); err != nil {
		return err
	}

	m.mu.Lock()
	e, ok := m.tenants[tenantID]
	delete(m.tenants, tenantID)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	o11y.Log(ctx, "tenant: closing connection", o11y.Field("tenant", tenantID))
	return e.db.Close()
}

// CloseAll closes every tenant connection and then the primary one. Close
// failures are collected and logged, teardown is best effort and always
// runs to completion.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	tenants := m.tenants
	m.tenants = map[string]*entry{}
	m.primaryInfo.Status = StatusDisconnected
	m.mu.Unlock()

	var result *multierror.Error
	for id, e := range tenants {
		if err := e.db.Close(); err != nil {
			o11y.LogError(ctx, "tenant: close failed", err, o11y.Field("tenant", id))
			result = multierror.Append(result, fmt.Errorf("tenant %q: %w", id, err))
		}
	}
	if err := m.primary.Close(); err != nil {
		o11y.LogError(ctx, "tenant: primary close failed", err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Info returns a snapshot of every live handle, primary first.
func (m *Manager) Info() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ConnectionInfo{m.primaryInfo}
	for _, e := range m.tenants {
		out = append(out, e.info)
	}
	return out
}

// TenantInfo returns the snapshot for one tenant's handle.
func (m *Manager) TenantInfo(tenantID string) (ConnectionInfo, error) {
	if err := ValidateID(tenantID); err != nil {
		return ConnectionInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tenants[tenantID]
	if !ok {
		return ConnectionInfo{}, fmt.Errorf("%w: %q", ErrNotFound, tenantID)
	}
	return e.info, nil
}

// Stats returns the aggregate manager snapshot.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	n := len(m.tenants)
	primary := m.primaryInfo
	m.mu.RUnlock()

	return Stats{
		TenantConnections: n,
		Primary:           primary,
		Queries:           m.stats.Snapshot(),
	}
}

// SlowQueries returns the retained slow queries across all handles.
func (m *Manager) SlowQueries() []db.SlowQueryRecord {
	return m.stats.SlowQueries()
}
