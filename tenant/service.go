package tenant

import (
	"context"
	"database/sql"

	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/db/scope"
)

// Service is the tenant aware face of the data layer. It holds the manager
// rather than extending anything: every operation validates the tenant id,
// resolves that tenant's handle and delegates.
type Service struct {
	mgr *Manager
}

func NewService(m *Manager) *Service {
	return &Service{mgr: m}
}

func (s *Service) Manager() *Manager {
	return s.mgr
}

// Querier returns a handle bound to the tenant's database. When the context
// carries an ambient transaction the statements join it.
func (s *Service) Querier(ctx context.Context, tenantID string) (db.Querier, error) {
	txm, err := s.mgr.TenantDB(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return txm.Querier(ctx), nil
}

// ExecContext runs one statement against the tenant's database.
func (s *Service) ExecContext(ctx context.Context, tenantID, query string,
	args ...interface{}) (sql.Result, error) {

	q, err := s.Querier(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

// GetContext runs a single row query against the tenant's database.
func (s *Service) GetContext(ctx context.Context, tenantID string, dest interface{},
	query string, args ...interface{}) error {

	q, err := s.Querier(ctx, tenantID)
	if err != nil {
		return err
	}
	return q.GetContext(ctx, dest, query, args...)
}

// SelectContext runs a multi row query against the tenant's database.
func (s *Service) SelectContext(ctx context.Context, tenantID string, dest interface{},
	query string, args ...interface{}) error {

	q, err := s.Querier(ctx, tenantID)
	if err != nil {
		return err
	}
	return q.SelectContext(ctx, dest, query, args...)
}

// WithTx runs f inside a transaction on the tenant's database. Nested calls
// on the same context join the enclosing transaction.
func (s *Service) WithTx(ctx context.Context, tenantID string,
	f func(ctx context.Context, tx db.Querier) error) error {

	txm, err := s.mgr.TenantDB(ctx, tenantID)
	if err != nil {
		return err
	}
	return txm.WithTx(ctx, f)
}

// WithTxOptions is WithTx with explicit transaction options.
func (s *Service) WithTxOptions(ctx context.Context, tenantID string, opts db.TxOptions,
	f func(ctx context.Context, tx db.Querier) error) error {

	txm, err := s.mgr.TenantDB(ctx, tenantID)
	if err != nil {
		return err
	}
	return txm.WithTxOptions(ctx, opts, f)
}

// Transactional resolves the active tenant from the context scope and runs
// f inside a transaction on that tenant's database. It fails with
// scope.ErrNoTenant before touching any connection when no tenant is bound.
func (s *Service) Transactional(ctx context.Context, f func(ctx context.Context) error) error {
	tenantID, err := scope.TenantID(ctx)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, tenantID, func(ctx context.Context, _ db.Querier) error {
		return f(ctx)
	})
}

// ConnectionInfo reports the tenant's handle, annotated with the tenant id
// and its deterministic database name.
func (s *Service) ConnectionInfo(tenantID string) (ConnectionInfo, error) {
	return s.mgr.TenantInfo(tenantID)
}

// CreateDatabase and DropDatabase administer the tenant database lifecycle.
func (s *Service) CreateDatabase(ctx context.Context, tenantID string) error {
	return s.mgr.CreateTenantDatabase(ctx, tenantID)
}

func (s *Service) DropDatabase(ctx context.Context, tenantID string) error {
	return s.mgr.DropTenantDatabase(ctx, tenantID)
}
