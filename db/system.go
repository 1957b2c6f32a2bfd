package db

import (
	"context"

	"github.com/hl8/datalayer/system"
)

// Load connects to the named database and registers its health check,
// pool gauges and cleanup with the system.
func Load(ctx context.Context, dbName, appName string, cfg Config, sys *system.System,
	opts ...Option) (*TxManager, error) {

	db, err := New(ctx, dbName, appName, cfg)
	if err != nil {
		return nil, err
	}

	txm := NewTxManager(db, opts...)

	dbCheck := &HealthCheck{Name: dbName + "-db", DB: db, Stats: txm.stats}
	sys.AddMetrics(dbCheck)
	sys.AddHealthCheck(dbCheck)
	sys.AddCleanup(func(ctx context.Context) error {
		return db.Close()
	})

	return txm, nil
}
