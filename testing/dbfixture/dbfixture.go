// Package dbfixture creates throwaway postgres databases for tests. Each
// fixture gets its own randomly suffixed database which is dropped again
// when the test finishes.
package dbfixture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4"
	_ "github.com/jackc/pgx/v4/stdlib" // register the pgx driver
	"github.com/jmoiron/sqlx"
	"gotest.tools/v3/assert"

	"github.com/hl8/datalayer/config/env"
	"github.com/hl8/datalayer/config/secret"
	"github.com/hl8/datalayer/db"
	"github.com/hl8/datalayer/o11y"
	"github.com/hl8/datalayer/testing/internal/types"
)

// Connection carries the credentials the fixtures bootstrap with.
type Connection struct {
	Host string
	// User is the superuser that creates and drops the fixture databases.
	User string
	// AppUser is the reduced permission user the code under test connects as.
	AppUser string
	// Password is the superuser's password.
	Password secret.String
	// AppPassword is the password for AppUser.
	AppPassword secret.String
}

// ConnectionFromEnv builds a Connection from the DBFIXTURE_* environment
// variables, falling back to the given defaults where a variable is unset.
func ConnectionFromEnv(t types.TestingTB, defaults Connection) Connection {
	con := defaults
	l := env.NewLoader()
	l.String(&con.Host, "DBFIXTURE_HOST")
	l.String(&con.User, "DBFIXTURE_USER")
	l.String(&con.AppUser, "DBFIXTURE_APP_USER")
	l.SecretFromFile(&con.Password, "DBFIXTURE_PASSWORD_FILE")
	l.SecretFromFile(&con.AppPassword, "DBFIXTURE_APP_PASSWORD_FILE")
	if err := l.Err(); err != nil {
		t.Fatal(err.Error())
	}
	return con
}

// SharedFixture holds the admin handle every fixture in the binary shares.
type SharedFixture struct {
	once sync.Once
	m    *Manager
}

func (s *SharedFixture) Manager() *Manager {
	return s.m
}

var shared = &SharedFixture{}

// In CI a missing database is a failure. Locally it just skips the test.
var mustRunAllTests = os.Getenv("CI") == "true"

// SetupSystem connects the shared admin handle used to create and drop the
// per test databases. Callers should not rely on it being a package global.
func SetupSystem(t types.TestingTB, con Connection) *SharedFixture {
	shared.once.Do(func() {
		m, err := NewManager(con)
		if err != nil {
			var noDB *NoDBError
			if errors.As(err, &noDB) && !mustRunAllTests {
				t.Skip(noDB.Error())
			}
			t.Fatal(err.Error())
		}
		shared.m = m
	})
	if shared.m == nil {
		t.Skip("shared fixture failed setup")
	}
	return shared
}

// SetupDB provisions a fresh database with the schema applied and registers
// its teardown with the test.
func SetupDB(ctx context.Context, t types.TestingTB, schema string, con Connection) *Fixture {
	t.Helper()
	fix, err := SetupSystem(t, con).Manager().NewDB(ctx, con, t.Name(), schema)
	assert.Assert(t, err)
	t.Cleanup(func() {
		// the test context may be cancelled by now, keep the provider but
		// take a fresh deadline
		p := o11y.FromContext(ctx)
		ctx, cancel := context.WithTimeout(o11y.WithProvider(context.Background(), p), 10*time.Second)
		defer cancel()

		if r := recover(); r != nil {
			_ = fix.Cleanup(ctx)
			panic(r)
		}
		assert.Assert(t, fix.Cleanup(ctx))
	})
	return fix
}

// Manager owns the admin handle fixture databases are created through.
type Manager struct {
	admin *sqlx.DB
}

func NewManager(con Connection) (*Manager, error) {
	admin, err := openDB(con, "postgres")
	if err != nil {
		return nil, err
	}
	return &Manager{admin: admin}, nil
}

func (m *Manager) Close() error {
	return m.admin.Close()
}

// NewDB creates a database named after dbName with a random prefix,
// truncated to postgres's 63 byte identifier limit.
func (m *Manager) NewDB(ctx context.Context, con Connection, dbName, schema string) (_ *Fixture, err error) {
	ctx, span := o11y.StartSpan(ctx, "dbfixture: new db")
	defer o11y.End(span, &err)

	name := fmt.Sprintf("%s-%s", randomSuffix(), dbName)
	if len(name) > 63 {
		name = name[:63]
	}

	fix := &Fixture{DBName: name, Host: con.Host, User: con.User, Password: con.Password}
	span.AddField("dbname", fix.DBName)
	span.AddField("host", con.Host)
	span.AddField("admin_user", con.User)

	_, err = m.admin.ExecContext(ctx,
		fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{fix.DBName}.Sanitize()))
	if err != nil {
		return nil, err
	}

	fix.AdminDB, err = openDB(con, fix.DBName)
	if err != nil {
		return nil, err
	}
	fix.AdminTX = db.NewTxManager(fix.AdminDB)
	fix.Cleanup = func(ctx context.Context) error {
		return m.dropDB(ctx, fix)
	}

	if err := ensureAppCreds(ctx, fix, con); err != nil {
		return nil, err
	}
	if err := connectAppUser(fix, con); err != nil {
		return nil, err
	}
	span.AddField("app_user", fix.User)

	if err := fix.applySchema(ctx, schema); err != nil {
		return nil, err
	}
	return fix, nil
}

// Fixture is one throwaway database. TX connects as the app user, AdminTX
// as the superuser.
type Fixture struct {
	DBName   string
	Host     string
	User     string
	Password secret.String
	DB       *sqlx.DB
	TX       *db.TxManager
	Cleanup  func(ctx context.Context) error
	AdminDB  *sqlx.DB
	AdminTX  *db.TxManager

	tables []table
}

type table struct {
	Schema string `db:"table_schema"`
	Name   string `db:"table_name"`
}

const listTablesQuery = `
SELECT table_name, table_schema
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
AND table_schema NOT IN ('pg_catalog', 'information_schema')
`

func (f *Fixture) applySchema(ctx context.Context, schema string) error {
	o11y.Log(ctx, "applying schema")
	if _, err := f.AdminDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := f.AdminDB.SelectContext(ctx, &f.tables, listTablesQuery); err != nil {
		return fmt.Errorf("could not get list of tables: %w", err)
	}

	// pg_dump blanks 'search_path' for security reasons, set it back
	// https://www.postgresql.org/message-id/ace62b19-f918-3579-3633-b9e19da8b9de%40aklaver.com
	_, err := f.AdminDB.ExecContext(ctx, "SELECT pg_catalog.set_config('search_path', 'public', false);")
	return err
}

// Reset empties every table the schema created, with constraint checks
// suspended so delete order does not matter.
func (f *Fixture) Reset(ctx context.Context) error {
	return f.AdminTX.WithTx(ctx, func(ctx context.Context, tx db.Querier) error {
		_, err := tx.ExecContext(ctx, `SET session_replication_role = 'replica';`)
		if ignoreNop(err) != nil {
			return fmt.Errorf("could not disable constraint checks: %w", err)
		}

		for _, tbl := range f.tables {
			// nolint: gosec
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`,
				pgx.Identifier{tbl.Schema, tbl.Name}.Sanitize()))
			if ignoreNop(err) != nil {
				return fmt.Errorf("could not delete from table: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `SET session_replication_role = 'origin';`)
		if ignoreNop(err) != nil {
			return fmt.Errorf("could not enable constraint checks: %w", err)
		}
		return nil
	})
}

// language=PostgreSQL
const createAppUserQuery = `
do $$ begin
	IF NOT EXISTS (SELECT * FROM pg_user WHERE usename = '%[1]s') THEN
		CREATE ROLE %[1]s WITH LOGIN PASSWORD '%[2]s';
	END IF;
	GRANT CONNECT ON DATABASE %[3]s TO %[1]s;
end $$ ;
`

func ensureAppCreds(ctx context.Context, fix *Fixture, con Connection) error {
	if con.AppUser == "" || con.AppPassword == "" {
		return nil
	}
	_, err := fix.AdminTX.NoTx().ExecContext(ctx, fmt.Sprintf(createAppUserQuery,
		con.AppUser,
		con.AppPassword.Raw(),
		pgx.Identifier{fix.DBName}.Sanitize()),
	)
	return ignoreNop(err)
}

func connectAppUser(fix *Fixture, con Connection) (err error) {
	appCon := con
	appCon.AppUser = ""
	appCon.AppPassword = ""
	if con.AppUser != "" {
		appCon.User = con.AppUser
	}
	if con.AppPassword != "" {
		appCon.Password = con.AppPassword
	}

	fix.DB, err = openDB(appCon, fix.DBName)
	if err != nil {
		return err
	}
	fix.TX = db.NewTxManager(fix.DB)
	fix.User = appCon.User
	fix.Password = appCon.Password
	return nil
}

func (m *Manager) dropDB(ctx context.Context, fix *Fixture) error {
	err := fix.DB.Close()
	err = multierror.Append(err, fix.AdminDB.Close()).ErrorOrNil()
	if err != nil {
		o11y.LogError(ctx, "dbfixture: cleanup close", err)
	}

	if os.Getenv("TEST_PRESERVE_DB") != "" {
		return nil
	}

	name := pgx.Identifier{fix.DBName}.Sanitize()

	// kick out any lingering connections before the drop
	_, err = m.admin.ExecContext(ctx, fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM public;", name))
	if err != nil {
		return fmt.Errorf("revoke con: %w", err)
	}
	_, err = m.admin.ExecContext(ctx, fmt.Sprintf(
		`SELECT pid, pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid();`,
		fix.DBName))
	if err != nil {
		o11y.LogError(ctx, "dbfixture: cleanup terminate", err)
	}

	if _, err := m.admin.ExecContext(ctx, fmt.Sprintf("DROP DATABASE %s", name)); err != nil {
		return fmt.Errorf("drop db: %w", err)
	}
	return nil
}

// NoDBError marks connection failures so callers can skip rather than fail
// when no database is running locally.
type NoDBError struct {
	err error
}

func (e *NoDBError) Error() string {
	return fmt.Sprintf("no database available: %s", e.err)
}

func (e *NoDBError) Unwrap() error {
	return e.err
}

func openDB(con Connection, name string) (*sqlx.DB, error) {
	params := url.Values{}
	params.Set("connect_timeout", "5")
	params.Set("sslmode", "disable")

	uri := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(con.User, con.Password.Raw()),
		Host:     con.Host,
		Path:     name,
		RawQuery: params.Encode(),
	}

	d, err := sqlx.Open("pgx", uri.String())
	if err != nil {
		return nil, err
	}
	d.SetConnMaxLifetime(time.Hour)
	d.SetMaxOpenConns(10)
	d.SetMaxIdleConns(5)

	if err := d.Ping(); err != nil {
		return nil, &NoDBError{err: err}
	}
	return d, nil
}

func ignoreNop(err error) error {
	if err != nil && !errors.Is(err, db.ErrNop) {
		return err
	}
	return nil
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "not-so-random"
	}
	return hex.EncodeToString(b)
}
