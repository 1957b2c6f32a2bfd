package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Load PostgresSQL Driver

	"github.com/hl8/datalayer/config/secret"
	"github.com/hl8/datalayer/o11y"
)

type Config struct {
	Host string
	Port int
	User string
	Pass secret.String
	Name string
	SSL  bool

	// ConnectTimeout bounds each connection attempt. Defaults to 5s.
	ConnectTimeout time.Duration
	// MaxElapsedTime bounds the total startup retry time. Defaults to 30s.
	MaxElapsedTime time.Duration
	// MaxOpen and MaxIdle bound the pool. Defaults chosen to protect the
	// db server from possibly problematic load during spikes in db io lag.
	MaxOpen int
	MaxIdle int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxElapsedTime == 0 {
		c.MaxElapsedTime = 30 * time.Second
	}
	if c.MaxOpen == 0 {
		c.MaxOpen = 100
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 50
	}
	return c
}

// New connects to the named database, retrying transient failures with
// exponential backoff. Failure to connect within the configured elapsed
// time is returned to the caller, which is expected to treat it as fatal.
func New(ctx context.Context, dbName, appName string, options Config) (db *sqlx.DB, err error) {
	ctx, span := o11y.StartSpan(ctx, "config: connect to database")
	defer o11y.End(span, &err)

	options = options.withDefaults()
	host := fmt.Sprintf("%s:%d", options.Host, options.Port)

	span.AddField("database", dbName)
	span.AddField("host", host)
	span.AddField("dbname", options.Name)
	span.AddField("username", options.User)

	params := url.Values{}
	params.Set("connect_timeout", fmt.Sprintf("%d", int(options.ConnectTimeout.Seconds())))
	params.Set("application_name", appName)
	if options.SSL {
		params.Set("sslmode", "require")
	} else {
		params.Set("sslmode", "disable")
	}
	uri := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(options.User, options.Pass.Raw()),
		Host:     host,
		Path:     options.Name,
		RawQuery: params.Encode(),
	}
	db, err = sqlx.Open("postgres", uri.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxOpenConns(options.MaxOpen)
	db.SetMaxIdleConns(options.MaxIdle)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = options.MaxElapsedTime
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return db, nil
}
