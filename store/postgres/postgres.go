package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/spf13/cast"

	"github.com/warriorguo/featureflow/store"
)

var (
	_ store.Store  = &pgStore{}
	_ store.Closer = &pgStore{}
)

// Rows are addressed by (scope, name), which map onto the store's
// (prefix, key) pair. Listing is ordered by name so record traces come
// back in path order.
const table = "featureflow_kv"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + table + ` (
		scope      TEXT NOT NULL,
		name       TEXT NOT NULL,
		payload    BYTEA,
		written_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT ` + table + `_pk PRIMARY KEY (scope, name)
	)`,
	`CREATE INDEX IF NOT EXISTS ` + table + `_scope ON ` + table + ` (scope)`,
}

var (
	qSelect = `SELECT payload FROM ` + table + ` WHERE scope = $1 AND name = $2`
	qUpsert = `INSERT INTO ` + table + ` AS t (scope, name, payload) VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT ` + table + `_pk
		DO UPDATE SET payload = EXCLUDED.payload, written_at = now()`
	qDelete = `DELETE FROM ` + table + ` WHERE scope = $1 AND name = $2`
	qNames  = `SELECT name FROM ` + table + ` WHERE scope = $1 ORDER BY name`
)

/**
 * Config describes how to reach the record database. It is filled from
 * the engine's PostgresConfig or from a key=value DSN.
 */
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// one of disable, require, verify-ca, verify-full
	SSLMode string
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "featureflow",
		SSLMode:  "disable",
	}
}

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings and makes sure the table exists. The
// returned store owns the connection and closes it through store.Close.
func NewPostgresStore(config *Config) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, errors.Annotatef(err, "open postgres %s", config.addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err == nil {
		err = migrate(ctx, db)
	}
	if err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "postgres %s", config.addr())
	}
	return &pgStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection; the caller keeps
// owning it.
func NewPostgresStoreWithDB(db *sql.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.NotValidf("nil db")
	}
	if err := migrate(context.Background(), db); err != nil {
		return nil, errors.Trace(err)
	}
	return &pgStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Annotatef(err, "migrate %s", table)
		}
	}
	return nil
}

func (p *pgStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	var payload []byte
	switch err := p.db.QueryRowContext(ctx, qSelect, prefix, key).Scan(&payload); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, errors.Annotatef(err, "get %s|%s", prefix, key)
	}
	return payload, nil
}

func (p *pgStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, qUpsert, prefix, key, value)
	return errors.Annotatef(err, "set %s|%s", prefix, key)
}

func (p *pgStore) Remove(ctx context.Context, prefix, key string) error {
	_, err := p.db.ExecContext(ctx, qDelete, prefix, key)
	return errors.Annotatef(err, "remove %s|%s", prefix, key)
}

func (p *pgStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	rows, err := p.db.QueryContext(ctx, qNames, prefix)
	if err != nil {
		return errors.Annotatef(err, "list %s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Annotatef(err, "scan name in %s", prefix)
		}
		if !iterator(name) {
			return nil
		}
	}
	return errors.Trace(rows.Err())
}

func (p *pgStore) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (c *Config) addr() string {
	return c.Host + ":" + cast.ToString(c.Port)
}

// DSN renders c in lib/pq's key=value form. An empty password is left out.
func (c *Config) DSN() string {
	pairs := []string{
		"host=" + c.Host,
		"port=" + cast.ToString(c.Port),
		"user=" + c.User,
	}
	if c.Password != "" {
		pairs = append(pairs, "password="+c.Password)
	}
	pairs = append(pairs, "dbname="+c.Database, "sslmode="+c.SSLMode)
	return strings.Join(pairs, " ")
}

// Validate checks c and fills in the ssl mode when it is empty.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.NotValidf("empty host")
	case c.Port <= 0 || c.Port > 65535:
		return errors.NotValidf("port %d", c.Port)
	case c.User == "":
		return errors.NotValidf("empty user")
	case c.Database == "":
		return errors.NotValidf("empty database")
	}
	switch c.SSLMode {
	case "":
		c.SSLMode = "disable"
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return errors.NotValidf("sslmode %s", c.SSLMode)
	}
	return nil
}

// ParseDSN reads a key=value DSN on top of DefaultConfig. Unknown keys
// and words without '=' are ignored.
func ParseDSN(dsn string) (*Config, error) {
	config := DefaultConfig()
	fields := map[string]*string{
		"host":     &config.Host,
		"user":     &config.User,
		"password": &config.Password,
		"dbname":   &config.Database,
		"sslmode":  &config.SSLMode,
	}
	for _, word := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(word, "=")
		if !ok {
			continue
		}
		if k == "port" {
			port, err := cast.ToIntE(v)
			if err != nil {
				return nil, errors.NotValidf("port %q", v)
			}
			config.Port = port
			continue
		}
		if field, known := fields[k]; known {
			*field = v
		}
	}
	return config, config.Validate()
}
