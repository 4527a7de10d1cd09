package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/featureflow/store"
)

// openTestStore connects with POSTGRES_* overrides and skips when no
// server is reachable.
func openTestStore(t *testing.T) store.Store {
	config := DefaultConfig()
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		config.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("POSTGRES_PORT")); err == nil {
		config.Port = port
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		config.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		config.Password = password
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		config.Database = db
	}

	s, err := NewPostgresStore(config)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { store.Close(s) })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	prefix := "/record/test-" + t.Name()

	assert.Nil(t, s.Set(ctx, prefix, "root.b@data", []byte("b")))
	assert.Nil(t, s.Set(ctx, prefix, "root.a@signal", []byte("a")))
	assert.Nil(t, s.Set(ctx, prefix, "root.a@signal", []byte("a2")))

	value, err := s.Get(ctx, prefix, "root.a@signal")
	assert.Nil(t, err)
	assert.Equal(t, []byte("a2"), value)

	value, err = s.Get(ctx, prefix, "missing")
	assert.Nil(t, err)
	assert.Nil(t, value)

	var keys []string
	assert.Nil(t, s.List(ctx, prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{"root.a@signal", "root.b@data"}, keys)

	assert.Nil(t, s.Remove(ctx, prefix, "root.a@signal"))
	assert.Nil(t, s.Remove(ctx, prefix, "root.b@data"))
	assert.Nil(t, s.Remove(ctx, prefix, "never-set"))
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	assert.Nil(t, c.Validate())

	c.SSLMode = ""
	assert.Nil(t, c.Validate())
	assert.Equal(t, "disable", c.SSLMode)

	c.SSLMode = "sometimes"
	assert.True(t, errors.IsNotValid(c.Validate()))

	c = DefaultConfig()
	c.Port = 70000
	assert.NotNil(t, c.Validate())

	c = DefaultConfig()
	c.Host = ""
	assert.NotNil(t, c.Validate())
}

func TestParseDSN(t *testing.T) {
	c, err := ParseDSN("host=db.lab port=6543 user=scope password=secret dbname=acq sslmode=require")
	assert.Nil(t, err)
	assert.Equal(t, &Config{
		Host:     "db.lab",
		Port:     6543,
		User:     "scope",
		Password: "secret",
		Database: "acq",
		SSLMode:  "require",
	}, c)
	assert.Equal(t, "host=db.lab port=6543 user=scope password=secret dbname=acq sslmode=require", c.DSN())

	c, err = ParseDSN("host=other")
	assert.Nil(t, err)
	assert.Equal(t, 5432, c.Port)
	assert.Equal(t, "featureflow", c.Database)

	_, err = ParseDSN("port=abc")
	assert.NotNil(t, err)
}
