package types

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineOptionsDefaults(t *testing.T) {
	opts := NewEngineOptions()

	assert.Equal(t, 1, opts.MaxConcurrentAcquisitions)
	assert.Equal(t, 30*time.Second, opts.ResponseTimeout)
	assert.Equal(t, 2*time.Second, opts.DrainTimeout)
	assert.Equal(t, time.Duration(0), opts.TickInterval)
	assert.True(t, opts.RecordTrace)
	assert.False(t, opts.MemStore)
	assert.Nil(t, opts.PostgresConfig)
	assert.NotNil(t, opts.Ctx)
}

func TestWithPostgresConfig(t *testing.T) {
	config := &PostgresConfig{
		Host:     "dbhost",
		Port:     5433,
		User:     "user",
		Password: "pass",
		Database: "db",
		SSLMode:  "require",
	}

	opts := NewEngineOptions()
	WithPostgresConfig(config)(opts)

	assert.Equal(t, config, opts.PostgresConfig)
}

func TestMultipleOptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := NewEngineOptions()
	for _, opt := range []EngineOption{
		WithContext(ctx),
		SetMaxConcurrentAcquisitions(3),
		SetResponseTimeout(time.Second),
		SetDrainTimeout(0),
		SetTickInterval(10 * time.Millisecond),
		DisableRecordTrace(),
		EnableMemStore(),
	} {
		opt(opts)
	}

	assert.Equal(t, ctx, opts.Ctx)
	assert.Equal(t, 3, opts.MaxConcurrentAcquisitions)
	assert.Equal(t, time.Second, opts.ResponseTimeout)
	assert.Equal(t, time.Duration(0), opts.DrainTimeout)
	assert.Equal(t, 10*time.Millisecond, opts.TickInterval)
	assert.False(t, opts.RecordTrace)
	assert.True(t, opts.MemStore)
}
