package types

import (
	"context"
	"time"

	"github.com/mcuadros/go-defaults"
)

func NewEngineOptions() *EngineOptions {
	opts := &EngineOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type EngineOptions struct {
	Ctx context.Context
	/**
	 * default: 1
	 * how many acquisitions the engine runs at the same time. A microscope
	 * has one set of hardware, so anything above 1 only makes sense for
	 * simulated devices.
	 */
	MaxConcurrentAcquisitions int `default:"1"`
	/**
	 * default: 30s
	 * how long the signal goroutine waits for the data side verdict of a
	 * response node. Zero waits forever.
	 */
	ResponseTimeout time.Duration `default:"30s"`
	/**
	 * default: 2s
	 * how long the data goroutine keeps serving armed nodes after the
	 * signal side has completed.
	 */
	DrainTimeout time.Duration `default:"2s"`
	/**
	 * default: 0
	 * pause between two signal ticks.
	 */
	TickInterval time.Duration `default:"0s"`
	/**
	 * default: true, store a trace record per node and phase.
	 */
	RecordTrace bool `default:"true"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// PostgreSQL store configuration
	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type EngineOption func(*EngineOptions)

func WithContext(ctx context.Context) EngineOption {
	return func(opts *EngineOptions) {
		opts.Ctx = ctx
	}
}

func SetMaxConcurrentAcquisitions(concurrency int) EngineOption {
	return func(opts *EngineOptions) {
		opts.MaxConcurrentAcquisitions = concurrency
	}
}

func SetResponseTimeout(timeout time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.ResponseTimeout = timeout
	}
}

func SetDrainTimeout(timeout time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.DrainTimeout = timeout
	}
}

func SetTickInterval(interval time.Duration) EngineOption {
	return func(opts *EngineOptions) {
		opts.TickInterval = interval
	}
}

func DisableRecordTrace() EngineOption {
	return func(opts *EngineOptions) {
		opts.RecordTrace = false
	}
}

func EnableMemStore() EngineOption {
	return func(opts *EngineOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the engine to use PostgreSQL store
func WithPostgresConfig(config *PostgresConfig) EngineOption {
	return func(opts *EngineOptions) {
		opts.PostgresConfig = config
	}
}
