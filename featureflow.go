package featureflow

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/featureflow/runtime"
	"github.com/warriorguo/featureflow/store"
	"github.com/warriorguo/featureflow/store/mem"
	"github.com/warriorguo/featureflow/store/postgres"
	"github.com/warriorguo/featureflow/types"
)

// NewEngine creates an acquisition engine with the given options.
func NewEngine(opts ...types.EngineOption) (types.Engine, error) {
	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	s, err := NewStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return runtime.NewEngine(s, options), nil
}

// NewStore picks the record store: PostgresConfig takes precedence over
// MemStore, and the memory store is the fallback.
func NewStore(options *types.EngineOptions) (store.Store, error) {
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}

		s, err := postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
		return s, nil
	}
	if !options.MemStore {
		log.Debugf("no store configured, records are kept in memory")
	}
	return mem.NewMemStore(), nil
}
