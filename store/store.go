package store

import "context"

/**
 * Store keeps the plans, statuses and trace records of acquisitions as
 * opaque values under a prefix and a key. Get of a missing key returns a
 * nil value and no error.
 */
type Store interface {
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error

	// List calls iterator for each key under prefix, in key order, until it
	// returns false.
	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}

// Closer is implemented by stores holding a connection.
type Closer interface {
	Close() error
}

// Close closes s when it holds a connection.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
