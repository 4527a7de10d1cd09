package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/featureflow/store"
)

var (
	_ store.Store = &memStore{}
)

func NewMemStore() store.Store {
	return newMemStore(defaultNoErr)
}

// NewMemStoreWithErrHandler returns a store whose every call returns
// errHandler(), for testing how callers cope with a failing store.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return newMemStore(errHandler)
}

func newMemStore(errHandler func() error) *memStore {
	return &memStore{
		buckets:        make(map[string]map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore keeps one bucket per prefix in memory. It is meant for
 * simulation runs and tests; records are gone with the process.
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	buckets map[string]map[string][]byte
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("\n----------\n")
	for _, prefix := range sortedKeys(m.buckets) {
		bucket := m.buckets[prefix]
		for _, key := range sortedKeys(bucket) {
			sb.WriteString(fmt.Sprintf("%s|%s: %s\n", prefix, key, string(bucket[key])))
		}
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.buckets[prefix][key]
	if !exists {
		return nil, m.mockErrHandler()
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, m.mockErrHandler()
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, exists := m.buckets[prefix]
	if !exists {
		bucket = make(map[string][]byte)
		m.buckets[prefix] = bucket
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	bucket[key] = cp
	return m.mockErrHandler()
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, exists := m.buckets[prefix]; exists {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(m.buckets, prefix)
		}
	}
	return m.mockErrHandler()
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.Lock()
	keys := sortedKeys(m.buckets[prefix])
	m.mu.Unlock()

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return m.mockErrHandler()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
