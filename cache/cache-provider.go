package cache

import (
	"context"
	"sort"
	"sync"
)

// Store is the storage for cached responses.
// Entries live in named partitions. Each entry maps a request key to the serialized
// response ([]byte). Partitions are created explicitly with Open or implicitly by Put.
//
// Implementations must be thread-safe!
// A Put must replace an existing entry atomically (readers see either the old or the new
// value, never a mix).
type Store interface {
	// Open creates the partition if it does not exist yet.
	Open(ctx context.Context, partition string) error
	// Lookup returns the stored bytes for the key in the partition.
	// The boolean is false if the partition or the entry does not exist.
	Lookup(ctx context.Context, partition, key string) ([]byte, bool, error)
	// Put stores the bytes under the key, replacing any previous entry.
	// The partition is created if needed.
	Put(ctx context.Context, partition, key string, bytes []byte) error
	// Partitions returns the names of all existing partitions.
	Partitions(ctx context.Context) ([]string, error)
	// Delete removes the partition with all its entries.
	// It returns false if the partition did not exist.
	Delete(ctx context.Context, partition string) (bool, error)
	// Keys calls the given callback for each key in the partition.
	Keys(ctx context.Context, partition string, cb func(string)) error
	// Count returns the number of entries in the partition.
	Count(ctx context.Context, partition string) (int, error)
	// Close releases the resources held by the store.
	Close() error
}

type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

// NewMemStore creates a store keeping everything in memory.
func NewMemStore() MemStore {
	return MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemStore) Open(ctx context.Context, partition string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[partition]; !ok {
		m.db[partition] = make(map[string][]byte)
	}
	return nil
}

func (m MemStore) Lookup(ctx context.Context, partition, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries, ok := m.db[partition]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := entries[key]
	return bytes, ok, nil
}

func (m MemStore) Put(ctx context.Context, partition, key string, bytes []byte) error {
	// keep a private copy, the caller may reuse the slice
	stored := make([]byte, len(bytes))
	copy(stored, bytes)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.db[partition]
	if !ok {
		entries = make(map[string][]byte)
		m.db[partition] = entries
	}
	entries[key] = stored
	return nil
}

func (m MemStore) Partitions(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemStore) Delete(ctx context.Context, partition string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.db[partition]
	delete(m.db, partition)
	return ok, nil
}

func (m MemStore) Keys(ctx context.Context, partition string, cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db[partition]))
	for key := range m.db[partition] {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	// callback outside of the lock, it may call back into the store
	for _, key := range keys {
		cb(key)
	}
	return nil
}

func (m MemStore) Count(ctx context.Context, partition string) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db[partition]), nil
}

func (m MemStore) Close() error {
	return nil
}

var (
	_ Store = MemStore{}
	_ Store = SQLiteStore{}
	_ Store = (*BoltStore)(nil)
	_ Store = (*RedisStore)(nil)
)
