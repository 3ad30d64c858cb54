package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

// BoltStore keeps every partition in its own bolt bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Open(ctx context.Context, partition string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(partition)); err != nil {
			return fmt.Errorf("failed to open partition %s: %w", partition, err)
		}
		return nil
	})
}

func (b *BoltStore) Lookup(ctx context.Context, partition, key string) ([]byte, bool, error) {
	var bytes []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// values are only valid inside the transaction
			bytes = make([]byte, len(v))
			copy(bytes, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read from bolt: %w", err)
	}
	return bytes, bytes != nil, nil
}

func (b *BoltStore) Put(ctx context.Context, partition, key string, bytes []byte) error {
	if bytes == nil {
		bytes = []byte{}
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(partition))
		if err != nil {
			return fmt.Errorf("failed to create partition %s: %w", partition, err)
		}
		if err := bucket.Put([]byte(key), bytes); err != nil {
			return fmt.Errorf("failed to write to bolt: %w", err)
		}
		return nil
	})
}

func (b *BoltStore) Partitions(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return names, nil
}

func (b *BoltStore) Delete(ctx context.Context, partition string) (bool, error) {
	deleted := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(partition))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete partition %s: %w", partition, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (b *BoltStore) Keys(ctx context.Context, partition string, cb func(string)) error {
	keys := make([]string, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(partition))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	// callback outside of the transaction, it may write to the db
	for _, key := range keys {
		cb(key)
	}
	return nil
}

func (b *BoltStore) Count(ctx context.Context, partition string) (int, error) {
	count := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket([]byte(partition)); bucket != nil {
			count = bucket.Stats().KeyN
		}
		return nil
	})
	return count, err
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
