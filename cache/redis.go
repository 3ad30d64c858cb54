package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every partition in a redis hash.
// The names of the partitions are tracked in a set.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds configuration for Redis store
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix for all redis keys
}

// NewRedisStore creates a new Redis-based store
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "stepper:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (rs *RedisStore) partitionsKey() string {
	return rs.prefix + "partitions"
}

func (rs *RedisStore) entriesKey(partition string) string {
	return rs.prefix + "partition:" + partition
}

func (rs *RedisStore) Open(ctx context.Context, partition string) error {
	if err := rs.client.SAdd(ctx, rs.partitionsKey(), partition).Err(); err != nil {
		return fmt.Errorf("failed to open partition %s: %w", partition, err)
	}
	return nil
}

func (rs *RedisStore) Lookup(ctx context.Context, partition, key string) ([]byte, bool, error) {
	bytes, err := rs.client.HGet(ctx, rs.entriesKey(partition), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from Redis: %w", err)
	}
	return bytes, true, nil
}

func (rs *RedisStore) Put(ctx context.Context, partition, key string, bytes []byte) error {
	pipe := rs.client.TxPipeline()
	pipe.SAdd(ctx, rs.partitionsKey(), partition)
	pipe.HSet(ctx, rs.entriesKey(partition), key, bytes)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store in Redis: %w", err)
	}
	return nil
}

func (rs *RedisStore) Partitions(ctx context.Context) ([]string, error) {
	names, err := rs.client.SMembers(ctx, rs.partitionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	return names, nil
}

func (rs *RedisStore) Delete(ctx context.Context, partition string) (bool, error) {
	pipe := rs.client.TxPipeline()
	removed := pipe.SRem(ctx, rs.partitionsKey(), partition)
	pipe.Del(ctx, rs.entriesKey(partition))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete partition %s: %w", partition, err)
	}
	return removed.Val() > 0, nil
}

func (rs *RedisStore) Keys(ctx context.Context, partition string, cb func(string)) error {
	var cursor uint64
	for {
		keys, next, err := rs.client.HScan(ctx, rs.entriesKey(partition), cursor, "*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan Redis keys: %w", err)
		}
		// HSCAN returns field/value pairs
		for i := 0; i < len(keys); i += 2 {
			cb(keys[i])
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (rs *RedisStore) Count(ctx context.Context, partition string) (int, error) {
	n, err := rs.client.HLen(ctx, rs.entriesKey(partition)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

// Close cleanly shuts down the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
