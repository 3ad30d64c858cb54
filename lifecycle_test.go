package steppercache

import (
	"context"
	"testing"

	"github.com/always-cache/stepper-cache/cache"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionNames(t *testing.T) {
	c := newTestCache(t, Config{})
	assert.Equal(t, "stepper-static-v1", c.StaticPartition())
	assert.Equal(t, "stepper-response-v1", c.DynamicPartition())

	c = newTestCache(t, Config{Prefix: "forum-", Version: "v7"})
	assert.Equal(t, "forum-static-v7", c.StaticPartition())
	assert.Equal(t, "forum-response-v7", c.DynamicPartition())
}

func TestInstallOpensPartitions(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	logger := zerolog.Nop()
	c := CreateCache(Config{Store: store, Logger: &logger})
	defer c.Close()
	assert.False(t, c.Installed())

	require.NoError(t, c.Install(ctx))
	assert.True(t, c.Installed())

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stepper-response-v1", "stepper-static-v1"}, partitions)
}

func TestActivateDeletesOldVersions(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemStore()
	for _, p := range []string{"stepper-static-v0", "stepper-response-v0", "stepper-response-v1", "other-cache"} {
		require.NoError(t, store.Put(ctx, p, "http://forum.example.com/", []byte("x")))
	}
	c := newTestCache(t, Config{Store: store, Version: "v1"})

	deleted, err := c.Activate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stepper-static-v0", "stepper-response-v0"}, deleted)

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other-cache", "stepper-response-v1", "stepper-static-v1"}, partitions)

	// entries of the current version survive
	n, err := store.Count(ctx, "stepper-response-v1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// nothing left to do the second time
	deleted, err = c.Activate(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}
