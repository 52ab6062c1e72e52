package display

import (
	"context"
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "event-1", "ignored"))
	_, ok = store.Label("event-1")
	assert.False(t, ok)

	store.Attach("event-1")
	ok, _ = store.Exists(ctx, "event-1")
	assert.True(t, ok)

	require.NoError(t, store.Write(ctx, "event-1", "Starts in: 1h 0m"))
	label, ok := store.Label("event-1")
	assert.True(t, ok)
	assert.Equal(t, "Starts in: 1h 0m", label)

	store.Attach("event-1")
	label, _ = store.Label("event-1")
	assert.Equal(t, "Starts in: 1h 0m", label, "re-attaching keeps the label")

	store.Detach("event-1")
	ok, _ = store.Exists(ctx, "event-1")
	assert.False(t, ok)
}

func TestTargetKey(t *testing.T) {
	assert.Equal(t, "widgets:target:event-42", TargetKey("event-42"))
}

func TestRedisStoreUnreachableReturnsCacheError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	store := NewRedisStoreWithClient(client, nil, nil)
	defer store.Close()

	_, err := store.Exists(context.Background(), "event-1")
	require.Error(t, err)

	var cacheErr *errors.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "widgets:target:event-1", cacheErr.Key)
	assert.False(t, store.IsConnected(context.Background()))

	err = store.Write(context.Background(), "event-1", "Starts in: 0h 5m")
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "hset", cacheErr.Operation)
}
