package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(cfg Config) (*TTLCache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}
	return NewTTLCache[string](cfg, clock, nil), clock
}

func countingLoader(calls *int32, value string) Loader[string] {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestGetOrFetchServesFreshEntry(t *testing.T) {
	c, clock := newTestCache(Config{Enabled: true})
	ctx := context.Background()
	var calls int32

	v, err := c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "first"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	clock.Advance(time.Hour - time.Millisecond)
	v, err = c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "second"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetchReloadsAtTTLBoundary(t *testing.T) {
	c, clock := newTestCache(Config{Enabled: true})
	ctx := context.Background()
	var calls int32

	_, err := c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "first"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	v, err := c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "second"))
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestGetOrFetchDoesNotCacheFailures(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: true})
	ctx := context.Background()
	loadErr := errors.New("boom")

	_, err := c.GetOrFetch(ctx, "k", time.Hour, func(ctx context.Context) (string, error) {
		return "", loadErr
	})
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 0, c.Len())

	var calls int32
	v, err := c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetchDisabledAlwaysLoads(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: false})
	ctx := context.Background()
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := c.GetOrFetch(ctx, "k", time.Hour, countingLoader(&calls, "v"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestSetEnabledFalseDropsEntries(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: true})
	var calls int32

	_, err := c.GetOrFetch(context.Background(), "k", time.Hour, countingLoader(&calls, "v"))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	assert.Equal(t, 0, c.Len())
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: true})
	ctx := context.Background()
	var calls int32

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.GetOrFetch(ctx, key, time.Hour, countingLoader(&calls, key))
		require.NoError(t, err)
	}
	c.Delete("a")
	assert.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestGetOrFetchDedupsInFlightLoads(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: true, DedupInFlight: true})
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const callers = 8
	var started, done sync.WaitGroup
	results := make([]string, callers)
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			v, err := c.GetOrFetch(ctx, "k", time.Hour, loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
	// Late arrivals hit the stored entry, so one load total either way.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetchSharedLoadSurvivesCallerCancel(t *testing.T) {
	c, _ := newTestCache(Config{Enabled: true, DedupInFlight: true})
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	loader := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "value", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		value string
		err   error
	}
	first := make(chan result, 1)
	go func() {
		v, err := c.GetOrFetch(ctx, "k", time.Hour, loader)
		first <- result{v, err}
	}()

	<-started
	second := make(chan result, 1)
	go func() {
		v, err := c.GetOrFetch(context.Background(), "k", time.Hour, loader)
		second <- result{v, err}
	}()

	cancel()
	close(release)

	for _, ch := range []chan result{first, second} {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, "value", r.value)
	}
	assert.Equal(t, 1, c.Len())
}
