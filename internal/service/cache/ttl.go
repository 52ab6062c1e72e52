package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/hololive-widget-go/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader produces the payload for a missing or expired key.
type Loader[V any] func(ctx context.Context) (V, error)

// Entry is a cached payload stamped with the instant it was stored.
type Entry[V any] struct {
	Timestamp time.Time
	Payload   V
}

type Config struct {
	Enabled bool
	// DedupInFlight makes concurrent callers of the same key share one load.
	DedupInFlight bool
}

// TTLCache maps a request signature to a payload. Expiry is evaluated lazily:
// an entry is stale once now - Timestamp >= ttl and is evicted by the lookup
// that notices it.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]Entry[V]
	enabled bool
	dedup   bool
	group   singleflight.Group
	clock   util.Clock
	logger  *zap.Logger
}

func NewTTLCache[V any](cfg Config, clock util.Clock, logger *zap.Logger) *TTLCache[V] {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TTLCache[V]{
		entries: make(map[string]Entry[V]),
		enabled: cfg.Enabled,
		dedup:   cfg.DedupInFlight,
		clock:   clock,
		logger:  logger,
	}
}

// GetOrFetch returns the cached payload for key when it is younger than ttl.
// Otherwise it runs loader and stores the result on success. Loader errors
// are returned unchanged and never cached.
func (c *TTLCache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, loader Loader[V]) (V, error) {
	if !c.Enabled() {
		return loader(ctx)
	}

	if payload, ok := c.lookup(key, ttl); ok {
		c.logger.Debug("Cache hit", zap.String("key", key))
		return payload, nil
	}

	if !c.dedup {
		return c.load(ctx, key, loader)
	}

	// The shared load outlives any single caller's cancellation; a caller
	// that cancels still waits for it to finish.
	result, err, shared := c.group.Do(key, func() (any, error) {
		if payload, ok := c.lookup(key, ttl); ok {
			return payload, nil
		}
		return c.load(context.WithoutCancel(ctx), key, loader)
	})
	if shared {
		c.logger.Debug("Cache load shared with in-flight caller", zap.String("key", key))
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

func (c *TTLCache[V]) lookup(key string, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(entry.Timestamp) >= ttl {
		delete(c.entries, key)
		c.logger.Debug("Cache entry expired", zap.String("key", key), zap.Duration("ttl", ttl))
		return zero, false
	}
	return entry.Payload, true
}

func (c *TTLCache[V]) load(ctx context.Context, key string, loader Loader[V]) (V, error) {
	payload, err := loader(ctx)
	if err != nil {
		c.logger.Debug("Cache load failed", zap.String("key", key), zap.Error(err))
		return payload, err
	}

	c.mu.Lock()
	if c.enabled {
		c.entries[key] = Entry[V]{Timestamp: c.clock.Now(), Payload: payload}
	}
	c.mu.Unlock()

	return payload, nil
}

func (c *TTLCache[V]) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled toggles caching globally. Disabling drops every entry.
func (c *TTLCache[V]) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.entries = make(map[string]Entry[V])
	}
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
	c.logger.Debug("Cache cleared")
}

// Len counts stored entries, including expired ones not yet looked up.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
