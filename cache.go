package modforge

import (
	"context"
	"sync"
	"time"
)

// CachePort is the key-value cache contract consumed by the state registry
// and the compiled registry's fast path. Implementations must be safe for
// concurrent use.
type CachePort interface {
	// Get retrieves an item. The second return is false on miss or when
	// the item has expired.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores an item with a time-to-live. A zero or negative ttl
	// means no expiration.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes an item. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Flush removes all items.
	Flush(ctx context.Context) error
}

// MemoryCache implements CachePort with in-memory storage and a background
// cleanup routine for expired entries.
type MemoryCache struct {
	items      map[string]cacheItem
	mutex      sync.RWMutex
	maxItems   int
	interval   time.Duration
	cancelFunc context.CancelFunc
}

type cacheItem struct {
	value      any
	expiration time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithMaxItems caps the number of cached entries; Set returns ErrCacheFull
// once the cap is reached. Zero means unbounded.
func WithMaxItems(n int) MemoryCacheOption {
	return func(c *MemoryCache) { c.maxItems = n }
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) { c.interval = d }
}

// NewMemoryCache creates a memory cache. Call Start to begin expired-entry
// cleanup and Close to stop it; Get already ignores expired entries, so
// Start is optional for short-lived uses.
func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		items:    make(map[string]cacheItem),
		interval: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the background cleanup routine.
func (c *MemoryCache) Start(_ context.Context) error {
	cleanupCtx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel
	go c.startCleanupTimer(cleanupCtx)
	return nil
}

// Close stops the cleanup routine.
func (c *MemoryCache) Close(_ context.Context) error {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		return nil, false
	}
	return item.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxItems > 0 && len(c.items) >= c.maxItems {
		if _, exists := c.items[key]; !exists {
			return ErrCacheFull
		}
	}

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.items[key] = cacheItem{value: value, expiration: exp}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
	return nil
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]cacheItem)
	return nil
}

func (c *MemoryCache) startCleanupTimer(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *MemoryCache) deleteExpired() {
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, item := range c.items {
		if !item.expiration.IsZero() && now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}
