// Package cache caches unwrapped document keys for the envelope key strategy.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

// KeyCache implements interfaces.KeyCache on top of a storage backend. Keys are
// held as types.SecureBytes and wiped when they leave the backend.
type KeyCache struct {
	config  types.CacheConfig
	store   interfaces.Storage
	logger  zerolog.Logger
	enabled atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64

	mu          sync.Mutex
	size        int
	lastPurged  time.Time
	lastAccess  time.Time
	lastUpdated time.Time

	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewKeyCache creates a key cache and starts its cleanup routine
func NewKeyCache(config types.CacheConfig, store interfaces.Storage) *KeyCache {
	c := &KeyCache{
		config: config,
		store:  store,
		logger: log.With().Str("component", "key_cache").Logger(),
		done:   make(chan struct{}),
	}
	c.enabled.Store(config.Enabled && store != nil)

	now := time.Now().UTC()
	c.lastPurged, c.lastAccess, c.lastUpdated = now, now, now

	c.startCleanupRoutine()

	c.logger.Info().
		Bool("enabled", c.enabled.Load()).
		Dur("ttl", config.GetEffectiveTTL()).
		Msg("Key cache initialized")

	return c
}

// startCleanupRoutine periodically removes expired entries from the backend
func (c *KeyCache) startCleanupRoutine() {
	c.cleanupTicker = time.NewTicker(5 * time.Minute)

	go func() {
		for {
			select {
			case <-c.cleanupTicker.C:
				if !c.IsEnabled() {
					continue
				}
				expired, err := c.store.ClearExpiredKeys(context.Background())
				if err != nil {
					c.logger.Warn().Err(err).Msg("Key cache cleanup failed")
					continue
				}
				c.mu.Lock()
				c.lastPurged = time.Now().UTC()
				c.size -= expired
				if c.size < 0 {
					c.size = 0
				}
				c.mu.Unlock()
				if expired > 0 {
					c.logger.Debug().Int("expired", expired).Msg("Cache cleanup completed")
				}
			case <-c.done:
				return
			}
		}
	}()
}

// IsEnabled returns whether the cache is currently enabled
func (c *KeyCache) IsEnabled() bool {
	return c.enabled.Load()
}

// Disable deactivates the cache and wipes all entries
func (c *KeyCache) Disable() {
	c.enabled.Store(false)
	if c.store != nil {
		c.wipe(context.Background())
	}
}

// Get returns a copy of the cached key. The caller owns the returned slice.
func (c *KeyCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.IsEnabled() {
		return nil, false
	}

	c.touch(false)

	var entry types.CacheEntry
	if err := c.store.Get(ctx, key, &entry); err != nil {
		c.misses.Add(1)
		c.logger.Trace().Err(err).Msg("Key cache miss")
		return nil, false
	}

	if entry.Value == nil {
		c.misses.Add(1)
		return nil, false
	}
	value := entry.Value.Get()
	if len(value) == 0 {
		c.misses.Add(1)
		c.logger.Error().Msg("Invalid cache entry: empty or wiped value")
		return nil, false
	}

	c.hits.Add(1)
	return value, true
}

// Set caches a copy of value under key for the configured TTL
func (c *KeyCache) Set(ctx context.Context, key string, value []byte) {
	if !c.IsEnabled() || len(value) == 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	entry := &types.CacheEntry{Value: types.NewSecureBytes(value)}
	if err := c.store.Set(ctx, key, entry, c.config.GetEffectiveTTL()); err != nil {
		entry.Clear()
		c.logger.Error().Err(err).Msg("Failed to cache document key")
		return
	}

	c.mu.Lock()
	c.size++
	c.mu.Unlock()
	c.touch(true)

	c.logger.Trace().
		Int("valueSize", len(value)).
		Msg("Document key cached")
}

// Delete removes a key and wipes its value
func (c *KeyCache) Delete(ctx context.Context, key string) {
	if !c.IsEnabled() {
		return
	}

	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to delete cache entry")
		return
	}

	c.mu.Lock()
	if c.size > 0 {
		c.size--
	}
	c.mu.Unlock()
	c.touch(true)
}

// Clear wipes every cached key and resets statistics
func (c *KeyCache) Clear(ctx context.Context) {
	if !c.IsEnabled() {
		return
	}
	c.wipe(ctx)
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *KeyCache) wipe(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear key cache")
		return
	}
	c.mu.Lock()
	c.size = 0
	c.mu.Unlock()
	c.touch(true)
}

func (c *KeyCache) touch(updated bool) {
	now := time.Now().UTC()
	c.mu.Lock()
	c.lastAccess = now
	if updated {
		c.lastUpdated = now
	}
	c.mu.Unlock()
}

// GetStats returns current cache statistics
func (c *KeyCache) GetStats(ctx context.Context) types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CacheStats{
		Size:        c.size,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		LastPurged:  c.lastPurged,
		LastAccess:  c.lastAccess,
		LastUpdated: c.lastUpdated,
	}
}

// Shutdown stops the cleanup routine and wipes all entries
func (c *KeyCache) Shutdown(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cleanupTicker.Stop()
		close(c.done)
	})
	if c.store == nil {
		return nil
	}
	c.enabled.Store(false)
	return c.store.Clear(ctx)
}
