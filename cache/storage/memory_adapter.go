// Package storage provides backends for the key cache
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/types"
)

// ErrKeyNotFound is returned when a key is absent or expired
var ErrKeyNotFound = errors.New("cache: key not found")

// DefaultMaxSize bounds an adapter created with a non-positive size
const DefaultMaxSize = 1000

// sweepInterval is how often expired entries are wiped in the background
const sweepInterval = time.Minute

type slot struct {
	entry   *types.CacheEntry
	expires time.Time // zero means no expiry
	used    time.Time
}

func (s *slot) expired(now time.Time) bool {
	return !s.expires.IsZero() && now.After(s.expires)
}

// MemoryAdapter implements interfaces.Storage in process memory.
// Values must be *types.CacheEntry; they are wiped when removed.
type MemoryAdapter struct {
	mu      sync.Mutex
	slots   map[string]*slot
	stats   types.CacheStats
	maxSize int
	clock   clock.Clock
	logger  zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryAdapter creates an adapter holding at most maxSize entries and
// starts its expiry sweep. Call Shutdown to stop it.
func NewMemoryAdapter(maxSize int, clk clock.Clock) *MemoryAdapter {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if clk == nil {
		clk = clock.Real()
	}

	now := clk.Now()
	a := &MemoryAdapter{
		slots:   make(map[string]*slot),
		maxSize: maxSize,
		clock:   clk,
		stats:   types.CacheStats{LastAccess: now, LastUpdated: now, LastPurged: now},
		logger:  log.With().Str("component", "memory_cache").Logger(),
		stop:    make(chan struct{}),
	}
	go a.sweep()

	a.logger.Debug().Int("max_size", maxSize).Msg("Memory cache adapter initialized")
	return a
}

func (a *MemoryAdapter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := a.ClearExpiredKeys(context.Background()); err != nil {
				a.logger.Warn().Err(err).Msg("Expired entry cleanup failed")
			}
		case <-a.stop:
			return
		}
	}
}

// drop wipes and removes a slot. Caller must hold a.mu.
func (a *MemoryAdapter) drop(key string) {
	if s, ok := a.slots[key]; ok {
		s.entry.Clear()
		delete(a.slots, key)
	}
	a.stats.Size = len(a.slots)
}

// makeRoom evicts least recently used entries so one more fits, plus a tenth
// of the capacity as headroom. Caller must hold a.mu.
func (a *MemoryAdapter) makeRoom() {
	n := len(a.slots) - a.maxSize + 1 + a.maxSize/10
	if n <= 0 || len(a.slots) < a.maxSize {
		return
	}

	keys := make([]string, 0, len(a.slots))
	for k := range a.slots {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y string) int {
		return a.slots[x].used.Compare(a.slots[y].used)
	})

	n = min(n, len(keys))
	for _, k := range keys[:n] {
		a.drop(k)
	}
	a.stats.Evictions += int64(n)
	a.logger.Debug().Int("evicted_count", n).Int("current_size", len(a.slots)).Msg("LRU eviction completed")
}

// Get copies the entry stored under key into value, which must be a *types.CacheEntry
func (a *MemoryAdapter) Get(ctx context.Context, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, ok := value.(*types.CacheEntry)
	if !ok {
		return fmt.Errorf("cache: value must be *types.CacheEntry, got %T", value)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	a.stats.LastAccess = now

	s, ok := a.slots[key]
	if ok && s.expired(now) {
		a.drop(key)
		a.stats.LastUpdated = now
		ok = false
	}
	if !ok {
		a.stats.Misses++
		return ErrKeyNotFound
	}

	s.used = now
	out.Value = s.entry.Value
	out.Version = s.entry.Version
	a.stats.Hits++
	return nil
}

// Set stores a *types.CacheEntry. A non-positive ttl never expires.
func (a *MemoryAdapter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, ok := value.(*types.CacheEntry)
	if !ok || entry == nil {
		return fmt.Errorf("cache: value must be *types.CacheEntry, got %T", value)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if old, exists := a.slots[key]; exists {
		if old.entry != entry {
			old.entry.Clear()
		}
	} else {
		a.makeRoom()
	}

	s := &slot{entry: entry, used: now}
	if ttl > 0 {
		s.expires = now.Add(ttl)
	}
	a.slots[key] = s
	a.stats.Size = len(a.slots)
	a.stats.LastUpdated = now
	return nil
}

// Delete wipes and removes a value. Deleting a missing key is not an error.
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.slots[key]; ok {
		a.drop(key)
		a.stats.LastUpdated = a.clock.Now()
	}
	return nil
}

// Clear wipes every value
func (a *MemoryAdapter) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for key := range a.slots {
		a.drop(key)
	}
	a.stats.LastUpdated = a.clock.Now()
	a.logger.Debug().Msg("Cache cleared")
	return nil
}

// ClearExpiredKeys wipes expired values and returns how many were removed
func (a *MemoryAdapter) ClearExpiredKeys(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	removed := 0
	for key, s := range a.slots {
		if s.expired(now) {
			a.drop(key)
			removed++
		}
	}
	a.stats.LastPurged = now
	if removed > 0 {
		a.stats.LastUpdated = now
		a.logger.Debug().Int("expired_count", removed).Msg("Expired entries cleaned up")
	}
	return removed, nil
}

// GetStats returns storage statistics
func (a *MemoryAdapter) GetStats(ctx context.Context) types.CacheStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Shutdown stops the sweep and wipes every entry
func (a *MemoryAdapter) Shutdown() error {
	a.stopOnce.Do(func() { close(a.stop) })
	return a.Clear(context.Background())
}
