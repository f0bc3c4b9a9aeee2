package types

import (
	"crypto/subtle"
	"runtime"
	"time"
)

const (
	// DefaultCacheTTLMinutes is the default TTL for cached document keys
	DefaultCacheTTLMinutes = 15
)

// SecureBytes represents a secure byte slice that will be wiped on garbage collection
type SecureBytes struct {
	data []byte
}

// NewSecureBytes creates a new secure byte slice
func NewSecureBytes(data []byte) *SecureBytes {
	secure := &SecureBytes{
		data: make([]byte, len(data)),
	}
	subtle.ConstantTimeCopy(1, secure.data, data)

	// Wipe memory when garbage collected
	runtime.SetFinalizer(secure, (*SecureBytes).Clear)
	return secure
}

// Clear securely wipes the memory
func (s *SecureBytes) Clear() {
	if s.data != nil {
		for i := range s.data {
			s.data[i] = 0
		}
		runtime.KeepAlive(s.data)
		s.data = nil
	}
}

// Get returns a copy of the data
func (s *SecureBytes) Get() []byte {
	if s.data == nil {
		return nil
	}
	result := make([]byte, len(s.data))
	subtle.ConstantTimeCopy(1, result, s.data)
	return result
}

// CacheEntry represents a cached document key with secure memory handling
type CacheEntry struct {
	Value   *SecureBytes
	Version int
}

// Clear securely wipes the entry
func (e *CacheEntry) Clear() {
	if e.Value != nil {
		e.Value.Clear()
		e.Value = nil
	}
}

// CacheConfig holds configuration for caching
type CacheConfig struct {
	// Enabled indicates whether caching is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TTL is the time-to-live for cached entries in minutes.
	// If not set, DefaultCacheTTLMinutes will be used
	TTL int `json:"ttl,omitempty" yaml:"ttl_minutes,omitempty"`

	// MaxEntries bounds the number of cached keys
	MaxEntries int `json:"maxEntries,omitempty" yaml:"max_entries,omitempty"`
}

// GetEffectiveTTL returns the effective TTL for the cache
func (c *CacheConfig) GetEffectiveTTL() time.Duration {
	if c.TTL > 0 {
		return time.Duration(c.TTL) * time.Minute
	}
	return time.Duration(DefaultCacheTTLMinutes) * time.Minute
}

// CacheStats holds statistics about the cache
type CacheStats struct {
	Size        int       `json:"size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	LastPurged  time.Time `json:"lastPurged"`
	LastAccess  time.Time `json:"lastAccess"`
	LastUpdated time.Time `json:"lastUpdated"`
}
