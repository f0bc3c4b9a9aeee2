package storage

import (
	"context"
	"time"

	"github.com/root-sector/docvault/interfaces"
)

// PrefixAdapter namespaces keys on top of a shared storage backend
type PrefixAdapter struct {
	client    interfaces.Storage
	keyPrefix string
}

// NewPrefixAdapter wraps client so every key is prepended with keyPrefix.
// If keyPrefix is empty, no prefixing is applied.
func NewPrefixAdapter(client interfaces.Storage, keyPrefix string) *PrefixAdapter {
	return &PrefixAdapter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (p *PrefixAdapter) prefixedKey(key string) string {
	return p.keyPrefix + key
}

// Get retrieves a value using the prefixed key
func (p *PrefixAdapter) Get(ctx context.Context, key string, value interface{}) error {
	return p.client.Get(ctx, p.prefixedKey(key), value)
}

// Set stores a value using the prefixed key
func (p *PrefixAdapter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return p.client.Set(ctx, p.prefixedKey(key), value, ttl)
}

// Delete removes a value using the prefixed key
func (p *PrefixAdapter) Delete(ctx context.Context, key string) error {
	return p.client.Delete(ctx, p.prefixedKey(key))
}

// Clear clears the whole underlying backend, including other namespaces
func (p *PrefixAdapter) Clear(ctx context.Context) error {
	return p.client.Clear(ctx)
}

// ClearExpiredKeys delegates expiry to the underlying backend
func (p *PrefixAdapter) ClearExpiredKeys(ctx context.Context) (int, error) {
	return p.client.ClearExpiredKeys(ctx)
}
