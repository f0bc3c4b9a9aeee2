// Package keys implements the document key strategies.
package keys

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

// KeySize is the document key length in bytes
const KeySize = 32

// Registry selects a KeyProvider by strategy
type Registry struct {
	providers map[types.KeyStrategy]interfaces.KeyProvider
	def       types.KeyStrategy
}

// NewRegistry creates a registry whose default strategy is def. The default
// provider must be among providers.
func NewRegistry(def types.KeyStrategy, providers ...interfaces.KeyProvider) (*Registry, error) {
	r := &Registry{
		providers: make(map[types.KeyStrategy]interfaces.KeyProvider, len(providers)),
		def:       def,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Strategy()] = p
	}
	if _, ok := r.providers[def]; !ok {
		return nil, fmt.Errorf("%w: no provider registered for default key strategy %q", types.ErrValidation, def)
	}
	return r, nil
}

// Default returns the provider used for new documents
func (r *Registry) Default() interfaces.KeyProvider {
	return r.providers[r.def]
}

// Get returns the provider for a strategy
func (r *Registry) Get(strategy types.KeyStrategy) (interfaces.KeyProvider, error) {
	p, ok := r.providers[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: key strategy %q is not configured", types.ErrValidation, strategy)
	}
	return p, nil
}

// Binding is the associated-data context of a document: owner and document id
func Binding(ref types.KeyRef) string {
	return ref.OwnerID + ":" + ref.DocumentID
}

func generateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

func validateRef(ref types.KeyRef) error {
	if ref.OwnerID == "" || ref.DocumentID == "" {
		return fmt.Errorf("%w: owner and document id are required", types.ErrValidation)
	}
	return nil
}

func checkStrategy(envelope *types.KeyEnvelope, want types.KeyStrategy) error {
	if envelope == nil {
		return fmt.Errorf("%w: missing key envelope", types.ErrValidation)
	}
	if envelope.Strategy != want {
		return fmt.Errorf("%w: envelope strategy %q, provider %q", types.ErrValidation, envelope.Strategy, want)
	}
	return nil
}
