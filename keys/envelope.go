package keys

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

// EnvelopeProvider generates a random key per document and wraps it with a KMS
// provider. Unwrapped keys are held in the key cache.
type EnvelopeProvider struct {
	kms    interfaces.KMSProvider
	cache  interfaces.KeyCache
	logger zerolog.Logger
}

// NewEnvelopeProvider creates an envelope provider. cache may be nil.
func NewEnvelopeProvider(provider interfaces.KMSProvider, cache interfaces.KeyCache) (*EnvelopeProvider, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: envelope strategy requires a KMS provider", types.ErrValidation)
	}
	return &EnvelopeProvider{
		kms:    provider,
		cache:  cache,
		logger: log.With().Str("component", "envelope_keys").Logger(),
	}, nil
}

// Strategy implements interfaces.KeyProvider
func (p *EnvelopeProvider) Strategy() types.KeyStrategy { return types.KeyStrategyEnvelope }

// NewKey implements interfaces.KeyProvider
func (p *EnvelopeProvider) NewKey(ctx context.Context, ref types.KeyRef) ([]byte, *types.KeyEnvelope, error) {
	if err := validateRef(ref); err != nil {
		return nil, nil, err
	}

	key, err := generateKey()
	if err != nil {
		return nil, nil, err
	}

	blob, err := p.kms.Wrap(ctx, key, Binding(ref))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap document key: %w", err)
	}

	if p.cache != nil {
		p.cache.Set(ctx, Binding(ref), key)
	}

	p.logger.Debug().
		Str("documentId", ref.DocumentID).
		Bool("cached", p.cache != nil).
		Msg("Document key wrapped")

	return key, &types.KeyEnvelope{
		Strategy: types.KeyStrategyEnvelope,
		Wrapped:  blob,
	}, nil
}

// RecoverKey implements interfaces.KeyProvider
func (p *EnvelopeProvider) RecoverKey(ctx context.Context, ref types.KeyRef, envelope *types.KeyEnvelope) ([]byte, error) {
	if err := checkStrategy(envelope, types.KeyStrategyEnvelope); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if envelope.Wrapped == nil {
		return nil, fmt.Errorf("%w: envelope has no wrapped key", types.ErrValidation)
	}

	if p.cache != nil {
		if key, ok := p.cache.Get(ctx, Binding(ref)); ok {
			return key, nil
		}
	}

	key, err := p.kms.Unwrap(ctx, envelope.Wrapped, Binding(ref))
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("documentId", ref.DocumentID).
			Str("keyId", envelope.Wrapped.KeyID).
			Msg("Failed to unwrap document key")
		return nil, fmt.Errorf("failed to unwrap document key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("unwrapped key has %d bytes, want %d", len(key), KeySize)
	}

	if p.cache != nil {
		p.cache.Set(ctx, Binding(ref), key)
	}
	return key, nil
}

// Forget implements interfaces.KeyForgetter
func (p *EnvelopeProvider) Forget(ctx context.Context, ref types.KeyRef) {
	if p.cache != nil {
		p.cache.Delete(ctx, Binding(ref))
	}
}
