// Package kms provides the key-wrapping providers used by the envelope key strategy
package kms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/types"
)

// probe is wrapped and unwrapped by HealthCheck
var probe = []byte("docvault-kms-probe")

// Provider wraps document keys with a go-kms-wrapping backend
type Provider struct {
	wrapper wrapping.Wrapper
	backend types.ProviderType
	keyID   string
	logger  zerolog.Logger

	mu              sync.RWMutex
	lastHealthCheck error
}

// NewProvider configures the backend selected by config.Type
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	logger := log.With().Str("component", "kms").Str("provider", string(config.Type)).Logger()
	logger.Debug().Msg("Initializing KMS provider")

	b, err := config.backend()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid KMS configuration")
		return nil, err
	}
	wrapper, err := b.build(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create KMS provider wrapper")
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}

	logger.Info().
		Str("keyIdentifier", b.keyID).
		Str("locationContext", b.location).
		Msg("KMS provider initialized successfully")

	return &Provider{
		wrapper: wrapper,
		backend: config.Type,
		keyID:   b.keyID,
		logger:  logger,
	}, nil
}

// Backend returns the provider type
func (p *Provider) Backend() types.ProviderType { return p.backend }

// KeyID implements interfaces.KMSProvider
func (p *Provider) KeyID() string { return p.keyID }

// Wrap implements interfaces.KMSProvider
func (p *Provider) Wrap(ctx context.Context, key []byte, binding string) (*types.WrappedBlob, error) {
	blob, err := p.wrapper.Encrypt(ctx, key, wrapping.WithAad([]byte(binding)))
	if err != nil {
		return nil, fmt.Errorf("%s wrap: %w", p.backend, err)
	}
	return toWrappedBlob(blob), nil
}

// Unwrap implements interfaces.KMSProvider
func (p *Provider) Unwrap(ctx context.Context, blob *types.WrappedBlob, binding string) ([]byte, error) {
	if blob == nil {
		return nil, fmt.Errorf("%w: no wrapped key", types.ErrValidation)
	}
	key, err := p.wrapper.Decrypt(ctx, fromWrappedBlob(blob), wrapping.WithAad([]byte(binding)))
	if err != nil {
		return nil, fmt.Errorf("%s unwrap: %w", p.backend, err)
	}
	return key, nil
}

// HealthCheck implements interfaces.KMSProvider
func (p *Provider) HealthCheck(ctx context.Context) error {
	err := p.roundTrip(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("KMS health check failed")
		err = fmt.Errorf("%w: KMS health check: %w", types.ErrProviderUnavailable, err)
	}

	p.mu.Lock()
	p.lastHealthCheck = err
	p.mu.Unlock()
	return err
}

func (p *Provider) roundTrip(ctx context.Context) error {
	blob, err := p.Wrap(ctx, probe, "health")
	if err != nil {
		return err
	}
	out, err := p.Unwrap(ctx, blob, "health")
	if err != nil {
		return err
	}
	if !bytes.Equal(out, probe) {
		return errors.New("probe did not survive the round trip")
	}
	return nil
}

// LastHealthCheck implements interfaces.KMSProvider
func (p *Provider) LastHealthCheck() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHealthCheck
}

// toWrappedBlob copies a wrapper result into its persisted form
func toWrappedBlob(blob *wrapping.BlobInfo) *types.WrappedBlob {
	if blob == nil {
		return nil
	}
	out := &types.WrappedBlob{
		Ciphertext: blob.Ciphertext,
		Iv:         blob.Iv,
		Hmac:       blob.Hmac,
		Wrapped:    blob.Wrapped,
	}
	if ki := blob.KeyInfo; ki != nil {
		out.KeyID = ki.KeyId
		out.HmacKeyID = ki.HmacKeyId
		out.WrappedKey = ki.WrappedKey
		out.Mechanism = ki.Mechanism
		out.HmacMechanism = ki.HmacMechanism
		out.Flags = ki.Flags
	}
	return out
}

func fromWrappedBlob(w *types.WrappedBlob) *wrapping.BlobInfo {
	if w == nil {
		return nil
	}
	return &wrapping.BlobInfo{
		Ciphertext: w.Ciphertext,
		Iv:         w.Iv,
		Hmac:       w.Hmac,
		Wrapped:    w.Wrapped,
		KeyInfo: &wrapping.KeyInfo{
			KeyId:         w.KeyID,
			HmacKeyId:     w.HmacKeyID,
			WrappedKey:    w.WrappedKey,
			Mechanism:     w.Mechanism,
			HmacMechanism: w.HmacMechanism,
			Flags:         w.Flags,
		},
	}
}
