package keys

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/root-sector/docvault/types"
)

// SaltSize is the Argon2id salt length
const SaltSize = 16

// DefaultArgon2Params are the cost parameters for new passphrase-derived keys
func DefaultArgon2Params() types.Argon2Params {
	return types.Argon2Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// PassphraseProvider derives document keys from a user passphrase with Argon2id.
// The salt and cost parameters travel in the envelope.
type PassphraseProvider struct {
	params types.Argon2Params
}

// NewPassphraseProvider creates a provider using params for new keys
func NewPassphraseProvider(params types.Argon2Params) (*PassphraseProvider, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return &PassphraseProvider{params: params}, nil
}

// Strategy implements interfaces.KeyProvider
func (p *PassphraseProvider) Strategy() types.KeyStrategy { return types.KeyStrategyPassphrase }

// NewKey implements interfaces.KeyProvider
func (p *PassphraseProvider) NewKey(ctx context.Context, ref types.KeyRef) ([]byte, *types.KeyEnvelope, error) {
	if len(ref.Passphrase) == 0 {
		return nil, nil, fmt.Errorf("%w: passphrase is required", types.ErrValidation)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	params := p.params
	key := argon2.IDKey(ref.Passphrase, salt, params.Time, params.MemoryKiB, params.Threads, KeySize)
	return key, &types.KeyEnvelope{
		Strategy: types.KeyStrategyPassphrase,
		Salt:     salt,
		Argon2:   &params,
	}, nil
}

// RecoverKey implements interfaces.KeyProvider. A wrong passphrase yields a
// different key, which the engine reports as an authentication failure.
func (p *PassphraseProvider) RecoverKey(ctx context.Context, ref types.KeyRef, envelope *types.KeyEnvelope) ([]byte, error) {
	if err := checkStrategy(envelope, types.KeyStrategyPassphrase); err != nil {
		return nil, err
	}
	if len(ref.Passphrase) == 0 {
		return nil, fmt.Errorf("%w: passphrase is required", types.ErrValidation)
	}
	if len(envelope.Salt) != SaltSize || envelope.Argon2 == nil {
		return nil, fmt.Errorf("%w: incomplete passphrase envelope", types.ErrValidation)
	}
	if err := validateParams(*envelope.Argon2); err != nil {
		return nil, err
	}

	params := envelope.Argon2
	return argon2.IDKey(ref.Passphrase, envelope.Salt, params.Time, params.MemoryKiB, params.Threads, KeySize), nil
}

func validateParams(p types.Argon2Params) error {
	if p.Time == 0 || p.Threads == 0 || p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("%w: invalid argon2 parameters", types.ErrValidation)
	}
	return nil
}
