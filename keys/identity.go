package keys

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/root-sector/docvault/types"
)

const identityDomain = "docvault.identity-key.v1"

// IdentityProvider derives document keys from a deployment master secret and
// the owner/document identifiers. Nothing secret is stored per document.
type IdentityProvider struct {
	master []byte
}

// NewIdentityProvider requires a master secret of at least 32 bytes
func NewIdentityProvider(master []byte) (*IdentityProvider, error) {
	if len(master) < KeySize {
		return nil, fmt.Errorf("%w: master secret must be at least %d bytes", types.ErrValidation, KeySize)
	}
	return &IdentityProvider{master: append([]byte(nil), master...)}, nil
}

// Strategy implements interfaces.KeyProvider
func (p *IdentityProvider) Strategy() types.KeyStrategy { return types.KeyStrategyIdentity }

// NewKey implements interfaces.KeyProvider
func (p *IdentityProvider) NewKey(ctx context.Context, ref types.KeyRef) ([]byte, *types.KeyEnvelope, error) {
	key, err := p.derive(ref)
	if err != nil {
		return nil, nil, err
	}
	return key, &types.KeyEnvelope{Strategy: types.KeyStrategyIdentity}, nil
}

// RecoverKey implements interfaces.KeyProvider
func (p *IdentityProvider) RecoverKey(ctx context.Context, ref types.KeyRef, envelope *types.KeyEnvelope) ([]byte, error) {
	if err := checkStrategy(envelope, types.KeyStrategyIdentity); err != nil {
		return nil, err
	}
	return p.derive(ref)
}

func (p *IdentityProvider) derive(ref types.KeyRef) ([]byte, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	// length-prefix the identifiers so ("ab","c") and ("a","bc") differ
	info := make([]byte, 0, len(identityDomain)+len(ref.OwnerID)+len(ref.DocumentID)+2*binary.MaxVarintLen64)
	info = append(info, identityDomain...)
	info = binary.AppendUvarint(info, uint64(len(ref.OwnerID)))
	info = append(info, ref.OwnerID...)
	info = binary.AppendUvarint(info, uint64(len(ref.DocumentID)))
	info = append(info, ref.DocumentID...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, p.master, nil, info), key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return key, nil
}
