// Package engine seals document payloads with AES-256-GCM and a keyed BLAKE3
// content hash.
package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/types"
)

const (
	// KeySize is the required document key length (AES-256)
	KeySize = 32
	// NonceSize is the GCM nonce length
	NonceSize = 12
	// TagSize is the GCM authentication tag length
	TagSize = 16

	// applicationTag prefixes the associated data of every document ciphertext
	applicationTag = "docvault.document.v1"
	// contentHashInfo is the HKDF info string for the content hash key
	contentHashInfo = "docvault.content-hash.v1"
)

// Engine implements interfaces.Engine
type Engine struct {
	clock clock.Clock
	rand  io.Reader
}

// Option configures an Engine
type Option func(*Engine)

// WithRandom overrides the entropy source used for nonces
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// New creates an engine stamping packages with the given clock
func New(clk clock.Clock, opts ...Option) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	e := &Engine{clock: clk, rand: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encrypt seals plaintext. A zero-length plaintext is valid.
func (e *Engine) Encrypt(plaintext, key []byte, binding string) (*types.EncryptedPackage, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	hash, err := contentHash(key, plaintext)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, associatedData(types.PackageVersion, binding))
	split := len(sealed) - TagSize

	return &types.EncryptedPackage{
		Version:     types.PackageVersion,
		Ciphertext:  sealed[:split:split],
		Nonce:       nonce,
		AuthTag:     sealed[split:],
		ContentHash: hash,
		CreatedAt:   e.clock.Now().UTC(),
	}, nil
}

// Decrypt opens a package. Tag failures return ErrAuthenticationFailure and no
// plaintext; a content hash mismatch after a valid tag returns ErrIntegrityMismatch.
func (e *Engine) Decrypt(pkg *types.EncryptedPackage, key []byte, binding string) ([]byte, error) {
	if pkg == nil {
		return nil, fmt.Errorf("%w: nil package", types.ErrAuthenticationFailure)
	}
	if pkg.Version != types.PackageVersion {
		return nil, fmt.Errorf("%w: unsupported package version %d", types.ErrAuthenticationFailure, pkg.Version)
	}
	if len(pkg.Nonce) != NonceSize || len(pkg.AuthTag) != TagSize {
		return nil, fmt.Errorf("%w: malformed nonce or tag", types.ErrAuthenticationFailure)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(pkg.Ciphertext)+TagSize)
	sealed = append(sealed, pkg.Ciphertext...)
	sealed = append(sealed, pkg.AuthTag...)

	plaintext, err := gcm.Open(nil, pkg.Nonce, sealed, associatedData(pkg.Version, binding))
	if err != nil {
		return nil, types.ErrAuthenticationFailure
	}

	hash, err := contentHash(key, plaintext)
	if err != nil {
		wipe(plaintext)
		return nil, err
	}
	if subtle.ConstantTimeCompare(hash, pkg.ContentHash) != 1 {
		wipe(plaintext)
		return nil, types.ErrIntegrityMismatch
	}

	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", types.ErrValidation, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// associatedData is applicationTag, the package version as a uvarint, then binding
func associatedData(version int, binding string) []byte {
	aad := make([]byte, 0, len(applicationTag)+binary.MaxVarintLen64+len(binding))
	aad = append(aad, applicationTag...)
	aad = binary.AppendUvarint(aad, uint64(version))
	return append(aad, binding...)
}

// contentHash computes the keyed BLAKE3 digest of plaintext. The hash key is
// derived from the document key so the digest reveals nothing without it.
func contentHash(key, plaintext []byte) ([]byte, error) {
	hashKey := make([]byte, 32)
	defer wipe(hashKey)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(contentHashInfo)), hashKey); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}

	hasher, err := blake3.NewKeyed(hashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content hash: %w", err)
	}
	hasher.Write(plaintext)
	return hasher.Sum(nil), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
