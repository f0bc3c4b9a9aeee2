package types

import (
	"time"
)

// PackageVersion identifies the EncryptedPackage layout and is bound into the AEAD associated data
const PackageVersion = 1

// EncryptedPackage is the output of the encryption engine. The codec handles its
// serialized form as an opaque blob.
type EncryptedPackage struct {
	Version     int       `json:"version" bson:"version" cbor:"1,keyasint"`
	Ciphertext  []byte    `json:"ciphertext" bson:"ciphertext" cbor:"2,keyasint"`
	Nonce       []byte    `json:"nonce" bson:"nonce" cbor:"3,keyasint"`
	AuthTag     []byte    `json:"authTag" bson:"authTag" cbor:"4,keyasint"`
	ContentHash []byte    `json:"contentHash" bson:"contentHash" cbor:"5,keyasint"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt" cbor:"6,keyasint"`
}

// KeyStrategy selects how a document key is obtained
type KeyStrategy string

const (
	// KeyStrategyIdentity derives keys from a master secret and the owner/document identifiers
	KeyStrategyIdentity KeyStrategy = "identity"
	// KeyStrategyPassphrase derives keys from a user passphrase with Argon2id
	KeyStrategyPassphrase KeyStrategy = "passphrase"
	// KeyStrategyEnvelope generates a random key and wraps it with a KMS provider
	KeyStrategyEnvelope KeyStrategy = "envelope"
)

// Argon2Params records the cost parameters used for a passphrase derivation
type Argon2Params struct {
	Time      uint32 `json:"time" bson:"time" yaml:"time"`
	MemoryKiB uint32 `json:"memoryKiB" bson:"memoryKiB" yaml:"memory_kib"`
	Threads   uint8  `json:"threads" bson:"threads" yaml:"threads"`
}

// WrappedBlob holds a KMS-wrapped document key. Field layout follows wrapping.BlobInfo.
type WrappedBlob struct {
	Ciphertext    []byte `json:"ciphertext" bson:"ciphertext"`
	Iv            []byte `json:"iv,omitempty" bson:"iv,omitempty"`
	Hmac          []byte `json:"hmac,omitempty" bson:"hmac,omitempty"`
	Wrapped       bool   `json:"wrapped,omitempty" bson:"wrapped,omitempty"`
	KeyID         string `json:"keyId,omitempty" bson:"keyId,omitempty"`
	HmacKeyID     string `json:"hmacKeyId,omitempty" bson:"hmacKeyId,omitempty"`
	WrappedKey    []byte `json:"wrappedKey,omitempty" bson:"wrappedKey,omitempty"`
	Mechanism     uint64 `json:"mechanism,omitempty" bson:"mechanism,omitempty"`
	HmacMechanism uint64 `json:"hmacMechanism,omitempty" bson:"hmacMechanism,omitempty"`
	Flags         uint64 `json:"flags,omitempty" bson:"flags,omitempty"`
}

// KeyEnvelope carries the non-secret material needed to recover a document key.
// It never contains a raw key.
type KeyEnvelope struct {
	Strategy KeyStrategy   `json:"strategy" bson:"strategy"`
	Salt     []byte        `json:"salt,omitempty" bson:"salt,omitempty"`
	Argon2   *Argon2Params `json:"argon2,omitempty" bson:"argon2,omitempty"`
	Wrapped  *WrappedBlob  `json:"wrapped,omitempty" bson:"wrapped,omitempty"`
}

// KeyRef identifies the document a key belongs to. Passphrase is only used by the
// passphrase strategy and is never persisted.
type KeyRef struct {
	OwnerID    string
	DocumentID string
	Passphrase []byte
}
