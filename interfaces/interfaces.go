// Package interfaces defines all service interfaces for the vault.
// IMPORTANT: This is the single source of truth for service interfaces.
// Do not define interfaces in other files.
package interfaces

import (
	"context"
	"time"

	"github.com/root-sector/docvault/types"
)

// Cache Interfaces
// Storage defines the interface for cache storage backends
type Storage interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// ClearExpiredKeys removes only expired keys and returns the count of removed entries
	ClearExpiredKeys(ctx context.Context) (int, error)
}

// KeyCache caches unwrapped document keys in wiped-on-eviction memory
type KeyCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	GetStats(ctx context.Context) types.CacheStats
}

// Encryption Interfaces
// Engine performs authenticated encryption of document payloads
type Engine interface {
	// Encrypt seals plaintext under key, binding the given context into the associated data
	Encrypt(plaintext, key []byte, binding string) (*types.EncryptedPackage, error)

	// Decrypt opens a package. It releases no plaintext unless the tag and content hash verify.
	Decrypt(pkg *types.EncryptedPackage, key []byte, binding string) ([]byte, error)
}

// KeyProvider obtains document keys for one key strategy
type KeyProvider interface {
	// Strategy reports which strategy the provider implements
	Strategy() types.KeyStrategy

	// NewKey returns key material for a new document and the envelope needed to recover it
	NewKey(ctx context.Context, ref types.KeyRef) ([]byte, *types.KeyEnvelope, error)

	// RecoverKey returns the key for an existing document
	RecoverKey(ctx context.Context, ref types.KeyRef, envelope *types.KeyEnvelope) ([]byte, error)
}

// KMS Interfaces
// KMSProvider wraps document keys with a key-encryption key held by a KMS.
// The binding is authenticated as associated data.
type KMSProvider interface {
	Wrap(ctx context.Context, key []byte, binding string) (*types.WrappedBlob, error)
	Unwrap(ctx context.Context, blob *types.WrappedBlob, binding string) ([]byte, error)

	// KeyID identifies the key-encryption key
	KeyID() string

	// HealthCheck wraps and unwraps a probe value
	HealthCheck(ctx context.Context) error

	// LastHealthCheck returns the result of the most recent health check
	LastHealthCheck() error
}

// Steganography Interfaces
// Codec hides and recovers opaque payloads in carrier images
type Codec interface {
	// Embed returns a copy of carrier with payload written into the sample LSBs
	Embed(carrier *types.CarrierImage, payload []byte) (*types.CarrierImage, error)

	// Extract recovers the payload written by Embed
	Extract(stego *types.CarrierImage) ([]byte, error)
}

// Biometric Interfaces
// FeatureProvider turns an opaque credential into a raw feature vector.
// Implementations are external inference backends or platform callbacks.
type FeatureProvider interface {
	Extract(ctx context.Context, credential []byte, kind types.BiometricKind) ([]float64, error)
}

// Matcher scores credentials against enrolled templates
type Matcher interface {
	// ExtractFeatures normalizes provider output and applies the quality gate
	ExtractFeatures(ctx context.Context, credential []byte, kind types.BiometricKind) (*types.Sample, error)

	// Compare computes cosine similarity and the threshold decision
	Compare(a, b types.FeatureVector, kind types.BiometricKind) (types.Comparison, error)

	// Verify checks a credential against a stored template
	Verify(ctx context.Context, credential []byte, template *types.BiometricTemplate) (*types.VerificationResult, error)

	// Enroll extracts a template from a credential and replaces any existing one
	Enroll(ctx context.Context, ownerID string, kind types.BiometricKind, credential []byte) (*types.BiometricTemplate, error)

	// Remove deletes the template for owner and kind
	Remove(ctx context.Context, ownerID string, kind types.BiometricKind) error

	// RemoveOwner deletes every template of an owner
	RemoveOwner(ctx context.Context, ownerID string) (int, error)
}

// Store Interfaces
// ObjectStore persists carrier images
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns types.ErrNotFound when the key does not exist
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentStore persists document metadata rows
type DocumentStore interface {
	Create(ctx context.Context, record *types.DocumentRecord) error
	// Get returns types.ErrNotFound when the document does not exist
	Get(ctx context.Context, id string) (*types.DocumentRecord, error)
	UpdateWindow(ctx context.Context, id string, window types.AccessWindow, updatedAt time.Time) error
	MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error
	ListByOwner(ctx context.Context, ownerID string) ([]*types.DocumentRecord, error)
}

// TemplateStore persists biometric templates, one per owner and kind
type TemplateStore interface {
	// Get returns a snapshot of the active template or types.ErrTemplateNotFound
	Get(ctx context.Context, ownerID string, kind types.BiometricKind) (*types.BiometricTemplate, error)

	// Replace atomically swaps in a new template and returns the stored version
	Replace(ctx context.Context, template *types.BiometricTemplate) (*types.BiometricTemplate, error)

	// Delete removes the template for owner and kind
	Delete(ctx context.Context, ownerID string, kind types.BiometricKind) error

	// DeleteOwner removes every template of an owner and returns how many were removed
	DeleteOwner(ctx context.Context, ownerID string) (int, error)
}

// AttemptStore persists access attempts. Appends are never updated.
type AttemptStore interface {
	Append(ctx context.Context, attempt *types.AccessAttempt) error
	List(ctx context.Context, documentID string) ([]*types.AccessAttempt, error)
	// LastSequence returns the highest sequence recorded for a document, or 0
	LastSequence(ctx context.Context, documentID string) (int64, error)
}

// Audit Interfaces
// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// Printf provides basic logging functionality
	Printf(format string, v ...interface{})

	// LogEvent logs an audit event
	LogEvent(ctx context.Context, event *types.AuditEvent) error

	// GetEvents retrieves audit events based on filters
	GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error)
}

// KeyForgetter is implemented by key providers that hold recovered keys in memory
type KeyForgetter interface {
	// Forget drops any cached key for the document
	Forget(ctx context.Context, ref types.KeyRef)
}
