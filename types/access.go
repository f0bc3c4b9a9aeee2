package types

import (
	"fmt"
	"time"
)

// AccessWindow is the interval during which a document may be released.
// Both bounds are inclusive.
type AccessWindow struct {
	StartTime time.Time `json:"startTime" bson:"startTime"`
	EndTime   time.Time `json:"endTime" bson:"endTime"`
}

// Validate checks that the window ends after it starts
func (w AccessWindow) Validate() error {
	if w.StartTime.IsZero() || w.EndTime.IsZero() {
		return fmt.Errorf("%w: access window bounds are required", ErrValidation)
	}
	if !w.EndTime.After(w.StartTime) {
		return fmt.Errorf("%w: access window end must be after start", ErrValidation)
	}
	return nil
}

// DocumentStatus is the persisted lifecycle status of a document
type DocumentStatus string

const (
	DocumentActive  DocumentStatus = "active"
	DocumentRevoked DocumentStatus = "revoked"
)

// PackageMetadata is the relational copy of the package's public fields
type PackageMetadata struct {
	Version     int       `json:"version" bson:"version"`
	Nonce       []byte    `json:"nonce" bson:"nonce"`
	AuthTag     []byte    `json:"authTag" bson:"authTag"`
	ContentHash []byte    `json:"contentHash" bson:"contentHash"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// DocumentRecord is the metadata row for a stored document
type DocumentRecord struct {
	ID        string          `json:"id" bson:"_id"`
	OwnerID   string          `json:"ownerId" bson:"ownerId"`
	Filename  string          `json:"filename" bson:"filename"`
	MIMEType  string          `json:"mimeType" bson:"mimeType"`
	Size      int             `json:"size" bson:"size"`
	Kind      BiometricKind   `json:"kind" bson:"kind"`
	ObjectKey string          `json:"objectKey" bson:"objectKey"`
	Window    AccessWindow    `json:"window" bson:"window"`
	Status    DocumentStatus  `json:"status" bson:"status"`
	Package   PackageMetadata `json:"package" bson:"package"`
	Key       KeyEnvelope     `json:"key" bson:"key"`
	CreatedAt time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
	RevokedAt *time.Time      `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// FailureReason enumerates why an access attempt failed. Values are mutually exclusive.
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonDocumentNotFound    FailureReason = "document_not_found"
	ReasonTimeGateClosed      FailureReason = "time_gate_closed"
	ReasonTemplateNotFound    FailureReason = "template_not_found"
	ReasonTemplateCorrupted   FailureReason = "template_corrupted"
	ReasonLowQuality          FailureReason = "low_quality"
	ReasonBiometricMismatch   FailureReason = "biometric_mismatch"
	ReasonProviderUnavailable FailureReason = "provider_unavailable"
	ReasonCorruptedArtifact   FailureReason = "corrupted_artifact"
	ReasonCancelled           FailureReason = "cancelled"
	ReasonKeyUnavailable      FailureReason = "key_unavailable"
	ReasonStoreUnavailable    FailureReason = "store_unavailable"
)

// AccessAttempt is one append-only audit record per access request
type AccessAttempt struct {
	ID              string        `json:"id" bson:"_id"`
	DocumentID      string        `json:"documentId" bson:"documentId"`
	OwnerID         string        `json:"ownerId" bson:"ownerId"`
	Sequence        int64         `json:"sequence" bson:"sequence"`
	Timestamp       time.Time     `json:"timestamp" bson:"timestamp"`
	Succeeded       bool          `json:"succeeded" bson:"succeeded"`
	FailureReason   FailureReason `json:"failureReason,omitempty" bson:"failureReason,omitempty"`
	GateState       string        `json:"gateState,omitempty" bson:"gateState,omitempty"`
	SimilarityScore *float64      `json:"similarityScore,omitempty" bson:"similarityScore,omitempty"`
}

// ReleasedDocument is the plaintext returned by a successful access request
type ReleasedDocument struct {
	DocumentID string
	Filename   string
	MIMEType   string
	Content    []byte
	Similarity float64
}

// Clone returns a copy that shares no mutable state with r
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	if r.Key.Argon2 != nil {
		p := *r.Key.Argon2
		c.Key.Argon2 = &p
	}
	if r.Key.Wrapped != nil {
		w := *r.Key.Wrapped
		c.Key.Wrapped = &w
	}
	return &c
}
