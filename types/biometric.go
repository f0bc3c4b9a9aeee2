package types

import (
	"fmt"
	"time"
)

// BiometricKind identifies the modality of a biometric template
type BiometricKind string

const (
	KindFingerprint BiometricKind = "fingerprint"
	KindFace        BiometricKind = "face"
)

// ParseBiometricKind validates a kind string
func ParseBiometricKind(s string) (BiometricKind, error) {
	switch BiometricKind(s) {
	case KindFingerprint, KindFace:
		return BiometricKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown biometric kind %q", ErrValidation, s)
	}
}

// FeatureVector is a fixed-length, unit-scaled encoding of a biometric sample
type FeatureVector []float64

// BiometricTemplate is the enrolled reference for one owner and kind.
// Stores hand out copies; a template is never modified after it is built.
type BiometricTemplate struct {
	OwnerID       string        `json:"ownerId" bson:"ownerId"`
	Kind          BiometricKind `json:"kind" bson:"kind"`
	FeatureVector FeatureVector `json:"featureVector" bson:"featureVector"`
	QualityScore  float64       `json:"qualityScore" bson:"qualityScore"`
	Version       int           `json:"version" bson:"version"`
	EnrolledAt    time.Time     `json:"enrolledAt" bson:"enrolledAt"`
	IntegrityHash []byte        `json:"integrityHash" bson:"integrityHash"`
}

// Clone returns a deep copy of the template
func (t *BiometricTemplate) Clone() *BiometricTemplate {
	if t == nil {
		return nil
	}
	c := *t
	c.FeatureVector = append(FeatureVector(nil), t.FeatureVector...)
	c.IntegrityHash = append([]byte(nil), t.IntegrityHash...)
	return &c
}

// Sample is an extracted, normalized feature vector with its quality score
type Sample struct {
	Kind    BiometricKind
	Vector  FeatureVector
	Quality float64
}

// Comparison is the outcome of comparing two feature vectors
type Comparison struct {
	Similarity float64 `json:"similarity"`
	IsMatch    bool    `json:"isMatch"`
}

// VerificationResult is the outcome of verifying a credential against a template
type VerificationResult struct {
	Comparison
	Quality         float64 `json:"quality"`
	TemplateVersion int     `json:"templateVersion"`
}

// MatcherConfig holds the per-kind thresholds and quality settings
type MatcherConfig struct {
	QualityFloor    float64                   `json:"qualityFloor" yaml:"quality_floor"`
	Thresholds      map[BiometricKind]float64 `json:"thresholds" yaml:"thresholds"`
	Dimensions      map[BiometricKind]int     `json:"dimensions" yaml:"dimensions"`
	ProviderTimeout time.Duration             `json:"providerTimeout" yaml:"provider_timeout"`
}

// DefaultMatcherConfig returns the documented defaults
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		QualityFloor: 0.3,
		Thresholds: map[BiometricKind]float64{
			KindFingerprint: 0.85,
			KindFace:        0.90,
		},
		Dimensions: map[BiometricKind]int{
			KindFingerprint: 128,
			KindFace:        512,
		},
		ProviderTimeout: 5 * time.Second,
	}
}
