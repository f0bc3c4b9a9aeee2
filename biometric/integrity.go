package biometric

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/root-sector/docvault/types"
)

var canonical cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	canonical, err = opts.EncMode()
	if err != nil {
		panic("biometric: CBOR encoder initialization failed: " + err.Error())
	}
}

// templateIdentity is the hashed view of a template. Field numbers are part of
// the stored hash and must not change.
type templateIdentity struct {
	OwnerID    string    `cbor:"1,keyasint"`
	Kind       string    `cbor:"2,keyasint"`
	Vector     []float64 `cbor:"3,keyasint"`
	Quality    float64   `cbor:"4,keyasint"`
	Version    int       `cbor:"5,keyasint"`
	EnrolledAt time.Time `cbor:"6,keyasint"`
}

// TemplateHash computes the BLAKE3 digest of the canonical encoding of t
func TemplateHash(t *types.BiometricTemplate) ([]byte, error) {
	data, err := canonical.Marshal(templateIdentity{
		OwnerID:    t.OwnerID,
		Kind:       string(t.Kind),
		Vector:     t.FeatureVector,
		Quality:    t.QualityScore,
		Version:    t.Version,
		EnrolledAt: t.EnrolledAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	sum := blake3.Sum256(data)
	return sum[:], nil
}

// Seal sets the template's integrity hash
func Seal(t *types.BiometricTemplate) error {
	hash, err := TemplateHash(t)
	if err != nil {
		return err
	}
	t.IntegrityHash = hash
	return nil
}

// VerifyIntegrity returns ErrTemplateCorrupted if the stored hash does not match
func VerifyIntegrity(t *types.BiometricTemplate) error {
	if t == nil {
		return types.ErrTemplateNotFound
	}
	hash, err := TemplateHash(t)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTemplateCorrupted, err)
	}
	if subtle.ConstantTimeCompare(hash, t.IntegrityHash) != 1 {
		return types.ErrTemplateCorrupted
	}
	return nil
}
