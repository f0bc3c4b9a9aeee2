package engine

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/root-sector/docvault/types"
)

// encMode uses Core Deterministic Encoding so the same package always
// produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Keep sub-second precision of CreatedAt.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("engine: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalPackage encodes a package into the opaque bytes embedded in a carrier
func MarshalPackage(pkg *types.EncryptedPackage) ([]byte, error) {
	if pkg == nil {
		return nil, fmt.Errorf("%w: nil package", types.ErrValidation)
	}
	data, err := encMode.Marshal(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode package: %w", err)
	}
	return data, nil
}

// UnmarshalPackage decodes bytes produced by MarshalPackage. Malformed input
// and unknown versions return ErrCorruptedArtifact.
func UnmarshalPackage(data []byte) (*types.EncryptedPackage, error) {
	var pkg types.EncryptedPackage
	if err := decMode.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: decode package: %v", types.ErrCorruptedArtifact, err)
	}
	if pkg.Version != types.PackageVersion {
		return nil, fmt.Errorf("%w: unsupported package version %d", types.ErrCorruptedArtifact, pkg.Version)
	}
	return &pkg, nil
}
