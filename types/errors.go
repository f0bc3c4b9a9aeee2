package types

import "errors"

var (
	// ErrValidation is returned for malformed input rejected before any mutation
	ErrValidation = errors.New("validation failed")

	// ErrAuthenticationFailure is returned when an AEAD tag does not verify
	ErrAuthenticationFailure = errors.New("authentication failed")

	// ErrIntegrityMismatch is returned when authenticated plaintext does not match its content hash
	ErrIntegrityMismatch = errors.New("content hash mismatch after decryption")

	// ErrCapacityExceeded is returned when a payload does not fit a carrier
	ErrCapacityExceeded = errors.New("carrier capacity exceeded")

	// ErrDelimiterNotFound is returned when no payload delimiter is present in a carrier
	ErrDelimiterNotFound = errors.New("payload delimiter not found")

	// ErrLowQuality is returned when a biometric sample falls below the quality floor
	ErrLowQuality = errors.New("biometric sample quality too low")

	// ErrBiometricMismatch is returned when a credential does not match the stored template
	ErrBiometricMismatch = errors.New("biometric mismatch")

	// ErrTemplateNotFound is returned when no active template exists for an owner and kind
	ErrTemplateNotFound = errors.New("biometric template not found")

	// ErrTemplateCorrupted is returned when a stored template fails its integrity check
	ErrTemplateCorrupted = errors.New("biometric template corrupted")

	// ErrDimensionMismatch is returned when feature vectors have incompatible lengths
	ErrDimensionMismatch = errors.New("feature vector dimension mismatch")

	// ErrCorruptedArtifact is returned when a stored artifact cannot be reconstructed
	ErrCorruptedArtifact = errors.New("stored artifact corrupted")

	// ErrProviderUnavailable is returned when an external provider fails or times out
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTimeGateClosed is returned when a document is outside its access window
	ErrTimeGateClosed = errors.New("time gate closed")

	// ErrNotFound is returned by stores when a record or object does not exist
	ErrNotFound = errors.New("not found")

	// ErrDocumentRevoked is returned for operations on a revoked document
	ErrDocumentRevoked = errors.New("document revoked")
)
