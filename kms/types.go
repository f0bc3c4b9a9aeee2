package kms

import (
	"encoding/base64"
	"fmt"

	"github.com/root-sector/docvault/types"
)

// AeadConfig configures the local AES-GCM wrapper
type AeadConfig struct {
	Key   []byte
	KeyID string
}

// AWSConfig configures AWS KMS
type AWSConfig struct {
	KeyID       string // key ARN
	Region      string
	Credentials *types.KMSCredentials
}

// AzureConfig configures Azure Key Vault
type AzureConfig struct {
	KeyID        string // key identifier URL
	VaultAddress string
	Credentials  *types.KMSCredentials
}

// GCPConfig configures Google Cloud KMS
type GCPConfig struct {
	// ResourceName has the form projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
	ResourceName string
	Credentials  *types.KMSCredentials
}

// VaultConfig configures HashiCorp Vault Transit
type VaultConfig struct {
	KeyID        string // transit key name
	VaultAddress string
	VaultMount   string
	Credentials  *types.KMSCredentials
}

// Config represents the internal KMS provider configuration. Exactly one of the
// provider sections matching Type is used.
type Config struct {
	Type  types.ProviderType
	Aead  *AeadConfig
	AWS   *AWSConfig
	Azure *AzureConfig
	GCP   *GCPConfig
	Vault *VaultConfig
}

// ConfigFrom converts the file-level KMS section into a provider Config
func ConfigFrom(c types.KMSConfig) (Config, error) {
	cfg := Config{Type: c.Provider}

	switch c.Provider {
	case types.ProviderAead:
		key, err := base64.StdEncoding.DecodeString(c.AeadKey)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode AEAD key: %w", err)
		}
		cfg.Aead = &AeadConfig{Key: key, KeyID: c.KeyID}
	case types.ProviderAWS:
		cfg.AWS = &AWSConfig{KeyID: c.KeyID, Region: c.Region, Credentials: c.Credentials}
	case types.ProviderAzure:
		cfg.Azure = &AzureConfig{KeyID: c.KeyID, VaultAddress: c.VaultAddress, Credentials: c.Credentials}
	case types.ProviderGCP:
		cfg.GCP = &GCPConfig{ResourceName: c.KeyID, Credentials: c.Credentials}
	case types.ProviderVault:
		cfg.Vault = &VaultConfig{KeyID: c.KeyID, VaultAddress: c.VaultAddress, VaultMount: c.VaultMount, Credentials: c.Credentials}
	default:
		return Config{}, fmt.Errorf("unsupported KMS provider type: %s", c.Provider)
	}

	return cfg, nil
}
