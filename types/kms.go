package types

// ProviderType represents the type of KMS provider
type ProviderType string

const (
	ProviderAead  ProviderType = "aead"
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
	ProviderVault ProviderType = "vault"
)

// KMSCredentials represents KMS provider credentials
type KMSCredentials struct {
	// AWS credentials
	AccessKeyID     string `json:"accessKeyId,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" yaml:"secret_access_key,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty" yaml:"session_token,omitempty"`

	// Azure credentials
	TenantID     string `json:"tenantId,omitempty" yaml:"tenant_id,omitempty"`
	ClientID     string `json:"clientId,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty" yaml:"client_secret,omitempty"`

	// GCP credentials
	CredentialsJSON string `json:"credentialsJson,omitempty" yaml:"credentials_json,omitempty"`

	// Vault credentials
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// KMSConfig selects and configures the key-wrapping provider used by the envelope key strategy
type KMSConfig struct {
	Provider     ProviderType    `json:"provider" yaml:"provider"`
	KeyID        string          `json:"keyId" yaml:"key_id"`
	Region       string          `json:"region,omitempty" yaml:"region,omitempty"`
	VaultAddress string          `json:"vaultAddress,omitempty" yaml:"vault_address,omitempty"`
	VaultMount   string          `json:"vaultMount,omitempty" yaml:"vault_mount,omitempty"`
	AeadKey      string          `json:"-" yaml:"aead_key_base64,omitempty"` // base64, local provider only
	Credentials  *KMSCredentials `json:"-" yaml:"credentials,omitempty"`
}
