package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

var _ interfaces.KMSProvider = (*Provider)(nil)

func TestBackendValidation(t *testing.T) {
	awsKey := "arn:aws:kms:eu-central-1:123456789012:key/docvault"
	azureKey := "https://docvault.vault.azure.net/keys/documents/v1"
	azureVault := "https://docvault.vault.azure.net"
	gcpKey := "projects/p/locations/europe-west3/keyRings/r/cryptoKeys/k"

	tests := []struct {
		name      string
		config    Config
		errSubstr string
		keyID     string
		location  string
	}{
		{name: "aead", config: Config{Type: types.ProviderAead, Aead: &AeadConfig{Key: make([]byte, 32), KeyID: "local"}}, keyID: "local", location: "local"},
		{name: "aead short key", config: Config{Type: types.ProviderAead, Aead: &AeadConfig{Key: make([]byte, 16)}}, errSubstr: "must be 32 bytes"},

		{name: "aws", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{KeyID: awsKey, Region: "eu-central-1"}}, keyID: awsKey, location: "eu-central-1"},
		{name: "aws static credentials", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{KeyID: awsKey, Region: "eu-central-1", Credentials: &types.KMSCredentials{AccessKeyID: "AK", SecretAccessKey: "SK"}}}, keyID: awsKey},
		{name: "aws missing key", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{Region: "eu-central-1"}}, errSubstr: "key ARN is required"},
		{name: "aws missing region", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{KeyID: awsKey}}, errSubstr: "region is required"},
		{name: "aws half credentials", config: Config{Type: types.ProviderAWS, AWS: &AWSConfig{KeyID: awsKey, Region: "eu-central-1", Credentials: &types.KMSCredentials{AccessKeyID: "AK"}}}, errSubstr: "must be set together"},

		{name: "azure", config: Config{Type: types.ProviderAzure, Azure: &AzureConfig{KeyID: azureKey, VaultAddress: azureVault}}, keyID: azureKey, location: azureVault},
		{name: "azure missing key", config: Config{Type: types.ProviderAzure, Azure: &AzureConfig{VaultAddress: azureVault}}, errSubstr: "key identifier is required"},
		{name: "azure plain http", config: Config{Type: types.ProviderAzure, Azure: &AzureConfig{KeyID: azureKey, VaultAddress: "http://docvault.example.com"}}, errSubstr: "not an Azure Key Vault URL"},
		{name: "azure missing secret", config: Config{Type: types.ProviderAzure, Azure: &AzureConfig{KeyID: azureKey, VaultAddress: azureVault, Credentials: &types.KMSCredentials{TenantID: "t", ClientID: "c"}}}, errSubstr: "client_secret is required"},

		{name: "gcp", config: Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: gcpKey}}, keyID: gcpKey, location: "europe-west3"},
		{name: "gcp short name", config: Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: "projects/p/keyRings/r"}}, errSubstr: "not a crypto key resource name"},
		{name: "gcp empty component", config: Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: "projects//locations/l/keyRings/r/cryptoKeys/k"}}, errSubstr: "empty component"},
		{name: "gcp empty credentials", config: Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: gcpKey, Credentials: &types.KMSCredentials{}}}, errSubstr: "credentials_json is required"},

		{name: "transit", config: Config{Type: types.ProviderVault, Vault: &VaultConfig{KeyID: "documents", VaultAddress: "https://vault.example.com", VaultMount: "transit"}}, keyID: "documents", location: "https://vault.example.com"},
		{name: "transit missing key", config: Config{Type: types.ProviderVault, Vault: &VaultConfig{VaultAddress: "https://vault.example.com"}}, errSubstr: "transit key name is required"},
		{name: "transit missing address", config: Config{Type: types.ProviderVault, Vault: &VaultConfig{KeyID: "documents"}}, errSubstr: "vault address is required"},
		{name: "transit empty token", config: Config{Type: types.ProviderVault, Vault: &VaultConfig{KeyID: "documents", VaultAddress: "https://vault.example.com", Credentials: &types.KMSCredentials{}}}, errSubstr: "token is required"},

		{name: "unknown type", config: Config{Type: "hsm"}, errSubstr: "unsupported KMS provider type"},
		{name: "missing aead section", config: Config{Type: types.ProviderAead}, errSubstr: "aead configuration is missing"},
		{name: "missing aws section", config: Config{Type: types.ProviderAWS}, errSubstr: "aws configuration is missing"},
		{name: "missing azure section", config: Config{Type: types.ProviderAzure}, errSubstr: "azure configuration is missing"},
		{name: "missing gcp section", config: Config{Type: types.ProviderGCP}, errSubstr: "gcp configuration is missing"},
		{name: "missing vault section", config: Config{Type: types.ProviderVault}, errSubstr: "vault configuration is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.config.backend()
			if tt.errSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("backend() error = %v, want %q", err, tt.errSubstr)
				}
				if !errors.Is(err, types.ErrValidation) {
					t.Errorf("backend() error does not wrap ErrValidation: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("backend() error = %v", err)
			}
			if b.keyID != tt.keyID {
				t.Errorf("keyID = %q, want %q", b.keyID, tt.keyID)
			}
			if tt.location != "" && b.location != tt.location {
				t.Errorf("location = %q, want %q", b.location, tt.location)
			}
		})
	}
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Type: types.ProviderGCP, GCP: &GCPConfig{ResourceName: "invalid"}})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("NewProvider() error = %v, want ErrValidation", err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	ctx := context.Background()
	p := newAeadProvider(t)
	key := bytes.Repeat([]byte{0xab}, 32)

	blob, err := p.Wrap(ctx, key, "owner-1:doc-1")
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if blob.KeyID != "test-key" || bytes.Contains(blob.Ciphertext, key) {
		t.Errorf("blob = %+v", blob)
	}

	got, err := p.Unwrap(ctx, blob, "owner-1:doc-1")
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("unwrapped key does not match original")
	}

	if _, err := p.Unwrap(ctx, blob, "owner-2:doc-1"); err == nil {
		t.Error("Unwrap() with a different binding succeeded")
	}
	if _, err := p.Unwrap(ctx, nil, "owner-1:doc-1"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Unwrap(nil) error = %v", err)
	}
	if toWrappedBlob(nil) != nil || fromWrappedBlob(nil) != nil {
		t.Error("nil conversion should return nil")
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	p := newAeadProvider(t)

	if err := p.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := p.LastHealthCheck(); err != nil {
		t.Errorf("LastHealthCheck() = %v, want nil", err)
	}
	if p.KeyID() != "test-key" || p.Backend() != types.ProviderAead {
		t.Errorf("KeyID() = %q, Backend() = %q", p.KeyID(), p.Backend())
	}
}

func TestConfigFrom(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))

	cfg, err := ConfigFrom(types.KMSConfig{Provider: types.ProviderAead, KeyID: "local", AeadKey: key})
	if err != nil {
		t.Fatalf("ConfigFrom(aead) error = %v", err)
	}
	if cfg.Aead == nil || len(cfg.Aead.Key) != 32 || cfg.Aead.KeyID != "local" {
		t.Errorf("ConfigFrom(aead) = %+v", cfg.Aead)
	}

	cfg, err = ConfigFrom(types.KMSConfig{Provider: types.ProviderGCP, KeyID: "projects/p/locations/l/keyRings/r/cryptoKeys/k"})
	if err != nil {
		t.Fatalf("ConfigFrom(gcp) error = %v", err)
	}
	if cfg.GCP == nil || cfg.GCP.ResourceName != "projects/p/locations/l/keyRings/r/cryptoKeys/k" {
		t.Errorf("ConfigFrom(gcp) = %+v", cfg.GCP)
	}

	if _, err := ConfigFrom(types.KMSConfig{Provider: types.ProviderAead, AeadKey: "%%%"}); err == nil {
		t.Error("ConfigFrom() with invalid base64 succeeded")
	}
	if _, err := ConfigFrom(types.KMSConfig{Provider: "hsm"}); err == nil {
		t.Error("ConfigFrom() with unknown provider succeeded")
	}
}

func newAeadProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), Config{
		Type: types.ProviderAead,
		Aead: &AeadConfig{Key: bytes.Repeat([]byte{0x5a}, 32), KeyID: "test-key"},
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p
}
