package kms

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	kmsaead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	awskms "github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	azurekeyvault "github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	gcpckms "github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	transit "github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/types"
)

// backend is a validated provider configuration ready to build its wrapper
type backend struct {
	keyID    string
	location string
	build    func(ctx context.Context) (wrapping.Wrapper, error)
}

// backend validates the section selected by Type
func (c Config) backend() (*backend, error) {
	switch c.Type {
	case types.ProviderAead:
		if c.Aead == nil {
			return nil, missingSection(c.Type)
		}
		return aeadBackend(*c.Aead)
	case types.ProviderAWS:
		if c.AWS == nil {
			return nil, missingSection(c.Type)
		}
		return awsBackend(*c.AWS)
	case types.ProviderAzure:
		if c.Azure == nil {
			return nil, missingSection(c.Type)
		}
		return azureBackend(*c.Azure)
	case types.ProviderGCP:
		if c.GCP == nil {
			return nil, missingSection(c.Type)
		}
		return gcpBackend(*c.GCP)
	case types.ProviderVault:
		if c.Vault == nil {
			return nil, missingSection(c.Type)
		}
		return transitBackend(*c.Vault)
	default:
		return nil, fmt.Errorf("%w: unsupported KMS provider type %q", types.ErrValidation, c.Type)
	}
}

func missingSection(t types.ProviderType) error {
	return fmt.Errorf("%w: %s configuration is missing", types.ErrValidation, t)
}

func invalid(t types.ProviderType, format string, args ...interface{}) error {
	return fmt.Errorf("%w: invalid %s configuration: %s", types.ErrValidation, t, fmt.Sprintf(format, args...))
}

// configure applies a config map to a freshly created wrapper
func configure(ctx context.Context, w wrapping.Wrapper, settings map[string]string) (wrapping.Wrapper, error) {
	if _, err := w.SetConfig(ctx, wrapping.WithConfigMap(settings)); err != nil {
		return nil, err
	}
	return w, nil
}

func aeadBackend(c AeadConfig) (*backend, error) {
	if len(c.Key) != 32 {
		return nil, invalid(types.ProviderAead, "key must be 32 bytes, got %d", len(c.Key))
	}
	key := append([]byte(nil), c.Key...)
	return &backend{
		keyID:    c.KeyID,
		location: "local",
		build: func(ctx context.Context) (wrapping.Wrapper, error) {
			w := kmsaead.NewWrapper()
			opts := []wrapping.Option{kmsaead.WithKey(key)}
			if c.KeyID != "" {
				opts = append(opts, wrapping.WithKeyId(c.KeyID))
			}
			if _, err := w.SetConfig(ctx, opts...); err != nil {
				return nil, err
			}
			return w, nil
		},
	}, nil
}

func awsBackend(c AWSConfig) (*backend, error) {
	switch {
	case c.KeyID == "":
		return nil, invalid(types.ProviderAWS, "key ARN is required")
	case c.Region == "":
		return nil, invalid(types.ProviderAWS, "region is required")
	}

	settings := map[string]string{"kms_key_id": c.KeyID, "region": c.Region}
	if cred := c.Credentials; cred != nil {
		if (cred.AccessKeyID == "") != (cred.SecretAccessKey == "") {
			return nil, invalid(types.ProviderAWS, "access_key_id and secret_access_key must be set together")
		}
		setIf(settings, "access_key", cred.AccessKeyID)
		setIf(settings, "secret_key", cred.SecretAccessKey)
		setIf(settings, "session_token", cred.SessionToken)
	} else {
		log.Info().Msg("AWS credentials not in config, using the default credential chain")
	}

	return &backend{
		keyID:    c.KeyID,
		location: c.Region,
		build: func(ctx context.Context) (wrapping.Wrapper, error) {
			return configure(ctx, awskms.NewWrapper(), settings)
		},
	}, nil
}

// azureBackend accepts a key identifier URL such as
// https://myvault.vault.azure.net/keys/mykey/version or a bare key name
func azureBackend(c AzureConfig) (*backend, error) {
	if c.KeyID == "" {
		return nil, invalid(types.ProviderAzure, "key identifier is required")
	}
	host, ok := strings.CutPrefix(c.VaultAddress, "https://")
	if !ok || !strings.Contains(host, ".vault.azure.net") {
		return nil, invalid(types.ProviderAzure, "vault address %q is not an Azure Key Vault URL", c.VaultAddress)
	}
	vaultName, _, _ := strings.Cut(host, ".")
	if vaultName == "" {
		return nil, invalid(types.ProviderAzure, "vault address %q has no vault name", c.VaultAddress)
	}

	settings := map[string]string{
		"key_name":   c.KeyID,
		"vault_name": vaultName,
		"vault_url":  c.VaultAddress,
	}
	if parts := strings.Split(c.KeyID, "/"); len(parts) >= 5 && parts[3] == "keys" {
		settings["key_name"] = parts[4]
		if len(parts) >= 6 && parts[5] != "" {
			settings["key_version"] = parts[5]
		}
	}

	if cred := c.Credentials; cred != nil {
		for name, v := range map[string]string{"tenant_id": cred.TenantID, "client_id": cred.ClientID, "client_secret": cred.ClientSecret} {
			if v == "" {
				return nil, invalid(types.ProviderAzure, "credentials.%s is required", name)
			}
			settings[name] = v
		}
	} else {
		log.Info().Msg("Azure credentials not in config, using managed identity")
	}

	return &backend{
		keyID:    c.KeyID,
		location: c.VaultAddress,
		build: func(ctx context.Context) (wrapping.Wrapper, error) {
			return configure(ctx, azurekeyvault.NewWrapper(), settings)
		},
	}, nil
}

// gcpBackend expects projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
func gcpBackend(c GCPConfig) (*backend, error) {
	parts := strings.Split(c.ResourceName, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return nil, invalid(types.ProviderGCP, "resource name %q is not a crypto key resource name", c.ResourceName)
	}
	for _, i := range []int{1, 3, 5, 7} {
		if parts[i] == "" {
			return nil, invalid(types.ProviderGCP, "resource name %q has an empty component", c.ResourceName)
		}
	}
	var credentials string
	if c.Credentials != nil {
		if c.Credentials.CredentialsJSON == "" {
			return nil, invalid(types.ProviderGCP, "credentials.credentials_json is required")
		}
		credentials = c.Credentials.CredentialsJSON
	} else {
		log.Info().Msg("GCP credentials not in config, using Application Default Credentials")
	}

	settings := map[string]string{
		"project":    parts[1],
		"region":     parts[3],
		"key_ring":   parts[5],
		"crypto_key": parts[7],
	}
	return &backend{
		keyID:    c.ResourceName,
		location: parts[3],
		build: func(ctx context.Context) (wrapping.Wrapper, error) {
			if credentials == "" {
				return configure(ctx, gcpckms.NewWrapper(), settings)
			}
			// the wrapper reads credentials from a file only
			path, cleanup, err := writeTempCredentials(credentials)
			if err != nil {
				return nil, err
			}
			defer cleanup()
			withFile := make(map[string]string, len(settings)+1)
			for k, v := range settings {
				withFile[k] = v
			}
			withFile["credentials"] = path
			return configure(ctx, gcpckms.NewWrapper(), withFile)
		},
	}, nil
}

func writeTempCredentials(content string) (string, func(), error) {
	f, err := os.CreateTemp("", "docvault-gcp-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create credentials file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("filePath", f.Name()).Msg("Failed to remove temporary credentials file")
		}
	}
	_, werr := f.WriteString(content)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write credentials file: %w", werr)
	}
	return f.Name(), cleanup, nil
}

func transitBackend(c VaultConfig) (*backend, error) {
	switch {
	case c.KeyID == "":
		return nil, invalid(types.ProviderVault, "transit key name is required")
	case c.VaultAddress == "":
		return nil, invalid(types.ProviderVault, "vault address is required")
	}

	settings := map[string]string{"address": c.VaultAddress, "key_name": c.KeyID}
	setIf(settings, "mount_path", c.VaultMount)
	if c.Credentials != nil {
		if c.Credentials.Token == "" {
			return nil, invalid(types.ProviderVault, "credentials.token is required")
		}
		settings["token"] = c.Credentials.Token
	} else {
		log.Info().Msg("Vault token not in config, using VAULT_TOKEN")
	}

	return &backend{
		keyID:    c.KeyID,
		location: c.VaultAddress,
		build: func(ctx context.Context) (wrapping.Wrapper, error) {
			return configure(ctx, transit.NewWrapper(), settings)
		},
	}, nil
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
