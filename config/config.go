// Package config loads the vault configuration from YAML.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/root-sector/docvault/types"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Feature provider modes
const (
	ProviderStub     = "stub"
	ProviderRemote   = "remote"
	ProviderCallback = "callback"
)

type Config struct {
	Log      LogConfig           `yaml:"log"`
	Keys     KeysConfig          `yaml:"keys"`
	KMS      *types.KMSConfig    `yaml:"kms,omitempty"`
	Cache    types.CacheConfig   `yaml:"cache"`
	Matcher  types.MatcherConfig `yaml:"matcher"`
	Provider ProviderConfig      `yaml:"provider"`
	Carrier  CarrierConfig       `yaml:"carrier"`
	Storage  StorageConfig       `yaml:"storage"`

	// MaxWorkers bounds concurrent CPU-bound vault work; 0 uses GOMAXPROCS
	MaxWorkers int `yaml:"max_workers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// KeysConfig selects the default key strategy and holds the identity master secret
type KeysConfig struct {
	Default      types.KeyStrategy  `yaml:"default"`
	MasterSecret string             `yaml:"master_secret_base64,omitempty"`
	Argon2       types.Argon2Params `yaml:"argon2"`
}

type ProviderConfig struct {
	Mode     string        `yaml:"mode"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"http_timeout"`
}

type CarrierConfig struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	Channels int `yaml:"channels"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"`
	URI      string `yaml:"uri,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// DefaultConfig returns a Config struct with default values
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Keys: KeysConfig{
			Default: types.KeyStrategyPassphrase,
			Argon2:  types.Argon2Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4},
		},
		Cache: types.CacheConfig{
			Enabled:    true,
			TTL:        types.DefaultCacheTTLMinutes,
			MaxEntries: 1000,
		},
		Matcher: types.DefaultMatcherConfig(),
		Provider: ProviderConfig{
			Mode:    ProviderStub,
			Timeout: 30 * time.Second,
		},
		Carrier: CarrierConfig{
			Width:    1920,
			Height:   1080,
			Channels: 3,
		},
		Storage: StorageConfig{
			Backend:  StorageMemory,
			Database: "docvault",
		},
	}
}

// Load reads configuration from the specified file path. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the vault cannot run with
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: invalid log level %q", types.ErrValidation, c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: log format must be json or console", types.ErrValidation)
	}

	switch c.Keys.Default {
	case types.KeyStrategyPassphrase:
	case types.KeyStrategyIdentity:
		if c.Keys.MasterSecret == "" {
			return fmt.Errorf("%w: identity key strategy requires keys.master_secret_base64", types.ErrValidation)
		}
	case types.KeyStrategyEnvelope:
		if c.KMS == nil {
			return fmt.Errorf("%w: envelope key strategy requires a kms section", types.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown key strategy %q", types.ErrValidation, c.Keys.Default)
	}
	if c.Keys.MasterSecret != "" {
		secret, err := c.MasterSecret()
		if err != nil {
			return err
		}
		if len(secret) < 32 {
			return fmt.Errorf("%w: master secret must be at least 32 bytes", types.ErrValidation)
		}
	}
	if c.KMS != nil && c.KMS.Provider == "" {
		return fmt.Errorf("%w: kms.provider is required", types.ErrValidation)
	}

	if c.Matcher.QualityFloor < 0 || c.Matcher.QualityFloor > 1 {
		return fmt.Errorf("%w: matcher quality floor must be in [0, 1]", types.ErrValidation)
	}
	for kind, n := range c.Matcher.Dimensions {
		if n <= 0 {
			return fmt.Errorf("%w: dimension for %s must be positive", types.ErrValidation, kind)
		}
		t, ok := c.Matcher.Thresholds[kind]
		if !ok {
			return fmt.Errorf("%w: no threshold configured for %s", types.ErrValidation, kind)
		}
		if t < -1 || t > 1 {
			return fmt.Errorf("%w: threshold for %s must be in [-1, 1]", types.ErrValidation, kind)
		}
	}

	switch c.Provider.Mode {
	case ProviderStub, ProviderCallback:
	case ProviderRemote:
		if c.Provider.Endpoint == "" {
			return fmt.Errorf("%w: remote provider requires an endpoint", types.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown provider mode %q", types.ErrValidation, c.Provider.Mode)
	}

	if c.Carrier.Width <= 0 || c.Carrier.Height <= 0 {
		return fmt.Errorf("%w: carrier dimensions must be positive", types.ErrValidation)
	}
	if c.Carrier.Channels != 3 && c.Carrier.Channels != 4 {
		return fmt.Errorf("%w: carrier channels must be 3 or 4", types.ErrValidation)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageMongo:
		if c.Storage.URI == "" || c.Storage.Database == "" {
			return fmt.Errorf("%w: mongo storage requires uri and database", types.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", types.ErrValidation, c.Storage.Backend)
	}

	if c.MaxWorkers < 0 {
		return fmt.Errorf("%w: max_workers cannot be negative", types.ErrValidation)
	}
	return nil
}

// MasterSecret decodes the identity master secret
func (c *Config) MasterSecret() ([]byte, error) {
	if c.Keys.MasterSecret == "" {
		return nil, nil
	}
	secret, err := base64.StdEncoding.DecodeString(c.Keys.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: master secret is not valid base64", types.ErrValidation)
	}
	return secret, nil
}

// ApplyLogging sets the global zerolog level and output format
func (c *Config) ApplyLogging() {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if c.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
