package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/root-sector/docvault/audit"
	"github.com/root-sector/docvault/biometric"
	"github.com/root-sector/docvault/cache"
	"github.com/root-sector/docvault/cache/storage"
	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/config"
	"github.com/root-sector/docvault/coordinator"
	"github.com/root-sector/docvault/engine"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/keys"
	"github.com/root-sector/docvault/kms"
	"github.com/root-sector/docvault/stego"
	"github.com/root-sector/docvault/store"
	"github.com/root-sector/docvault/types"
)

// keyCachePrefix namespaces document keys in the cache backend
const keyCachePrefix = "docvault:keys:"

// Option customizes a Factory
type Option func(*Factory)

// WithClock injects the clock used by the gate, stores and engine
func WithClock(clk clock.Clock) Option {
	return func(f *Factory) { f.clock = clk }
}

// WithFeatureProvider supplies the provider for callback mode
func WithFeatureProvider(p interfaces.FeatureProvider) Option {
	return func(f *Factory) { f.featureProvider = p }
}

// WithDatabase uses an existing MongoDB database instead of connecting
func WithDatabase(db *mongo.Database) Option {
	return func(f *Factory) { f.db = db }
}

// Factory builds a Service from configuration and owns the resources it opens
type Factory struct {
	config          *config.Config
	clock           clock.Clock
	featureProvider interfaces.FeatureProvider

	db     *mongo.Database
	client *mongo.Client

	mu          sync.Mutex
	cacheStore  *storage.MemoryAdapter
	keyCache    *cache.KeyCache
	coordinator *coordinator.Coordinator
}

// NewFactory creates a new vault factory
func NewFactory(cfg *config.Config, opts ...Option) *Factory {
	f := &Factory{config: cfg, clock: clock.Real()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateService wires every component selected by the configuration
func (f *Factory) CreateService(ctx context.Context) (*Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.config == nil {
		return nil, fmt.Errorf("%w: configuration is required", types.ErrValidation)
	}
	if err := f.config.Validate(); err != nil {
		return nil, err
	}
	cfg := f.config

	log.Debug().
		Str("storage", cfg.Storage.Backend).
		Str("provider", cfg.Provider.Mode).
		Str("defaultStrategy", string(cfg.Keys.Default)).
		Bool("kms", cfg.KMS != nil).
		Msg("Creating vault service")

	documents, templates, attempts, objects, auditLogger, err := f.createStores(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := f.createKeys(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := f.createFeatureProvider()
	if err != nil {
		return nil, err
	}

	matcher, err := biometric.NewMatcher(provider, templates, cfg.Matcher, f.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}

	f.coordinator = coordinator.NewCoordinator(cfg.MaxWorkers, f.clock)

	svc, err := NewService(Dependencies{
		Engine:      engine.New(f.clock),
		Codec:       stego.New(),
		Matcher:     matcher,
		Keys:        registry,
		Documents:   documents,
		Templates:   templates,
		Objects:     objects,
		Attempts:    audit.NewAttemptLog(attempts, f.clock),
		Audit:       auditLogger,
		Coordinator: f.coordinator,
		Clock:       f.clock,
		Carrier: CarrierSpec{
			Width:    cfg.Carrier.Width,
			Height:   cfg.Carrier.Height,
			Channels: cfg.Carrier.Channels,
		},
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("storage", cfg.Storage.Backend).
		Str("provider", cfg.Provider.Mode).
		Int("workers", f.coordinator.Workers()).
		Msg("Vault service created")
	return svc, nil
}

func (f *Factory) createStores(ctx context.Context) (interfaces.DocumentStore, interfaces.TemplateStore, interfaces.AttemptStore, interfaces.ObjectStore, interfaces.AuditLogger, error) {
	cfg := f.config
	if cfg.Storage.Backend == config.StorageMemory && f.db == nil {
		log.Debug().Msg("Creating in-memory stores")
		return store.NewMemoryDocumentStore(),
			store.NewMemoryTemplateStore(),
			store.NewMemoryAttemptStore(),
			store.NewMemoryObjectStore(),
			audit.NewMemoryAuditLogger(),
			nil
	}

	if f.db == nil {
		log.Debug().Str("database", cfg.Storage.Database).Msg("Connecting to MongoDB")
		client, db, err := store.Connect(ctx, cfg.Storage.URI, cfg.Storage.Database)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		f.client, f.db = client, db
	}
	if err := store.EnsureIndexes(ctx, f.db); err != nil {
		return nil, nil, nil, nil, nil, err
	}

	return store.NewMongoDocumentStore(f.db),
		store.NewMongoTemplateStore(f.db),
		store.NewMongoAttemptStore(f.db),
		store.NewMongoObjectStore(f.db),
		audit.NewMongoAuditLogger(f.db),
		nil
}

func (f *Factory) createKeys(ctx context.Context) (*keys.Registry, error) {
	cfg := f.config
	var providers []interfaces.KeyProvider

	passphrase, err := keys.NewPassphraseProvider(cfg.Keys.Argon2)
	if err != nil {
		return nil, err
	}
	providers = append(providers, passphrase)

	secret, err := cfg.MasterSecret()
	if err != nil {
		return nil, err
	}
	if secret != nil {
		identity, err := keys.NewIdentityProvider(secret)
		if err != nil {
			return nil, err
		}
		providers = append(providers, identity)
	}

	if cfg.KMS != nil {
		kmsConfig, err := kms.ConfigFrom(*cfg.KMS)
		if err != nil {
			return nil, err
		}
		kmsProvider, err := kms.NewProvider(ctx, kmsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS provider: %w", err)
		}
		if err := kmsProvider.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("KMS provider health check failed: %w", err)
		}

		var keyCache interfaces.KeyCache
		if cfg.Cache.Enabled {
			f.cacheStore = storage.NewMemoryAdapter(cfg.Cache.MaxEntries, f.clock)
			f.keyCache = cache.NewKeyCache(cfg.Cache, storage.NewPrefixAdapter(f.cacheStore, keyCachePrefix))
			keyCache = f.keyCache
		}
		envelope, err := keys.NewEnvelopeProvider(kmsProvider, keyCache)
		if err != nil {
			return nil, err
		}
		providers = append(providers, envelope)
	}

	return keys.NewRegistry(cfg.Keys.Default, providers...)
}

func (f *Factory) createFeatureProvider() (interfaces.FeatureProvider, error) {
	cfg := f.config
	switch cfg.Provider.Mode {
	case config.ProviderRemote:
		log.Debug().Str("endpoint", cfg.Provider.Endpoint).Msg("Using remote feature provider")
		remote, err := biometric.NewRemoteProvider(cfg.Provider.Endpoint, cfg.Provider.APIKey, &http.Client{Timeout: cfg.Provider.Timeout})
		if err != nil {
			return nil, err
		}
		return remote, nil
	case config.ProviderCallback:
		if f.featureProvider == nil {
			return nil, fmt.Errorf("%w: callback provider mode requires WithFeatureProvider", types.ErrValidation)
		}
		return f.featureProvider, nil
	default:
		log.Warn().Msg("Using stub feature provider; biometric decisions are not meaningful")
		return biometric.NewStubProvider(cfg.Matcher.Dimensions), nil
	}
}

// Close stops workers, wipes cached keys and disconnects from MongoDB
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	if f.coordinator != nil {
		errs = append(errs, f.coordinator.Shutdown(ctx))
	}
	if f.keyCache != nil {
		errs = append(errs, f.keyCache.Shutdown(ctx))
	}
	if f.cacheStore != nil {
		errs = append(errs, f.cacheStore.Shutdown())
	}
	if f.client != nil {
		errs = append(errs, f.client.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
