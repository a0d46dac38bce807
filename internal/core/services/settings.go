package services

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyStoreBackend         = "store.backend"
	KeyStoreIndex           = "store.index"
	KeyStoreLabelIndex      = "store.label_index"
	KeyStoreBatchSize       = "store.batch_size"
	KeyStoreDuplicatePolicy = "store.duplicate_policy"
	KeyStoreDataDir         = "store.data_dir"
	KeyStorePostgresDSN     = "store.postgres_dsn"
	KeyEmbedProvider        = "embedding.provider"
	KeyEmbedModel           = "embedding.model"
	KeyEmbedBaseURL         = "embedding.base_url"
	KeyEmbedAPIKey          = "embedding.api_key"
	KeyEmbedDimensions      = "embedding.dimensions"
	KeyEmbedRPS             = "embedding.requests_per_second"
	KeyEmbedCacheSize       = "embedding.cache_size"
	KeyEmbedCacheTTL        = "embedding.cache_ttl_seconds"
	KeyRetrievalTopK        = "retrieval.top_k"
	KeyIngestSplitLength    = "ingest.split_length"
	KeyIngestSplitOverlap   = "ingest.split_overlap"
	KeyIngestHashScheme     = "ingest.hash_scheme"
)

// setting binds a config key to a field of domain.AppSettings.
type setting struct {
	// read loads the stored value into s, keeping the default when unset.
	read func(cfg driven.ConfigStore, s *domain.AppSettings)
	// value returns the field in the type it is stored as.
	value func(s *domain.AppSettings) any
	// parse sets the field from user input.
	parse func(s *domain.AppSettings, raw string) error
}

func stringSetting(key string, field func(*domain.AppSettings) *string) setting {
	return setting{
		read: func(cfg driven.ConfigStore, s *domain.AppSettings) {
			if v := cfg.GetString(key); v != "" {
				*field(s) = v
			}
		},
		value: func(s *domain.AppSettings) any { return *field(s) },
		parse: func(s *domain.AppSettings, raw string) error {
			*field(s) = raw
			return nil
		},
	}
}

func intSetting(key string, field func(*domain.AppSettings) *int) setting {
	return setting{
		read: func(cfg driven.ConfigStore, s *domain.AppSettings) {
			if _, ok := cfg.Get(key); ok {
				*field(s) = cfg.GetInt(key)
			}
		},
		value: func(s *domain.AppSettings) any { return *field(s) },
		parse: func(s *domain.AppSettings, raw string) error {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidInput, key, raw)
			}
			if n < 0 {
				return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidInput, key)
			}
			*field(s) = n
			return nil
		},
	}
}

func floatSetting(key string, field func(*domain.AppSettings) *float64) setting {
	return setting{
		read: func(cfg driven.ConfigStore, s *domain.AppSettings) {
			if _, ok := cfg.Get(key); ok {
				*field(s) = cfg.GetFloat(key)
			}
		},
		value: func(s *domain.AppSettings) any { return *field(s) },
		parse: func(s *domain.AppSettings, raw string) error {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("%w: %s must be a non-negative number, got %q", domain.ErrInvalidInput, key, raw)
			}
			*field(s) = f
			return nil
		},
	}
}

// typedSetting handles string-backed enums with their own parser.
func typedSetting[T ~string](key string, field func(*domain.AppSettings) *T, parse func(string) (T, error)) setting {
	return setting{
		read: func(cfg driven.ConfigStore, s *domain.AppSettings) {
			v := cfg.GetString(key)
			if v == "" {
				return
			}
			if parsed, err := parse(v); err == nil {
				*field(s) = parsed
			}
		},
		value: func(s *domain.AppSettings) any { return string(*field(s)) },
		parse: func(s *domain.AppSettings, raw string) error {
			parsed, err := parse(raw)
			if err != nil {
				return err
			}
			*field(s) = parsed
			return nil
		},
	}
}

func parseBackend(raw string) (domain.StorageBackend, error) {
	b := domain.StorageBackend(raw)
	if !b.IsValid() {
		return "", fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, raw)
	}
	return b, nil
}

func parseProvider(raw string) (domain.AIProvider, error) {
	p := domain.AIProvider(raw)
	if raw != "" && !p.IsValid() {
		return "", fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, raw)
	}
	return p, nil
}

// settings lists every recognised config key.
var settings = map[string]setting{
	KeyStoreBackend: typedSetting(KeyStoreBackend,
		func(s *domain.AppSettings) *domain.StorageBackend { return &s.Store.Backend }, parseBackend),
	KeyStoreIndex: stringSetting(KeyStoreIndex,
		func(s *domain.AppSettings) *string { return &s.Store.Index }),
	KeyStoreLabelIndex: stringSetting(KeyStoreLabelIndex,
		func(s *domain.AppSettings) *string { return &s.Store.LabelIndex }),
	KeyStoreBatchSize: intSetting(KeyStoreBatchSize,
		func(s *domain.AppSettings) *int { return &s.Store.BatchSize }),
	KeyStoreDuplicatePolicy: typedSetting(KeyStoreDuplicatePolicy,
		func(s *domain.AppSettings) *domain.DuplicatePolicy { return &s.Store.DuplicatePolicy },
		domain.ParseDuplicatePolicy),
	KeyStoreDataDir: stringSetting(KeyStoreDataDir,
		func(s *domain.AppSettings) *string { return &s.Store.DataDir }),
	KeyStorePostgresDSN: stringSetting(KeyStorePostgresDSN,
		func(s *domain.AppSettings) *string { return &s.Store.PostgresDSN }),
	KeyEmbedProvider: typedSetting(KeyEmbedProvider,
		func(s *domain.AppSettings) *domain.AIProvider { return &s.Embedding.Provider }, parseProvider),
	KeyEmbedModel: stringSetting(KeyEmbedModel,
		func(s *domain.AppSettings) *string { return &s.Embedding.Model }),
	KeyEmbedBaseURL: stringSetting(KeyEmbedBaseURL,
		func(s *domain.AppSettings) *string { return &s.Embedding.BaseURL }),
	KeyEmbedAPIKey: stringSetting(KeyEmbedAPIKey,
		func(s *domain.AppSettings) *string { return &s.Embedding.APIKey }),
	KeyEmbedDimensions: intSetting(KeyEmbedDimensions,
		func(s *domain.AppSettings) *int { return &s.Embedding.Dimensions }),
	KeyEmbedRPS: floatSetting(KeyEmbedRPS,
		func(s *domain.AppSettings) *float64 { return &s.Embedding.RequestsPerSecond }),
	KeyEmbedCacheSize: intSetting(KeyEmbedCacheSize,
		func(s *domain.AppSettings) *int { return &s.Embedding.CacheSize }),
	KeyEmbedCacheTTL: intSetting(KeyEmbedCacheTTL,
		func(s *domain.AppSettings) *int { return &s.Embedding.CacheTTLSeconds }),
	KeyRetrievalTopK: intSetting(KeyRetrievalTopK,
		func(s *domain.AppSettings) *int { return &s.Retrieval.TopK }),
	KeyIngestSplitLength: intSetting(KeyIngestSplitLength,
		func(s *domain.AppSettings) *int { return &s.Ingest.SplitLength }),
	KeyIngestSplitOverlap: intSetting(KeyIngestSplitOverlap,
		func(s *domain.AppSettings) *int { return &s.Ingest.SplitOverlap }),
	KeyIngestHashScheme: typedSetting(KeyIngestHashScheme,
		func(s *domain.AppSettings) *domain.HashScheme { return &s.Ingest.HashScheme }, domain.ParseHashScheme),
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Unset or unparsable values
// fall back to their defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	out := domain.DefaultAppSettings()
	for _, st := range settings {
		st.read(s.configStore, &out)
	}
	return &out, nil
}

// Save persists application settings. An empty API key leaves the stored
// key untouched.
func (s *SettingsService) Save(appSettings *domain.AppSettings) error {
	for _, key := range s.Keys() {
		if key == KeyEmbedAPIKey && appSettings.Embedding.APIKey == "" {
			continue
		}
		if err := s.configStore.Set(key, settings[key].value(appSettings)); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// GetValue returns the effective value of key.
func (s *SettingsService) GetValue(key string) (string, error) {
	st, ok := settings[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidArgument, key)
	}
	current, err := s.Get()
	if err != nil {
		return "", err
	}
	return fmt.Sprint(st.value(current)), nil
}

// SetValue parses value for key, validates the resulting settings and
// persists the key.
func (s *SettingsService) SetValue(key, value string) error {
	st, ok := settings[key]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidArgument, key)
	}
	current, err := s.Get()
	if err != nil {
		return err
	}
	if err := st.parse(current, value); err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}
	if err := s.configStore.Set(key, st.value(current)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys returns every recognised config key in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	current, err := s.Get()
	if err != nil {
		return err
	}

	current.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		current.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		current.Embedding.Model = defaultModel
	}

	// Set base URL based on provider type
	if provider.IsLocal() {
		if current.Embedding.BaseURL == "" {
			current.Embedding.BaseURL = "http://localhost:11434"
		}
	} else {
		current.Embedding.BaseURL = ""
	}

	current.Embedding.APIKey = apiKey

	// Update vector dimensions based on model
	if d, ok := domain.EmbeddingDimensions()[current.Embedding.Model]; ok {
		current.Embedding.Dimensions = d
	}

	return s.Save(current)
}

// Validate checks that current settings are consistent.
func (s *SettingsService) Validate() error {
	current, err := s.Get()
	if err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}
	if current.Ingest.SplitLength > 0 && current.Ingest.SplitOverlap >= current.Ingest.SplitLength {
		return fmt.Errorf("%w: %s must be smaller than %s",
			domain.ErrInvalidInput, KeyIngestSplitOverlap, KeyIngestSplitLength)
	}
	if current.Embedding.Provider != "" && !current.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not fully configured",
			domain.ErrInvalidInput, current.Embedding.Provider)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	current, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&current.Embedding)
}
