package domain

import "fmt"

const unknownDescription = "Unknown"

// StorageBackend identifies a document backend implementation.
type StorageBackend string

// Available storage backends.
const (
	// StorageBackendMemory keeps documents in process memory.
	StorageBackendMemory StorageBackend = "memory"

	// StorageBackendSQLite persists documents in a local SQLite file.
	StorageBackendSQLite StorageBackend = "sqlite"

	// StorageBackendPostgres persists documents in PostgreSQL with pgvector.
	StorageBackendPostgres StorageBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageBackendMemory, StorageBackendSQLite, StorageBackendPostgres:
		return true
	default:
		return false
	}
}

// IsPersistent returns true if documents survive process restarts.
func (b StorageBackend) IsPersistent() bool {
	return b == StorageBackendSQLite || b == StorageBackendPostgres
}

// String returns the string representation.
func (b StorageBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b StorageBackend) Description() string {
	switch b {
	case StorageBackendMemory:
		return "Memory (process lifetime only)"
	case StorageBackendSQLite:
		return "SQLite (local file)"
	case StorageBackendPostgres:
		return "PostgreSQL (pgvector)"
	default:
		return unknownDescription
	}
}

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StoreSettings holds document store configuration.
type StoreSettings struct {
	// Backend selects the storage implementation.
	Backend StorageBackend

	// Index is the default document index.
	Index string

	// LabelIndex is the default label index.
	LabelIndex string

	// BatchSize bounds records per backend request.
	BatchSize int

	// DuplicatePolicy is the default write policy.
	DuplicatePolicy DuplicatePolicy

	// DataDir is the SQLite data directory. Empty means ~/.jam/data.
	DataDir string

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the model's vector size.
	Dimensions int

	// RequestsPerSecond throttles embedding requests. Zero disables throttling.
	RequestsPerSecond float64

	// CacheSize is the number of memoised embeddings. Zero disables caching.
	CacheSize int

	// CacheTTLSeconds expires memoised embeddings.
	CacheTTLSeconds int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RetrievalSettings holds retriever defaults.
type RetrievalSettings struct {
	// TopK is the default number of results per query.
	TopK int
}

// IngestSettings holds ingestion defaults.
type IngestSettings struct {
	// SplitLength is the passage length in characters. Zero disables splitting.
	SplitLength int

	// SplitOverlap is the overlap between passages in characters.
	SplitOverlap int

	// HashScheme selects ID derivation.
	HashScheme HashScheme
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Store holds document store settings.
	Store StoreSettings

	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// Retrieval holds retriever settings.
	Retrieval RetrievalSettings

	// Ingest holds ingestion settings.
	Ingest IngestSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The embedding provider is left unconfigured by default.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Store: StoreSettings{
			Backend:         StorageBackendSQLite,
			Index:           DefaultIndex,
			LabelIndex:      DefaultLabelIndex,
			BatchSize:       DefaultBatchSize,
			DuplicatePolicy: DuplicateSkip,
		},
		Embedding: EmbeddingSettings{
			CacheTTLSeconds: 3600,
		},
		Retrieval: RetrievalSettings{
			TopK: DefaultRetrieveTopK,
		},
		Ingest: IngestSettings{
			SplitOverlap: 0,
			HashScheme:   HashSchemeMurmur3,
		},
	}
}

// Validate checks that the settings are internally consistent.
func (s AppSettings) Validate() error {
	if !s.Store.Backend.IsValid() {
		return fmt.Errorf("%w: storage backend %q", ErrUnsupportedType, s.Store.Backend)
	}
	if s.Store.Backend == StorageBackendPostgres && s.Store.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres backend requires store.postgres_dsn", ErrInvalidInput)
	}
	if !s.Store.DuplicatePolicy.IsValid() {
		return fmt.Errorf("%w: duplicate policy %q", ErrInvalidArgument, s.Store.DuplicatePolicy)
	}
	if s.Store.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidInput)
	}
	if s.Embedding.Provider != "" && !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", ErrUnsupportedType, s.Embedding.Provider)
	}
	if !s.Ingest.HashScheme.IsValid() {
		return fmt.Errorf("%w: hash scheme %q", ErrInvalidArgument, s.Ingest.HashScheme)
	}
	if s.Ingest.SplitLength < 0 || s.Ingest.SplitOverlap < 0 {
		return fmt.Errorf("%w: split length and overlap must not be negative", ErrInvalidInput)
	}
	return nil
}

// AllStorageBackends returns every storage backend.
func AllStorageBackends() []StorageBackend {
	return []StorageBackend{
		StorageBackendMemory,
		StorageBackendSQLite,
		StorageBackendPostgres,
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":       768,
		"mxbai-embed-large":      1024,
		"all-minilm":             384,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
