// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentBackend: Document and label persistence per index
//   - ConfigStore: Application configuration
//   - NormaliserRegistry: Selects the normaliser for an ingested file
//   - Splitter: Breaks long text into passages
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, embedding
//     retrieval and ingest-time embedding return ErrEmbeddingUnavailable.
//   - AIConfigValidator: Pings the embedding provider when settings change.
package driven
