package domain

// Store defaults.
const (
	// DefaultIndex is the document index used when none is configured.
	DefaultIndex = "document"

	// DefaultLabelIndex is the label index used when none is configured.
	DefaultLabelIndex = "label"

	// DefaultBatchSize bounds the number of records per backend request.
	DefaultBatchSize = 10_000

	// DefaultTopK is the result limit of QueryByEmbedding.
	DefaultTopK = 10

	// DefaultRetrieveTopK is the per-query result limit of retrievers.
	DefaultRetrieveTopK = 5
)

// WriteOptions configures a document write.
// Zero values fall back to the store's configured defaults.
type WriteOptions struct {
	// Index is the target index.
	Index string

	// BatchSize bounds the documents per backend request.
	BatchSize int

	// DuplicatePolicy decides what happens to existing IDs.
	DuplicatePolicy DuplicatePolicy
}

// QueryOptions configures reads, counts, deletes and embedding queries.
type QueryOptions struct {
	// Index is the index to read from.
	Index string

	// Filters narrows the result set.
	Filters Filters

	// ReturnEmbedding includes embedding vectors in results.
	ReturnEmbedding bool

	// TopK bounds the number of ranked results (QueryByEmbedding only).
	TopK int
}

// LookupOptions configures an ID lookup.
type LookupOptions struct {
	// Index is the index to read from.
	Index string

	// BatchSize bounds the IDs per backend request.
	BatchSize int
}

// RetrieveOptions configures a retriever call.
type RetrieveOptions struct {
	// Index is the index to search. Defaults to "document".
	Index string

	// TopK is the maximum number of results per query. Defaults to 5.
	TopK int
}

// Query is one retrieval request.
type Query struct {
	// Text is the query text.
	Text string

	// Filters restricts candidate documents.
	Filters Filters

	// Embedding is a precomputed query vector. When set, embedding
	// retrievers use it instead of embedding Text.
	Embedding []float32
}

// IngestOptions configures how raw input becomes documents.
type IngestOptions struct {
	// Write configures the store write.
	Write WriteOptions

	// FieldMap renames record keys to Document fields.
	FieldMap map[string]string

	// HashScheme selects ID derivation for records without an ID.
	HashScheme HashScheme

	// IDHashKeys selects the fields that take part in ID derivation.
	IDHashKeys []string

	// SplitLength splits text into passages of at most this many
	// characters. Zero disables splitting.
	SplitLength int

	// SplitOverlap is the number of characters shared by adjacent passages.
	SplitOverlap int

	// Embed computes embeddings for documents that have none.
	Embed bool

	// Meta is merged into every produced document's meta.
	Meta map[string]any
}

// IngestResult summarises an ingest call.
type IngestResult struct {
	// Submitted is the number of documents handed to the store.
	Submitted int

	// Written is the number of documents the store accepted.
	Written int
}
