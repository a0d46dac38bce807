package driven

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// DocumentBackend is the persistence layer beneath the document store.
// Every operation names its index explicitly; defaults and duplicate
// handling live in the service layer.
//
// Implementations must be safe for concurrent use. Reads may observe any
// snapshot; writes to the same index are not linearised against reads.
type DocumentBackend interface {
	// WriteDocuments upserts docs. A document whose ID already exists in the
	// index replaces the stored one.
	WriteDocuments(ctx context.Context, index string, docs []domain.Document) error

	// GetDocumentsByID returns the stored documents among ids. Missing IDs
	// are omitted without error.
	GetDocumentsByID(ctx context.Context, index string, ids []string) ([]domain.Document, error)

	// GetAllDocuments returns documents matching filters in a stable order.
	// Embeddings are dropped unless returnEmbedding is set.
	GetAllDocuments(ctx context.Context, index string, filters domain.Filters, returnEmbedding bool) ([]domain.Document, error)

	// GetDocumentCount counts documents matching filters.
	GetDocumentCount(ctx context.Context, index string, filters domain.Filters) (int, error)

	// QueryByEmbedding returns at most topK documents matching filters,
	// ranked by descending cosine similarity to embedding with ties broken
	// by ascending ID. Score and Probability are set on every result.
	QueryByEmbedding(ctx context.Context, index string, embedding []float32, filters domain.Filters, topK int, returnEmbedding bool) ([]domain.Document, error)

	// DeleteDocuments removes documents matching filters. Empty filters
	// remove every document in the index.
	DeleteDocuments(ctx context.Context, index string, filters domain.Filters) error

	// WriteLabels upserts labels by ID.
	WriteLabels(ctx context.Context, index string, labels []domain.Label) error

	// GetAllLabels returns labels matching filters in a stable order.
	GetAllLabels(ctx context.Context, index string, filters domain.Filters) ([]domain.Label, error)

	// GetLabelCount counts labels in the index.
	GetLabelCount(ctx context.Context, index string) (int, error)

	// Close releases resources.
	Close() error
}
