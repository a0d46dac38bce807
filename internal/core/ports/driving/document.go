package driving

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// DocumentStore is the document store contract offered to consumers.
// It layers duplicate handling, batching and index defaults over a backend.
//
// Zero-valued option fields fall back to the store's configured defaults.
type DocumentStore interface {
	// WriteDocuments stores docs under the duplicate policy and returns the
	// number of documents handed to the backend.
	//
	// Under DuplicateFail a collision aborts the whole write with a
	// *domain.DuplicateDocumentError and nothing is written.
	WriteDocuments(ctx context.Context, docs []domain.Document, opts domain.WriteOptions) (int, error)

	// GetDocumentsByID returns the subset of ids that exist. Missing IDs are
	// silently omitted.
	GetDocumentsByID(ctx context.Context, ids []string, opts domain.LookupOptions) ([]domain.Document, error)

	// GetAllDocuments returns every document matching opts.Filters.
	GetAllDocuments(ctx context.Context, opts domain.QueryOptions) ([]domain.Document, error)

	// GetDocumentCount counts documents matching opts.Filters.
	GetDocumentCount(ctx context.Context, opts domain.QueryOptions) (int, error)

	// QueryByEmbedding returns at most opts.TopK nearest neighbours of
	// embedding, most similar first.
	QueryByEmbedding(ctx context.Context, embedding []float32, opts domain.QueryOptions) ([]domain.Document, error)

	// DeleteDocuments removes documents matching opts.Filters, or every
	// document in the index when no filters are given.
	DeleteDocuments(ctx context.Context, opts domain.QueryOptions) error

	// WriteLabels stores labels, dropping labels equal to an earlier one,
	// and returns the number written.
	WriteLabels(ctx context.Context, labels []domain.Label, index string) (int, error)

	// GetAllLabels returns labels matching filters.
	GetAllLabels(ctx context.Context, index string, filters domain.Filters) ([]domain.Label, error)

	// GetLabelCount counts labels in the index.
	GetLabelCount(ctx context.Context, index string) (int, error)

	// DefaultIndex returns the index used when none is given.
	DefaultIndex() string
}
