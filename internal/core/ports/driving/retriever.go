package driving

import (
	"context"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// Retriever answers batches of queries with ranked documents.
type Retriever interface {
	// RetrieveTopK returns one ranked list per query, in query order, each
	// holding at most opts.TopK documents. Queries do not affect each
	// other's results.
	RetrieveTopK(ctx context.Context, queries []domain.Query, opts domain.RetrieveOptions) ([][]domain.Document, error)

	// Name identifies the ranking method.
	Name() string
}
