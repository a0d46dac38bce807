package services

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
	"github.com/custodia-labs/jam/internal/logger"
)

// Ensure retrievers implement the interface.
var (
	_ driving.Retriever = (*EmbeddingRetriever)(nil)
	_ driving.Retriever = (*KeywordRetriever)(nil)
)

// Retriever names.
const (
	RetrieverEmbedding = "embedding"
	RetrieverKeyword   = "keyword"
)

// retrieveOne answers a single query with at most topK documents.
type retrieveOne func(ctx context.Context, q domain.Query, index string, topK int) ([]domain.Document, error)

// retrieveAll runs one call per query with bounded concurrency. Results keep
// query order; the first failure cancels the remaining queries.
func retrieveAll(
	ctx context.Context, name string, queries []domain.Query, opts domain.RetrieveOptions, one retrieveOne,
) ([][]domain.Document, error) {
	index := opts.Index
	if index == "" {
		index = domain.DefaultIndex
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = domain.DefaultRetrieveTopK
	}

	logger.Section("Retrieve")
	logger.Debug("Retriever: %s, index: %s, top_k: %d, queries: %d", name, index, topK, len(queries))

	results := make([][]domain.Document, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range queries {
		g.Go(func() error {
			docs, err := one(gctx, queries[i], index, topK)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("Retrieval failed: %v", err)
		return nil, err
	}

	for i := range results {
		if results[i] == nil {
			results[i] = []domain.Document{}
		}
		logger.Debug("Query %d: %d results", i, len(results[i]))
	}
	return results, nil
}

// EmbeddingRetriever ranks documents by similarity between the query
// embedding and the stored document embeddings.
type EmbeddingRetriever struct {
	store    driving.DocumentStore
	embedder driven.EmbeddingService
}

// NewEmbeddingRetriever creates an embedding retriever. The embedder may be
// nil when every query carries its own embedding.
func NewEmbeddingRetriever(store driving.DocumentStore, embedder driven.EmbeddingService) *EmbeddingRetriever {
	return &EmbeddingRetriever{store: store, embedder: embedder}
}

// Name returns "embedding".
func (r *EmbeddingRetriever) Name() string {
	return RetrieverEmbedding
}

// RetrieveTopK embeds each query (unless it already carries an embedding)
// and returns its nearest documents.
func (r *EmbeddingRetriever) RetrieveTopK(
	ctx context.Context, queries []domain.Query, opts domain.RetrieveOptions,
) ([][]domain.Document, error) {
	return retrieveAll(ctx, r.Name(), queries, opts, r.retrieve)
}

func (r *EmbeddingRetriever) retrieve(
	ctx context.Context, q domain.Query, index string, topK int,
) ([]domain.Document, error) {
	embedding := q.Embedding
	if len(embedding) == 0 {
		if r.embedder == nil {
			return nil, domain.ErrEmbeddingUnavailable
		}
		var err error
		embedding, err = r.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}
	return r.store.QueryByEmbedding(ctx, embedding, domain.QueryOptions{
		Index:   index,
		Filters: q.Filters,
		TopK:    topK,
	})
}

// KeywordRetriever ranks documents by how often the query terms occur in
// their text. Documents without any query term are not returned.
type KeywordRetriever struct {
	store driving.DocumentStore
}

// NewKeywordRetriever creates a keyword retriever over store.
func NewKeywordRetriever(store driving.DocumentStore) *KeywordRetriever {
	return &KeywordRetriever{store: store}
}

// Name returns "keyword".
func (r *KeywordRetriever) Name() string {
	return RetrieverKeyword
}

// RetrieveTopK scores the documents matching each query's filters.
// Probability is the score relative to the best score of the query.
func (r *KeywordRetriever) RetrieveTopK(
	ctx context.Context, queries []domain.Query, opts domain.RetrieveOptions,
) ([][]domain.Document, error) {
	return retrieveAll(ctx, r.Name(), queries, opts, r.retrieve)
}

func (r *KeywordRetriever) retrieve(
	ctx context.Context, q domain.Query, index string, topK int,
) ([]domain.Document, error) {
	terms := tokenize(q.Text)
	if len(terms) == 0 {
		return []domain.Document{}, nil
	}

	candidates, err := r.store.GetAllDocuments(ctx, domain.QueryOptions{Index: index, Filters: q.Filters})
	if err != nil {
		return nil, err
	}
	return rankByTerms(candidates, terms, topK), nil
}

// tokenize lower-cases text and splits it on whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// termFrequency counts the occurrences of every query term in text.
func termFrequency(text string, terms []string) int {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		counts[tok]++
	}
	n := 0
	for _, term := range terms {
		n += counts[term]
	}
	return n
}

func rankByTerms(candidates []domain.Document, terms []string, topK int) []domain.Document {
	type scored struct {
		doc   domain.Document
		score int
	}

	hits := make([]scored, 0, len(candidates))
	for i := range candidates {
		if tf := termFrequency(candidates[i].Text, terms); tf > 0 {
			hits = append(hits, scored{doc: candidates[i], score: tf})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	if len(hits) == 0 {
		return []domain.Document{}
	}
	best := float64(hits[0].score)
	out := make([]domain.Document, len(hits))
	for i, h := range hits {
		out[i] = h.doc.WithRanking(float64(h.score), float64(h.score)/best)
	}
	return out
}
