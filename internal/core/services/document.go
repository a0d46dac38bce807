package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
	"github.com/custodia-labs/jam/internal/logger"
	"github.com/custodia-labs/jam/internal/lookahead"
)

// Ensure DocumentStore implements the interface.
var _ driving.DocumentStore = (*DocumentStore)(nil)

// DocumentStore applies duplicate handling and batching on top of a backend.
// It holds no state besides its configured defaults.
type DocumentStore struct {
	backend    driven.DocumentBackend
	index      string
	labelIndex string
	batchSize  int
	policy     domain.DuplicatePolicy
	now        func() time.Time
}

// NewDocumentStore creates a document store over backend. Zero-valued
// settings fall back to the package defaults.
func NewDocumentStore(backend driven.DocumentBackend, settings domain.StoreSettings) *DocumentStore {
	s := &DocumentStore{
		backend:    backend,
		index:      settings.Index,
		labelIndex: settings.LabelIndex,
		batchSize:  settings.BatchSize,
		policy:     settings.DuplicatePolicy,
		now:        time.Now,
	}
	if s.index == "" {
		s.index = domain.DefaultIndex
	}
	if s.labelIndex == "" {
		s.labelIndex = domain.DefaultLabelIndex
	}
	if s.batchSize <= 0 {
		s.batchSize = domain.DefaultBatchSize
	}
	if s.policy == "" {
		s.policy = domain.DuplicateSkip
	}
	return s
}

// DefaultIndex returns the index used when none is given.
func (s *DocumentStore) DefaultIndex() string {
	return s.index
}

// WriteDocuments stores docs under the duplicate policy.
//
// skip and fail first drop in-batch repeats of an ID (the first occurrence
// wins) and look up the remaining IDs in the index. fail rejects the whole
// write when any of them exists; skip writes only the new ones. overwrite
// hands every document to the backend, which replaces existing records.
//
// The existence check and the write are not atomic. Concurrent writers to
// the same index must serialise externally for strict deduplication.
func (s *DocumentStore) WriteDocuments(
	ctx context.Context, docs []domain.Document, opts domain.WriteOptions,
) (int, error) {
	if s.backend == nil {
		return 0, domain.ErrStoreUnavailable
	}

	index := s.resolveIndex(opts.Index)
	batchSize := s.resolveBatchSize(opts.BatchSize)
	policy := opts.DuplicatePolicy
	if policy == "" {
		policy = s.policy
	}
	if !policy.IsValid() {
		return 0, fmt.Errorf("%w: duplicate policy %q", domain.ErrInvalidArgument, policy)
	}

	logger.Section("Write Documents")
	logger.Debug("Index: %s, policy: %s, batch size: %d", index, policy, batchSize)
	logger.Debug("Submitted: %d documents", len(docs))

	pending := docs
	if policy.ChecksExisting() {
		var err error
		pending, err = s.dropExisting(ctx, docs, index, batchSize, policy)
		if err != nil {
			return 0, err
		}
	}

	batches := 0
	it := lookahead.FromSlice(pending)
	for it.HasNext() {
		batch := it.Take(batchSize)
		if err := s.backend.WriteDocuments(ctx, index, batch); err != nil {
			it.Stop()
			return 0, fmt.Errorf("write batch %d to index %q: %w", batches+1, index, err)
		}
		batches++
	}

	logger.Info("Wrote %d documents to %q in %d batches", len(pending), index, batches)
	return len(pending), nil
}

// dropExisting removes in-batch repeats and documents whose ID already
// exists. Under DuplicateFail an existing ID aborts with
// *domain.DuplicateDocumentError instead.
func (s *DocumentStore) dropExisting(
	ctx context.Context, docs []domain.Document, index string, batchSize int, policy domain.DuplicatePolicy,
) ([]domain.Document, error) {
	unique := deduplicateByID(docs)
	logger.Debug("In-batch duplicates dropped: %d", len(docs)-len(unique))

	found, err := s.GetDocumentsByID(ctx, domain.IDs(unique), domain.LookupOptions{
		Index:     index,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("check existing documents: %w", err)
	}
	if len(found) == 0 {
		return unique, nil
	}

	exists := make(map[string]struct{}, len(found))
	for i := range found {
		exists[found[i].ID] = struct{}{}
	}

	if policy == domain.DuplicateFail {
		var collisions []string
		for i := range unique {
			if _, ok := exists[unique[i].ID]; ok {
				collisions = append(collisions, unique[i].ID)
			}
		}
		logger.Warn("Rejecting write: %d documents already exist in %q", len(collisions), index)
		return nil, &domain.DuplicateDocumentError{IDs: collisions, Index: index}
	}

	fresh := make([]domain.Document, 0, len(unique))
	for i := range unique {
		if _, ok := exists[unique[i].ID]; !ok {
			fresh = append(fresh, unique[i])
		}
	}
	logger.Debug("Existing documents skipped: %d", len(unique)-len(fresh))
	return fresh, nil
}

// deduplicateByID keeps the first document for every ID, in input order.
func deduplicateByID(docs []domain.Document) []domain.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for i := range docs {
		if _, dup := seen[docs[i].ID]; dup {
			continue
		}
		seen[docs[i].ID] = struct{}{}
		out = append(out, docs[i])
	}
	return out
}

// GetDocumentsByID returns the stored documents among ids, looked up in
// batches of opts.BatchSize. Missing IDs are omitted.
func (s *DocumentStore) GetDocumentsByID(
	ctx context.Context, ids []string, opts domain.LookupOptions,
) ([]domain.Document, error) {
	if s.backend == nil {
		return nil, domain.ErrStoreUnavailable
	}

	index := s.resolveIndex(opts.Index)
	batchSize := s.resolveBatchSize(opts.BatchSize)

	var found []domain.Document
	it := lookahead.FromSlice(ids)
	for it.HasNext() {
		batch, err := s.backend.GetDocumentsByID(ctx, index, it.Take(batchSize))
		if err != nil {
			it.Stop()
			return nil, fmt.Errorf("get documents by id from index %q: %w", index, err)
		}
		found = append(found, batch...)
	}

	logger.Debug("Lookup in %q: %d of %d ids found", index, len(found), len(ids))
	return found, nil
}

// GetAllDocuments returns every document matching opts.Filters.
func (s *DocumentStore) GetAllDocuments(ctx context.Context, opts domain.QueryOptions) ([]domain.Document, error) {
	if s.backend == nil {
		return nil, domain.ErrStoreUnavailable
	}
	index := s.resolveIndex(opts.Index)
	docs, err := s.backend.GetAllDocuments(ctx, index, opts.Filters, opts.ReturnEmbedding)
	if err != nil {
		return nil, fmt.Errorf("get all documents from index %q: %w", index, err)
	}
	return docs, nil
}

// GetDocumentCount counts documents matching opts.Filters.
func (s *DocumentStore) GetDocumentCount(ctx context.Context, opts domain.QueryOptions) (int, error) {
	if s.backend == nil {
		return 0, domain.ErrStoreUnavailable
	}
	index := s.resolveIndex(opts.Index)
	n, err := s.backend.GetDocumentCount(ctx, index, opts.Filters)
	if err != nil {
		return 0, fmt.Errorf("count documents in index %q: %w", index, err)
	}
	return n, nil
}

// QueryByEmbedding returns at most opts.TopK (default 10) nearest
// neighbours of embedding.
func (s *DocumentStore) QueryByEmbedding(
	ctx context.Context, embedding []float32, opts domain.QueryOptions,
) ([]domain.Document, error) {
	if s.backend == nil {
		return nil, domain.ErrStoreUnavailable
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is empty", domain.ErrInvalidInput)
	}

	index := s.resolveIndex(opts.Index)
	topK := opts.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	logger.Debug("Embedding query on %q: dims=%d, top_k=%d, filters=%v", index, len(embedding), topK, opts.Filters)

	docs, err := s.backend.QueryByEmbedding(ctx, index, embedding, opts.Filters, topK, opts.ReturnEmbedding)
	if err != nil {
		return nil, fmt.Errorf("query index %q by embedding: %w", index, err)
	}
	return docs, nil
}

// DeleteDocuments removes documents matching opts.Filters, or the whole
// index when there are none.
func (s *DocumentStore) DeleteDocuments(ctx context.Context, opts domain.QueryOptions) error {
	if s.backend == nil {
		return domain.ErrStoreUnavailable
	}
	index := s.resolveIndex(opts.Index)
	if opts.Filters.IsEmpty() {
		logger.Info("Deleting all documents in %q", index)
	} else {
		logger.Info("Deleting documents in %q matching %v", index, opts.Filters)
	}
	if err := s.backend.DeleteDocuments(ctx, index, opts.Filters); err != nil {
		return fmt.Errorf("delete documents from index %q: %w", index, err)
	}
	return nil
}

// WriteLabels drops labels equal to an earlier one, fills missing IDs and
// timestamps, and upserts the rest by ID.
func (s *DocumentStore) WriteLabels(ctx context.Context, labels []domain.Label, index string) (int, error) {
	if s.backend == nil {
		return 0, domain.ErrStoreUnavailable
	}
	index = s.resolveLabelIndex(index)

	unique := domain.DeduplicateLabels(labels)
	logger.Debug("Labels: %d submitted, %d duplicates dropped", len(labels), len(labels)-len(unique))

	now := s.now().UTC()
	out := make([]domain.Label, len(unique))
	for i, l := range unique {
		l = domain.NewLabel(l)
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = now
		}
		out[i] = l
	}

	if len(out) == 0 {
		return 0, nil
	}
	if err := s.backend.WriteLabels(ctx, index, out); err != nil {
		return 0, fmt.Errorf("write labels to index %q: %w", index, err)
	}
	return len(out), nil
}

// GetAllLabels returns labels matching filters.
func (s *DocumentStore) GetAllLabels(ctx context.Context, index string, filters domain.Filters) ([]domain.Label, error) {
	if s.backend == nil {
		return nil, domain.ErrStoreUnavailable
	}
	index = s.resolveLabelIndex(index)
	labels, err := s.backend.GetAllLabels(ctx, index, filters)
	if err != nil {
		return nil, fmt.Errorf("get labels from index %q: %w", index, err)
	}
	return labels, nil
}

// GetLabelCount counts labels in the index.
func (s *DocumentStore) GetLabelCount(ctx context.Context, index string) (int, error) {
	if s.backend == nil {
		return 0, domain.ErrStoreUnavailable
	}
	index = s.resolveLabelIndex(index)
	n, err := s.backend.GetLabelCount(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("count labels in index %q: %w", index, err)
	}
	return n, nil
}

func (s *DocumentStore) resolveIndex(index string) string {
	if index == "" {
		return s.index
	}
	return index
}

func (s *DocumentStore) resolveLabelIndex(index string) string {
	if index == "" {
		return s.labelIndex
	}
	return index
}

func (s *DocumentStore) resolveBatchSize(n int) int {
	if n <= 0 {
		return s.batchSize
	}
	return n
}
