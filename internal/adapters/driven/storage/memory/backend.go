// Package memory provides in-process implementations of the driven ports.
// Data lives for the lifetime of the process.
package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/rank"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.DocumentBackend = (*Backend)(nil)

// ordered keeps records by ID and remembers first-insertion order.
type ordered[T any] struct {
	ids     []string
	records map[string]T
}

func newOrdered[T any]() *ordered[T] {
	return &ordered[T]{records: make(map[string]T)}
}

func (o *ordered[T]) put(id string, v T) {
	if _, ok := o.records[id]; !ok {
		o.ids = append(o.ids, id)
	}
	o.records[id] = v
}

func (o *ordered[T]) each(fn func(T)) {
	for _, id := range o.ids {
		fn(o.records[id])
	}
}

func (o *ordered[T]) removeIf(drop func(T) bool) {
	kept := o.ids[:0]
	for _, id := range o.ids {
		if drop(o.records[id]) {
			delete(o.records, id)
			continue
		}
		kept = append(kept, id)
	}
	o.ids = kept
}

// Backend is an in-memory implementation of driven.DocumentBackend.
// Listing follows insertion order; ranking is cosine similarity.
type Backend struct {
	mu     sync.RWMutex
	docs   map[string]*ordered[domain.Document]
	labels map[string]*ordered[domain.Label]
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		docs:   make(map[string]*ordered[domain.Document]),
		labels: make(map[string]*ordered[domain.Label]),
	}
}

// WriteDocuments upserts docs into the index. Score and Probability are
// query results and are not stored.
func (b *Backend) WriteDocuments(_ context.Context, index string, docs []domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.docs[index]
	if !ok {
		idx = newOrdered[domain.Document]()
		b.docs[index] = idx
	}
	for i := range docs {
		doc := docs[i].Clone()
		doc.Score, doc.Probability = nil, nil
		idx.put(doc.ID, doc)
	}
	return nil
}

// GetDocumentsByID returns the stored documents among ids, in request order.
func (b *Backend) GetDocumentsByID(_ context.Context, index string, ids []string) ([]domain.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.docs[index]
	if !ok {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ids))
	var out []domain.Document
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if doc, ok := idx.records[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// GetAllDocuments returns documents matching filters in insertion order.
func (b *Backend) GetAllDocuments(
	_ context.Context, index string, filters domain.Filters, returnEmbedding bool,
) ([]domain.Document, error) {
	matched := b.match(index, filters)
	if !returnEmbedding {
		for i := range matched {
			matched[i].Embedding = nil
		}
	}
	return matched, nil
}

// GetDocumentCount counts documents matching filters.
func (b *Backend) GetDocumentCount(_ context.Context, index string, filters domain.Filters) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.docs[index]
	if !ok {
		return 0, nil
	}
	n := 0
	idx.each(func(d domain.Document) {
		if filters.Match(d) {
			n++
		}
	})
	return n, nil
}

// QueryByEmbedding ranks the matching documents by cosine similarity.
func (b *Backend) QueryByEmbedding(
	_ context.Context, index string, embedding []float32, filters domain.Filters, topK int, returnEmbedding bool,
) ([]domain.Document, error) {
	return rank.TopK(b.match(index, filters), embedding, topK, returnEmbedding), nil
}

// DeleteDocuments removes documents matching filters.
func (b *Backend) DeleteDocuments(_ context.Context, index string, filters domain.Filters) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.docs[index]
	if !ok {
		return nil
	}
	if filters.IsEmpty() {
		delete(b.docs, index)
		return nil
	}
	idx.removeIf(filters.Match)
	return nil
}

// WriteLabels upserts labels by ID.
func (b *Backend) WriteLabels(_ context.Context, index string, labels []domain.Label) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.labels[index]
	if !ok {
		idx = newOrdered[domain.Label]()
		b.labels[index] = idx
	}
	for _, l := range labels {
		idx.put(l.ID, l)
	}
	return nil
}

// GetAllLabels returns labels matching filters in insertion order.
func (b *Backend) GetAllLabels(_ context.Context, index string, filters domain.Filters) ([]domain.Label, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.labels[index]
	if !ok {
		return nil, nil
	}
	var out []domain.Label
	idx.each(func(l domain.Label) {
		if filters.MatchLabel(l) {
			out = append(out, l)
		}
	})
	return out, nil
}

// GetLabelCount counts labels in the index.
func (b *Backend) GetLabelCount(_ context.Context, index string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx, ok := b.labels[index]; ok {
		return len(idx.ids), nil
	}
	return 0, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// match returns copies of the documents in index that satisfy filters.
func (b *Backend) match(index string, filters domain.Filters) []domain.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.docs[index]
	if !ok {
		return nil
	}
	var out []domain.Document
	idx.each(func(d domain.Document) {
		if filters.Match(d) {
			out = append(out, d.Clone())
		}
	})
	return out
}
