package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// --- Test doubles ---

// spyBackend wraps a memory backend and records the requests it receives.
type spyBackend struct {
	*memory.Backend
	writeBatches  [][]string
	lookupBatches [][]string
	writeErr      error
	lookupErr     error
}

var _ driven.DocumentBackend = (*spyBackend)(nil)

func newSpyBackend() *spyBackend {
	return &spyBackend{Backend: memory.NewBackend()}
}

func (s *spyBackend) WriteDocuments(ctx context.Context, index string, docs []domain.Document) error {
	s.writeBatches = append(s.writeBatches, domain.IDs(docs))
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.Backend.WriteDocuments(ctx, index, docs)
}

func (s *spyBackend) GetDocumentsByID(ctx context.Context, index string, ids []string) ([]domain.Document, error) {
	s.lookupBatches = append(s.lookupBatches, append([]string(nil), ids...))
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.Backend.GetDocumentsByID(ctx, index, ids)
}

func (s *spyBackend) reset() {
	s.writeBatches = nil
	s.lookupBatches = nil
}

func mustDoc(t *testing.T, text string, opts ...domain.DocumentOption) domain.Document {
	t.Helper()
	doc, err := domain.NewDocument(text, opts...)
	require.NoError(t, err)
	return doc
}

func newTestStore(backend driven.DocumentBackend) *DocumentStore {
	return NewDocumentStore(backend, domain.StoreSettings{})
}

// --- Tests ---

func TestNewDocumentStore_Defaults(t *testing.T) {
	s := newTestStore(memory.NewBackend())

	assert.Equal(t, "document", s.DefaultIndex())
	assert.Equal(t, "label", s.labelIndex)
	assert.Equal(t, 10_000, s.batchSize)
	assert.Equal(t, domain.DuplicateSkip, s.policy)
}

func TestWriteDocuments_SkipDropsInBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)

	first := mustDoc(t, "first", domain.WithID("a"))
	second := mustDoc(t, "second", domain.WithID("a"))

	n, err := s.WriteDocuments(ctx, []domain.Document{first, second}, domain.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.GetAllDocuments(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "first", all[0].Text)
}

func TestWriteDocuments_SkipSameDerivedID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())

	n, err := s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "same"), mustDoc(t, "same")}, domain.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := s.GetDocumentCount(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWriteDocuments_SkipDropsExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())

	_, err := s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "old", domain.WithID("a"))}, domain.WriteOptions{})
	require.NoError(t, err)

	n, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "new", domain.WithID("a")),
		mustDoc(t, "other", domain.WithID("b")),
	}, domain.WriteOptions{DuplicatePolicy: domain.DuplicateSkip})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetDocumentsByID(ctx, []string{"a", "b"}, domain.LookupOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].Text)
}

func TestWriteDocuments_SkipIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())
	docs := []domain.Document{mustDoc(t, "one"), mustDoc(t, "two")}

	n, err := s.WriteDocuments(ctx, docs, domain.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.WriteDocuments(ctx, docs, domain.WriteOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.GetDocumentCount(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWriteDocuments_FailRejectsWholeWrite(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)

	_, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "old a", domain.WithID("a")),
		mustDoc(t, "old c", domain.WithID("c")),
	}, domain.WriteOptions{})
	require.NoError(t, err)
	backend.reset()

	_, err = s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "new c", domain.WithID("c")),
		mustDoc(t, "new b", domain.WithID("b")),
		mustDoc(t, "new a", domain.WithID("a")),
	}, domain.WriteOptions{DuplicatePolicy: domain.DuplicateFail})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateDocument))
	var dup *domain.DuplicateDocumentError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"c", "a"}, dup.IDs)
	assert.Equal(t, "document", dup.Index)

	assert.Empty(t, backend.writeBatches, "nothing is written")
	count, err := s.GetDocumentCount(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	got, err := s.GetDocumentsByID(ctx, []string{"c"}, domain.LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, "old c", got[0].Text)
}

func TestWriteDocuments_FailWithoutCollisionWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())

	n, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "x", domain.WithID("a")),
		mustDoc(t, "y", domain.WithID("a")),
	}, domain.WriteOptions{DuplicatePolicy: domain.DuplicateFail})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteDocuments_OverwriteReplaces(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)

	_, err := s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "old", domain.WithID("a"))}, domain.WriteOptions{})
	require.NoError(t, err)
	backend.reset()

	n, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "new", domain.WithID("a")),
	}, domain.WriteOptions{DuplicatePolicy: domain.DuplicateOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, backend.lookupBatches, "overwrite does not look up existing ids")

	got, err := s.GetDocumentsByID(ctx, []string{"a"}, domain.LookupOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
}

func TestWriteDocuments_OverwritePassesFullBatch(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)

	n, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "first", domain.WithID("a")),
		mustDoc(t, "second", domain.WithID("a")),
	}, domain.WriteOptions{DuplicatePolicy: domain.DuplicateOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]string{{"a", "a"}}, backend.writeBatches)

	got, err := s.GetDocumentsByID(ctx, []string{"a"}, domain.LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, "second", got[0].Text)
}

func TestWriteDocuments_Batches(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)

	docs := make([]domain.Document, 5)
	for i := range docs {
		docs[i] = mustDoc(t, string(rune('a'+i)), domain.WithID(string(rune('a'+i))))
	}

	n, err := s.WriteDocuments(ctx, docs, domain.WriteOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, backend.writeBatches)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, backend.lookupBatches)
}

func TestWriteDocuments_Empty(t *testing.T) {
	backend := newSpyBackend()
	s := newTestStore(backend)

	n, err := s.WriteDocuments(context.Background(), nil, domain.WriteOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, backend.writeBatches)
	assert.Empty(t, backend.lookupBatches)
}

func TestWriteDocuments_UsesConfiguredDefaults(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := NewDocumentStore(backend, domain.StoreSettings{
		Index:           "faq",
		BatchSize:       1,
		DuplicatePolicy: domain.DuplicateOverwrite,
	})

	_, err := s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "a"), mustDoc(t, "b")}, domain.WriteOptions{})
	require.NoError(t, err)

	assert.Len(t, backend.writeBatches, 2)
	assert.Empty(t, backend.lookupBatches)
	n, err := backend.GetDocumentCount(ctx, "faq", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteDocuments_InvalidPolicy(t *testing.T) {
	s := newTestStore(memory.NewBackend())
	_, err := s.WriteDocuments(context.Background(), nil, domain.WriteOptions{DuplicatePolicy: "ignore"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestWriteDocuments_BackendErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")

	backend := newSpyBackend()
	backend.writeErr = boom
	s := newTestStore(backend)
	_, err := s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "a")}, domain.WriteOptions{})
	assert.ErrorIs(t, err, boom)

	backend = newSpyBackend()
	backend.lookupErr = boom
	s = newTestStore(backend)
	_, err = s.WriteDocuments(ctx, []domain.Document{mustDoc(t, "a")}, domain.WriteOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.writeBatches)
}

func TestDocumentStore_NilBackend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(nil)

	_, err := s.WriteDocuments(ctx, nil, domain.WriteOptions{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.GetAllDocuments(ctx, domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	err = s.DeleteDocuments(ctx, domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestGetDocumentsByID_OmitsMissingAndBatches(t *testing.T) {
	ctx := context.Background()
	backend := newSpyBackend()
	s := newTestStore(backend)
	_, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "1", domain.WithID("a")),
		mustDoc(t, "2", domain.WithID("b")),
	}, domain.WriteOptions{})
	require.NoError(t, err)
	backend.reset()

	got, err := s.GetDocumentsByID(ctx, []string{"a", "x", "b"}, domain.LookupOptions{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, domain.IDs(got))
	assert.Equal(t, [][]string{{"a", "x"}, {"b"}}, backend.lookupBatches)
}

func TestQueryByEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())
	_, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "x", domain.WithID("x"), domain.WithEmbedding([]float32{1, 0})),
		mustDoc(t, "y", domain.WithID("y"), domain.WithEmbedding([]float32{0, 1})),
	}, domain.WriteOptions{})
	require.NoError(t, err)

	got, err := s.QueryByEmbedding(ctx, []float32{0.1, 1}, domain.QueryOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].ID)

	_, err = s.QueryByEmbedding(ctx, nil, domain.QueryOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())
	_, err := s.WriteDocuments(ctx, []domain.Document{
		mustDoc(t, "keep", domain.WithMeta(map[string]any{"tag": "keep"})),
		mustDoc(t, "drop", domain.WithMeta(map[string]any{"tag": "drop"})),
	}, domain.WriteOptions{})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocuments(ctx, domain.QueryOptions{Filters: domain.Filters{"tag": {"drop"}}}))
	count, err := s.GetDocumentCount(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.DeleteDocuments(ctx, domain.QueryOptions{}))
	count, err = s.GetDocumentCount(ctx, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWriteLabels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewBackend())

	label := domain.Label{Question: "q", Answer: "a", IsCorrectAnswer: true, Origin: "gold"}
	other := domain.Label{Question: "q", Answer: "b", Origin: "gold"}

	n, err := s.WriteLabels(ctx, []domain.Label{label, label, other}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	labels, err := s.GetAllLabels(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	for _, l := range labels {
		assert.NotEmpty(t, l.ID)
		assert.False(t, l.CreatedAt.IsZero())
		assert.False(t, l.UpdatedAt.IsZero())
	}

	count, err := s.GetLabelCount(ctx, "label")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.GetLabelCount(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWriteLabels_Empty(t *testing.T) {
	s := newTestStore(memory.NewBackend())
	n, err := s.WriteLabels(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}
