// Package storagetest holds the behaviour every driven.DocumentBackend must
// share, run by each backend's own tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// NewBackendFunc returns a fresh, empty backend for one test.
type NewBackendFunc func(t *testing.T) driven.DocumentBackend

// Doc builds a document with an explicit ID, failing the test on error.
func Doc(t *testing.T, id, text string, meta map[string]any, embedding []float32) domain.Document {
	t.Helper()
	d, err := domain.NewDocument(text, domain.WithID(id), domain.WithMeta(meta), domain.WithEmbedding(embedding))
	require.NoError(t, err)
	return d
}

// RunBackendSuite exercises the document and label contract of a backend.
func RunBackendSuite(t *testing.T, newBackend NewBackendFunc) {
	t.Run("write and read back", func(t *testing.T) { testWriteAndRead(t, newBackend(t)) })
	t.Run("upsert replaces", func(t *testing.T) { testUpsert(t, newBackend(t)) })
	t.Run("get by id omits missing", func(t *testing.T) { testGetByID(t, newBackend(t)) })
	t.Run("filters", func(t *testing.T) { testFilters(t, newBackend(t)) })
	t.Run("indices are isolated", func(t *testing.T) { testIndices(t, newBackend(t)) })
	t.Run("query by embedding", func(t *testing.T) { testQueryByEmbedding(t, newBackend(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("labels", func(t *testing.T) { testLabels(t, newBackend(t)) })
}

func testWriteAndRead(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	score := 0.25
	in := Doc(t, "a", "alpha", map[string]any{"name": "first", "nested": map[string]any{"k": "v"}}, []float32{0.5, -1})
	in.Question = "what?"
	in.Score = &score
	second := Doc(t, "b", "beta", nil, nil)

	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{in, second}))

	all, err := b.GetAllDocuments(ctx, "document", nil, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"a", "b"}, domain.IDs(all))
	assert.Equal(t, "alpha", all[0].Text)
	assert.Equal(t, "what?", all[0].Question)
	assert.Equal(t, "first", all[0].Meta["name"])
	assert.Equal(t, map[string]any{"k": "v"}, all[0].Meta["nested"])
	assert.Equal(t, []float32{0.5, -1}, all[0].Embedding)
	assert.Nil(t, all[0].Score, "ranking fields are not stored")
	assert.Nil(t, all[1].Embedding)

	withoutEmbedding, err := b.GetAllDocuments(ctx, "document", nil, false)
	require.NoError(t, err)
	assert.Nil(t, withoutEmbedding[0].Embedding)

	n, err := b.GetDocumentCount(ctx, "document", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testUpsert(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{Doc(t, "a", "old", nil, nil)}))
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{Doc(t, "a", "new", nil, nil)}))

	got, err := b.GetDocumentsByID(ctx, "document", []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)

	n, err := b.GetDocumentCount(ctx, "document", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testGetByID(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{
		Doc(t, "a", "alpha", nil, nil),
		Doc(t, "b", "beta", nil, nil),
	}))

	got, err := b.GetDocumentsByID(ctx, "document", []string{"b", "missing", "a"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, domain.IDs(got))

	got, err = b.GetDocumentsByID(ctx, "other", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = b.GetDocumentsByID(ctx, "document", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFilters(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{
		Doc(t, "1", "one", map[string]any{"name": "some", "category": "only_one"}, nil),
		Doc(t, "2", "two", map[string]any{"name": "more", "category": "other"}, nil),
		Doc(t, "3", "three", map[string]any{"name": "none"}, nil),
	}))

	tests := []struct {
		name    string
		filters domain.Filters
		want    []string
	}{
		{"no filters", nil, []string{"1", "2", "3"}},
		{"disjunction within field", domain.Filters{"name": {"some", "more"}}, []string{"1", "2"}},
		{"conjunction across fields", domain.Filters{"name": {"some", "more"}, "category": {"only_one"}}, []string{"1"}},
		{"missing meta key", domain.Filters{"category": {"other"}}, []string{"2"}},
		{"top-level id", domain.Filters{"id": {"3", "1"}}, []string{"1", "3"}},
		{"top-level text", domain.Filters{"text": {"two"}}, []string{"2"}},
		{"mixed top-level and meta", domain.Filters{"id": {"1", "2"}, "name": {"more"}}, []string{"2"}},
		{"empty value list", domain.Filters{"name": {}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := b.GetAllDocuments(ctx, "document", tt.filters, false)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, domain.IDs(docs))

			n, err := b.GetDocumentCount(ctx, "document", tt.filters)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func testIndices(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "one", []domain.Document{Doc(t, "a", "in one", nil, nil)}))
	require.NoError(t, b.WriteDocuments(ctx, "two", []domain.Document{Doc(t, "a", "in two", nil, nil)}))

	one, err := b.GetAllDocuments(ctx, "one", nil, false)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "in one", one[0].Text)

	require.NoError(t, b.DeleteDocuments(ctx, "one", nil))

	n, err := b.GetDocumentCount(ctx, "two", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testQueryByEmbedding(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{
		Doc(t, "far", "far", map[string]any{"group": "x"}, []float32{0, 1}),
		Doc(t, "tie-b", "tie b", map[string]any{"group": "x"}, []float32{1, 0}),
		Doc(t, "tie-a", "tie a", map[string]any{"group": "x"}, []float32{1, 0}),
		Doc(t, "mid", "mid", map[string]any{"group": "y"}, []float32{1, 1}),
	}))

	got, err := b.QueryByEmbedding(ctx, "document", []float32{1, 0}, nil, 3, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"tie-a", "tie-b", "mid"}, domain.IDs(got))
	require.NotNil(t, got[0].Score)
	require.NotNil(t, got[0].Probability)
	assert.InDelta(t, 1.0, *got[0].Score, 1e-6)
	assert.InDelta(t, 1.0, *got[0].Probability, 1e-6)
	assert.Greater(t, *got[1].Score, *got[2].Score)
	assert.Nil(t, got[0].Embedding)

	filtered, err := b.QueryByEmbedding(ctx, "document", []float32{1, 0}, domain.Filters{"group": {"y"}}, 10, true)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "mid", filtered[0].ID)
	assert.Equal(t, []float32{1, 1}, filtered[0].Embedding)

	again, err := b.QueryByEmbedding(ctx, "document", []float32{1, 0}, nil, 3, false)
	require.NoError(t, err)
	assert.Equal(t, domain.IDs(got), domain.IDs(again))
}

func testDelete(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	require.NoError(t, b.WriteDocuments(ctx, "document", []domain.Document{
		Doc(t, "1", "one", map[string]any{"name": "keep"}, nil),
		Doc(t, "2", "two", map[string]any{"name": "drop"}, nil),
		Doc(t, "3", "three", map[string]any{"name": "drop"}, nil),
	}))

	require.NoError(t, b.DeleteDocuments(ctx, "document", domain.Filters{"name": {"drop"}}))

	left, err := b.GetAllDocuments(ctx, "document", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, domain.IDs(left))

	require.NoError(t, b.DeleteDocuments(ctx, "document", nil))
	n, err := b.GetDocumentCount(ctx, "document", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, b.DeleteDocuments(ctx, "never-written", nil))
}

func testLabels(t *testing.T, b driven.DocumentBackend) {
	ctx := context.Background()
	offset := 4
	labels := []domain.Label{
		{ID: "l1", Question: "q1", Answer: "a1", IsCorrectAnswer: true, Origin: "gold", DocumentID: "d1", OffsetStartInDoc: &offset},
		{ID: "l2", Question: "q2", Answer: "a2", Origin: "user-feedback"},
	}
	require.NoError(t, b.WriteLabels(ctx, "label", labels))

	updated := labels[1]
	updated.Answer = "a2 fixed"
	require.NoError(t, b.WriteLabels(ctx, "label", []domain.Label{updated}))

	n, err := b.GetLabelCount(ctx, "label")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := b.GetAllLabels(ctx, "label", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byID := map[string]domain.Label{all[0].ID: all[0], all[1].ID: all[1]}
	assert.True(t, labels[0].Equal(byID["l1"]))
	assert.Equal(t, "a2 fixed", byID["l2"].Answer)

	gold, err := b.GetAllLabels(ctx, "label", domain.Filters{"origin": {"gold"}})
	require.NoError(t, err)
	require.Len(t, gold, 1)
	assert.Equal(t, "l1", gold[0].ID)

	n, err = b.GetLabelCount(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, n)
}
