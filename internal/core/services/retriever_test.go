package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   []string
	err     error
}

var _ driven.EmbeddingService = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 2 }
func (f *fakeEmbedder) ModelName() string            { return "fake" }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

func seedStore(t *testing.T, docs ...domain.Document) *DocumentStore {
	t.Helper()
	s := newTestStore(memory.NewBackend())
	_, err := s.WriteDocuments(context.Background(), docs, domain.WriteOptions{})
	require.NoError(t, err)
	return s
}

func TestEmbeddingRetriever_RetrieveTopK(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t,
		mustDoc(t, "cats", domain.WithID("cats"), domain.WithEmbedding([]float32{1, 0}),
			domain.WithMeta(map[string]any{"lang": "en"})),
		mustDoc(t, "dogs", domain.WithID("dogs"), domain.WithEmbedding([]float32{0, 1}),
			domain.WithMeta(map[string]any{"lang": "en"})),
		mustDoc(t, "chats", domain.WithID("chats"), domain.WithEmbedding([]float32{0.9, 0.1}),
			domain.WithMeta(map[string]any{"lang": "fr"})),
	)
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"feline": {1, 0},
		"canine": {0, 1},
	}}
	r := NewEmbeddingRetriever(store, embedder)

	results, err := r.RetrieveTopK(ctx, []domain.Query{
		{Text: "feline"},
		{Text: "canine", Filters: domain.Filters{"lang": {"en"}}},
		{Embedding: []float32{1, 0}, Filters: domain.Filters{"lang": {"fr"}}},
	}, domain.RetrieveOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"cats", "chats"}, domain.IDs(results[0]))
	assert.Equal(t, []string{"dogs", "cats"}, domain.IDs(results[1]))
	assert.Equal(t, []string{"chats"}, domain.IDs(results[2]))

	top := results[0][0]
	require.NotNil(t, top.Score)
	require.NotNil(t, top.Probability)
	assert.InDelta(t, 1.0, *top.Score, 1e-6)
	assert.InDelta(t, 1.0, *top.Probability, 1e-6)
	assert.Nil(t, top.Embedding)

	assert.ElementsMatch(t, []string{"feline", "canine"}, embedder.calls, "supplied embeddings are not re-embedded")
}

func TestEmbeddingRetriever_DefaultTopK(t *testing.T) {
	docs := make([]domain.Document, 8)
	for i := range docs {
		docs[i] = mustDoc(t, strings.Repeat("x", i+1), domain.WithEmbedding([]float32{1, float32(i)}))
	}
	r := NewEmbeddingRetriever(seedStore(t, docs...), nil)

	results, err := r.RetrieveTopK(context.Background(), []domain.Query{{Embedding: []float32{1, 1}}}, domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, results[0], domain.DefaultRetrieveTopK)
}

func TestEmbeddingRetriever_Errors(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, mustDoc(t, "a", domain.WithEmbedding([]float32{1, 0})))

	_, err := NewEmbeddingRetriever(store, nil).RetrieveTopK(ctx, []domain.Query{{Text: "a"}}, domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	boom := errors.New("provider down")
	r := NewEmbeddingRetriever(store, &fakeEmbedder{err: boom})
	_, err = r.RetrieveTopK(ctx, []domain.Query{{Embedding: []float32{1, 0}}, {Text: "a"}}, domain.RetrieveOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestEmbeddingRetriever_EmptyBatch(t *testing.T) {
	r := NewEmbeddingRetriever(seedStore(t), nil)
	results, err := r.RetrieveTopK(context.Background(), nil, domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordRetriever_RetrieveTopK(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t,
		mustDoc(t, "the cat sat on the mat", domain.WithID("d1")),
		mustDoc(t, "Cat cat CAT", domain.WithID("d2")),
		mustDoc(t, "a dog barked", domain.WithID("d3")),
		mustDoc(t, "one cat", domain.WithID("d0"), domain.WithMeta(map[string]any{"kind": "short"})),
	)
	r := NewKeywordRetriever(store)
	assert.Equal(t, "keyword", r.Name())

	results, err := r.RetrieveTopK(ctx, []domain.Query{
		{Text: "cat"},
		{Text: "dog"},
		{Text: "cat", Filters: domain.Filters{"kind": {"short"}}},
		{Text: "unicorn"},
		{Text: "   "},
	}, domain.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, []string{"d2", "d0", "d1"}, domain.IDs(results[0]), "ties break by id")
	assert.Equal(t, []string{"d3"}, domain.IDs(results[1]))
	assert.Equal(t, []string{"d0"}, domain.IDs(results[2]))
	assert.Empty(t, results[3])
	assert.NotNil(t, results[3])
	assert.Empty(t, results[4])

	top := results[0]
	assert.InDelta(t, 3.0, *top[0].Score, 1e-9)
	assert.InDelta(t, 1.0, *top[0].Probability, 1e-9)
	assert.InDelta(t, 1.0/3.0, *top[1].Probability, 1e-9)
}

func TestKeywordRetriever_TopK(t *testing.T) {
	store := seedStore(t,
		mustDoc(t, "go go go", domain.WithID("a")),
		mustDoc(t, "go go", domain.WithID("b")),
		mustDoc(t, "go", domain.WithID("c")),
	)
	results, err := NewKeywordRetriever(store).RetrieveTopK(
		context.Background(), []domain.Query{{Text: "GO"}}, domain.RetrieveOptions{TopK: 2},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, domain.IDs(results[0]))
}

func TestKeywordRetriever_Index(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(memory.NewBackend())
	_, err := store.WriteDocuments(ctx, []domain.Document{mustDoc(t, "alpha")}, domain.WriteOptions{Index: "faq"})
	require.NoError(t, err)

	r := NewKeywordRetriever(store)
	results, err := r.RetrieveTopK(ctx, []domain.Query{{Text: "alpha"}}, domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, results[0])

	results, err = r.RetrieveTopK(ctx, []domain.Query{{Text: "alpha"}}, domain.RetrieveOptions{Index: "faq"})
	require.NoError(t, err)
	assert.Len(t, results[0], 1)
}

func TestTermFrequency(t *testing.T) {
	tests := []struct {
		text  string
		terms []string
		want  int
	}{
		{"a b a", []string{"a"}, 2},
		{"a b a", []string{"a", "b"}, 3},
		{"A  B", []string{"a"}, 1},
		{"", []string{"a"}, 0},
		{"cats", []string{"cat"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, termFrequency(tt.text, tt.terms))
		})
	}
}
