package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewDocument_DerivedIDIsDeterministic(t *testing.T) {
	first, err := NewDocument("hello")
	require.NoError(t, err)
	second, err := NewDocument("hello")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Regexp(t, hexID, first.ID)
}

func TestNewDocument_Murmur3KnownValue(t *testing.T) {
	doc, err := NewDocument("hello")
	require.NoError(t, err)
	assert.Equal(t, "5b1e906a48ae1d19cbd8a7b341bd9b02", doc.ID)

	empty, err := NewDocument("")
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000000000000000000", empty.ID)
}

func TestNewDocument_DifferentTextDifferentID(t *testing.T) {
	a, err := NewDocument("hello")
	require.NoError(t, err)
	b, err := NewDocument("hello!")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewDocument_ExplicitID(t *testing.T) {
	doc, err := NewDocument("hello", WithID("custom-1"))
	require.NoError(t, err)
	assert.Equal(t, "custom-1", doc.ID)
}

func TestNewDocument_HashSchemes(t *testing.T) {
	tests := []struct {
		name   string
		scheme HashScheme
		want   string
	}{
		{"uuid3", HashSchemeUUID3, "0bacede4-4014-3f9d-b720-173f68a1c933"},
		{"uuid5", HashSchemeUUID5, "9342d47a-1bab-5709-9869-c840b2eac501"},
		{"murmur3", HashSchemeMurmur3, "5b1e906a48ae1d19cbd8a7b341bd9b02"},
		{"default", "", "5b1e906a48ae1d19cbd8a7b341bd9b02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewDocument("hello", WithHashScheme(tt.scheme))
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.ID)
		})
	}
}

func TestNewDocument_InvalidHashScheme(t *testing.T) {
	_, err := NewDocument("hello", WithHashScheme("sha256"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewDocument("hello", WithID("x"), WithHashScheme("sha256"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewDocument_IDHashKeys(t *testing.T) {
	meta := map[string]any{"file": "a.txt"}
	other := map[string]any{"file": "b.txt"}

	textOnly, err := NewDocument("same text", WithMeta(meta))
	require.NoError(t, err)
	a, err := NewDocument("same text", WithMeta(meta), WithIDHashKeys("meta.file", "text"))
	require.NoError(t, err)
	b, err := NewDocument("same text", WithMeta(other), WithIDHashKeys("meta.file", "text"))
	require.NoError(t, err)
	again, err := NewDocument("same text", WithMeta(meta), WithIDHashKeys("meta.file", "text"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, textOnly.ID, a.ID)
	assert.Equal(t, a.ID, again.ID)
}

func TestNewDocument_IDHashKeysTextOnlyMatchesDefault(t *testing.T) {
	plain, err := NewDocument("hello")
	require.NoError(t, err)
	keyed, err := NewDocument("hello", WithIDHashKeys("text"))
	require.NoError(t, err)
	assert.Equal(t, plain.ID, keyed.ID)
}

func TestNewDocument_UnknownIDHashKey(t *testing.T) {
	_, err := NewDocument("hello", WithIDHashKeys("title"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewDocument_CopiesInputs(t *testing.T) {
	meta := map[string]any{"k": "v"}
	embedding := []float32{1, 2}

	doc, err := NewDocument("x", WithMeta(meta), WithEmbedding(embedding))
	require.NoError(t, err)

	meta["k"] = "changed"
	embedding[0] = 9

	assert.Equal(t, "v", doc.Meta["k"])
	assert.Equal(t, float32(1), doc.Embedding[0])
}

func TestDocument_Field(t *testing.T) {
	doc, err := NewDocument("body", WithID("d1"), WithMeta(map[string]any{"name": "n"}))
	require.NoError(t, err)

	v, ok := doc.Field("id")
	assert.True(t, ok)
	assert.Equal(t, "d1", v)

	v, ok = doc.Field("name")
	assert.True(t, ok)
	assert.Equal(t, "n", v)

	_, ok = doc.Field("question")
	assert.False(t, ok)

	_, ok = doc.Field("missing")
	assert.False(t, ok)
}

func TestDocument_WithRankingReturnsCopy(t *testing.T) {
	doc, err := NewDocument("body")
	require.NoError(t, err)

	ranked := doc.WithRanking(0.8, 0.9)

	assert.Nil(t, doc.Score)
	require.NotNil(t, ranked.Score)
	assert.InDelta(t, 0.8, *ranked.Score, 1e-9)
	assert.InDelta(t, 0.9, *ranked.Probability, 1e-9)
	assert.Equal(t, doc.ID, ranked.ID)
}

func TestDocument_Equal(t *testing.T) {
	a, err := NewDocument("body", WithScore(1), WithEmbedding([]float32{1, 2}))
	require.NoError(t, err)
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Embedding[1] = 3
	assert.False(t, a.Equal(b))

	c := a.Clone()
	c.Meta = nil
	assert.True(t, a.Equal(c))

	d := a.Clone()
	d.Score = nil
	assert.False(t, a.Equal(d))
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	doc, err := NewDocument("body",
		WithQuestion("why?"),
		WithMeta(map[string]any{"name": "n"}),
		WithEmbedding([]float32{0.5, 0.25}),
	)
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, doc.Equal(decoded))
}

func TestIDs(t *testing.T) {
	docs := []Document{{ID: "a"}, {ID: "b"}}
	assert.Equal(t, []string{"a", "b"}, IDs(docs))
}

func TestNewDocument_DefaultMeta(t *testing.T) {
	doc, err := NewDocument("same",
		WithMeta(map[string]any{"name": "record"}),
		WithDefaultMeta(map[string]any{"name": "file", "uri": "/tmp/a"}),
		WithIDHashKeys("text", "meta.uri"),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "record", "uri": "/tmp/a"}, doc.Meta)

	other, err := NewDocument("same",
		WithMeta(doc.Meta),
		WithIDHashKeys("text", "meta.uri"),
	)
	require.NoError(t, err)
	assert.Equal(t, other.ID, doc.ID, "default meta takes part in the derived ID")

	moved, err := NewDocument("same",
		WithDefaultMeta(map[string]any{"uri": "/tmp/b"}),
		WithIDHashKeys("text", "meta.uri"),
	)
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID, moved.ID)
}
