package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/core/domain"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	assert.Contains(t, mimeTypes, "text/plain")
	assert.Contains(t, mimeTypes, "application/json")
	assert.Contains(t, mimeTypes, "*/*")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 5, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "/path/to/release-notes_v2.txt",
		MIMEType: "text/plain",
		Content:  []byte("\ufeffline one\r\nline two"),
		Metadata: map[string]any{"source": "cli"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "line one\nline two", result.Text)
	assert.Equal(t, "release notes v2", result.Meta["title"])
	assert.Equal(t, "text", result.Meta["format"])
	assert.Equal(t, "cli", result.Meta["source"])
	assert.NotContains(t, raw.Metadata, "title", "input metadata is not modified")
}

func TestNormalise_TitleFromMetadata(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "a.txt",
		Content:  []byte("x"),
		Metadata: map[string]any{"title": "Given Title"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Given Title", result.Meta["title"])
}

func TestNormalise_EmptyContent(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{URI: "empty.txt"})
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestNormalise_Errors(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "image.png",
		Content: []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}
