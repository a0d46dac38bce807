package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/adapters/driven/embedding/cache"
	ollamaembed "github.com/custodia-labs/jam/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/jam/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/jam/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.EmbeddingSettings
		wantType any
		wantErr  error
	}{
		{name: "nil settings returns nil"},
		{name: "no provider returns nil", settings: &domain.EmbeddingSettings{Model: "x"}},
		{
			name:     "ollama",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "all-minilm"},
			wantType: &ollamaembed.EmbeddingService{},
		},
		{
			name:     "openai",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, APIKey: "sk"},
			wantType: &openaiembed.EmbeddingService{},
		},
		{
			name:     "openai without key",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "throttled",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, RequestsPerSecond: 2},
			wantType: &throttledEmbedding{},
		},
		{
			name:     "cached",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, RequestsPerSecond: 2, CacheSize: 8},
			wantType: &cache.EmbeddingService{},
		},
		{
			name:     "unknown provider",
			settings: &domain.EmbeddingSettings{Provider: "gemini"},
			wantErr:  domain.ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantType == nil {
				assert.Nil(t, svc)
				return
			}
			assert.IsType(t, tt.wantType, svc)
		})
	}
}

func TestCreateEmbeddingService_Dimensions(t *testing.T) {
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "all-minilm"})
	require.NoError(t, err)
	assert.Equal(t, 384, svc.Dimensions())

	svc, err = CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama, Model: "all-minilm", Dimensions: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, svc.Dimensions())
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	svc, err := CreateAndValidateEmbeddingService(nil)
	require.NoError(t, err)
	assert.Nil(t, svc)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, err = CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama, BaseURL: server.URL,
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, ollamaembed.DefaultModel, svc.ModelName())

	_, err = CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	server.Close()
	_, err = CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama, BaseURL: server.URL,
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
