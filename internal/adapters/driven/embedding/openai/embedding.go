// Package openai embeds text with the OpenAI embeddings API or any server
// that speaks the same protocol.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/jam/internal/adapters/driven/embedding"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/logger"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// DefaultMaxInputs is the number of texts sent in one request.
	// The API rejects more than 2048.
	DefaultMaxInputs = 2048

	fallbackDimensions = 1536
)

// Config configures EmbeddingService. Only APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions shortens text-embedding-3-* vectors. Zero uses the
	// model's native size.
	Dimensions int

	// MaxInputs caps the texts per request; larger batches are split.
	MaxInputs int
}

// EmbeddingService calls POST {base}/embeddings.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	shorten    bool
	maxInputs  int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewEmbeddingService validates cfg and fills in defaults.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", domain.ErrInvalidInput)
	}
	s := &EmbeddingService{
		client:     &http.Client{Timeout: orDefault(cfg.Timeout, DefaultTimeout)},
		baseURL:    strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		apiKey:     cfg.APIKey,
		model:      orDefault(cfg.Model, DefaultModel),
		dimensions: cfg.Dimensions,
		maxInputs:  orDefault(cfg.MaxInputs, DefaultMaxInputs),
	}

	s.shorten = s.dimensions > 0 && strings.HasPrefix(s.model, "text-embedding-3-")
	if s.dimensions == 0 {
		s.dimensions = orDefault(domain.EmbeddingDimensions()[s.model], fallbackDimensions)
	}
	return s, nil
}

// orDefault returns v unless it is the zero value, else def.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Embed returns the embedding of one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one embedding per text, in input order. Batches larger
// than MaxInputs go out as several requests.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.maxInputs {
		chunk := texts[start:min(start+s.maxInputs, len(texts))]
		vectors, err := s.embedChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (s *EmbeddingService) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: s.model, Input: texts}
	if s.shorten {
		req.Dimensions = s.dimensions
	}

	logger.Debug("openai: embedding %d texts with %s", len(texts), s.model)
	var resp embeddingResponse
	if err := s.call(ctx, http.MethodPost, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	return resp.ordered(len(texts))
}

// ordered places each vector at its input index. The API does not promise
// response order.
func (r embeddingResponse) ordered(n int) ([][]float32, error) {
	out := make([][]float32, n)
	for _, d := range r.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		out[d.Index] = embedding.ToFloat32(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai: no embedding returned for text %d", i)
		}
	}
	return out, nil
}

// call sends an authenticated request with an optional JSON body and
// decodes a 200 response into out. Other statuses become
// *embedding.StatusError carrying the API's error message.
func (s *EmbeddingService) call(ctx context.Context, method, path string, in, out any) error {
	body := io.Reader(http.NoBody)
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("openai: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil {
			raw = []byte(apiErr.Error.Message)
		}
		return embedding.NewStatusError("openai", resp, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// Dimensions returns the vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the model name.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the key without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	err := s.call(ctx, http.MethodGet, "/models", nil, nil)
	var statusErr *embedding.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: openai rejected the API key: %w", domain.ErrInvalidInput, err)
	}
	return err
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
