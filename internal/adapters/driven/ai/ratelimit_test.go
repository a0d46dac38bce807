package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jam/internal/adapters/driven/embedding"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
)

// stubEmbedder returns a fixed vector or error.
type stubEmbedder struct {
	driven.EmbeddingService
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1}, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return make([][]float32, len(texts)), nil
}

func (s *stubEmbedder) ModelName() string { return "stub" }

func TestRateLimiter_Allow(t *testing.T) {
	r := NewRateLimiter(1)

	assert.True(t, r.Allow())
	assert.False(t, r.Allow(), "burst of one is spent")
}

func TestRateLimiter_BackoffBlocksAllow(t *testing.T) {
	r := NewRateLimiter(100)
	r.RecordRateLimitError(time.Hour)

	assert.False(t, r.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestRateLimiter_DefaultBackoff(t *testing.T) {
	r := NewRateLimiter(1)
	r.RecordRateLimitError(0)

	assert.WithinDuration(t, time.Now().Add(defaultBackoff), r.retryAt, time.Second)
}

func TestThrottle(t *testing.T) {
	stub := &stubEmbedder{}
	assert.Same(t, driven.EmbeddingService(stub), Throttle(stub, 0))

	svc := Throttle(stub, 1000)
	v, err := svc.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)

	vs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)
	assert.Equal(t, 2, stub.calls)
}

func TestThrottle_RecordsRateLimit(t *testing.T) {
	stub := &stubEmbedder{err: &embedding.StatusError{Provider: "stub", StatusCode: 429, RetryAfter: time.Hour}}
	svc := Throttle(stub, 1000).(*throttledEmbedding)

	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, svc.limiter.Allow())

	other := &stubEmbedder{err: errors.New("boom")}
	plain := Throttle(other, 1000).(*throttledEmbedding)
	_, _ = plain.EmbedBatch(context.Background(), []string{"x"})
	assert.True(t, plain.limiter.Allow())
}
