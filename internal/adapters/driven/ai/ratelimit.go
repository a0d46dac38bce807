package ai

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/jam/internal/adapters/driven/embedding"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/logger"
)

// defaultBackoff applies when a provider answers 429 without Retry-After.
const defaultBackoff = 60 * time.Second

// RateLimiter is a token bucket that also honours provider backoff.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter allows requestsPerSecond sustained with a burst of at least one.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	burst := int(math.Ceil(requestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError pushes every waiter back by after.
func (r *RateLimiter) RecordRateLimitError(after time.Duration) {
	if after <= 0 {
		after = defaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = time.Now().Add(after)
}

// Allow reports whether a request can be made immediately.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}

// Ensure throttledEmbedding implements the interface.
var _ driven.EmbeddingService = (*throttledEmbedding)(nil)

// throttledEmbedding spaces out provider requests. Rate-limit responses
// set a backoff for later calls; the failing call is not retried.
type throttledEmbedding struct {
	driven.EmbeddingService
	limiter *RateLimiter
}

// Throttle wraps svc so it issues at most requestsPerSecond requests.
// A non-positive rate returns svc unchanged.
func Throttle(svc driven.EmbeddingService, requestsPerSecond float64) driven.EmbeddingService {
	if svc == nil || requestsPerSecond <= 0 {
		return svc
	}
	return &throttledEmbedding{EmbeddingService: svc, limiter: NewRateLimiter(requestsPerSecond)}
}

func (t *throttledEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := t.EmbeddingService.Embed(ctx, text)
	t.observe(err)
	return v, err
}

func (t *throttledEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := t.EmbeddingService.EmbedBatch(ctx, texts)
	t.observe(err)
	return v, err
}

func (t *throttledEmbedding) observe(err error) {
	if after, limited := embedding.RateLimited(err); limited {
		logger.Warn("%s is rate limiting requests, backing off", t.ModelName())
		t.limiter.RecordRateLimitError(after)
	}
}
