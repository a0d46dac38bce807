// Package embedding holds what the embedding provider adapters share.
package embedding

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a non-200 response from an embedding provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	// RetryAfter is the server's requested backoff, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// NewStatusError builds a StatusError from a response whose body was read.
func NewStatusError(provider string, resp *http.Response, body []byte) *StatusError {
	err := &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
		err.RetryAfter = time.Duration(secs) * time.Second
	}
	return err
}

// RateLimited reports whether err is a 429 from a provider, and the backoff
// the provider asked for.
func RateLimited(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

// ToFloat32 narrows a JSON-decoded vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
