package llmprovider

import (
	"context"
	"math"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// Retrying wraps a Provider with the pipeline's transient-failure retry
// discipline: the first attempt plus up to maxRetries retries, exponential
// backoff starting at baseDelay and doubling per retry, capped at 16x
// baseDelay.
type Retrying struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry decorates inner with exponential-backoff retry.
func WithRetry(inner Provider, maxRetries int, baseDelay time.Duration) *Retrying {
	return &Retrying{inner: inner, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (r *Retrying) Name() string { return r.inner.Name() }

// Chat retries transient failures up to maxRetries times. The final error,
// if all attempts fail, is returned to the caller for the pipeline's
// retry-exhaustion apology path.
func (r *Retrying) Chat(ctx context.Context, messages []models.ChatMessage, tools []ToolSchema) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.inner.Chat(ctx, messages, tools)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == r.maxRetries {
			break
		}
		delay := r.baseDelay * time.Duration(math.Min(math.Pow(2, float64(attempt)), 16))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
