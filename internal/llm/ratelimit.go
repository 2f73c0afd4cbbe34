package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped client with a token bucket.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited allows rpm requests per minute with the given burst. A
// non-positive rpm disables limiting.
func NewRateLimited(next Client, rpm, burst int) *RateLimited {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Complete(ctx, req)
}

func (r *RateLimited) Model() string { return r.next.Model() }
