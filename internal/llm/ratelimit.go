package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited shares one token bucket across every completion made through it.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most reqPerSec calls start per second.
func NewRateLimited(next Client, reqPerSec float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// CompleteJSON waits for a token and then delegates. A context that ends while
// waiting is returned as-is.
func (r *RateLimited) CompleteJSON(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.CompleteJSON(ctx, req)
}

// Close closes the wrapped client.
func (r *RateLimited) Close() error {
	return r.next.Close()
}
