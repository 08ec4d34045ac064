package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"o3-search-mcp/internal/domain"
)

// RateLimitedProvider paces outbound calls with a token bucket so a burst
// of tool invocations cannot exhaust the account quota.
type RateLimitedProvider struct {
	inner   domain.ResponsesProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows requestsPerMin calls per minute with the
// given burst (minimum 1).
func NewRateLimitedProvider(inner domain.ResponsesProvider, requestsPerMin, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), burst),
	}
}

// CreateResponse waits for a token, then delegates.
func (p *RateLimitedProvider) CreateResponse(ctx context.Context, req domain.ResponseRequest) (*domain.ResponseResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: local limiter: %w", domain.ErrRateLimit, err)
	}
	return p.inner.CreateResponse(ctx, req)
}

// Name implements domain.ResponsesProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

var _ domain.ResponsesProvider = (*RateLimitedProvider)(nil)
