package llm

import (
	"log/slog"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/config"
)

// NewProvider assembles the upstream chain: the HTTP provider, optionally
// guarded by a circuit breaker, optionally paced by a rate limiter. The
// limiter sits outside the breaker so queued calls never count as failures.
func NewProvider(cfg config.OpenAIConfig, logger *slog.Logger) domain.ResponsesProvider {
	var p domain.ResponsesProvider = NewResponsesProvider(cfg, logger)

	if cfg.CircuitBreaker.Enabled {
		p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		logger.Info("circuit breaker enabled",
			"max_failures", cfg.CircuitBreaker.MaxFailures,
			"timeout", cfg.CircuitBreaker.Timeout,
		)
	}
	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerMinute, 1)
		logger.Info("outbound rate limit enabled", "requests_per_minute", cfg.RequestsPerMinute)
	}
	return p
}
