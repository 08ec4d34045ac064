package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from the API.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorDetail caps how much of a non-JSON error body ends up in messages.
const maxErrorDetail = 512

// doJSONRequest performs a JSON POST request and returns the response body.
// Transport failures wrap domain.ErrProviderError; non-200 statuses are mapped
// by mapHTTPError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrProviderError, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrProviderError, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// apiErrorBody is the error envelope returned by the OpenAI API.
type apiErrorBody struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// errorMessage extracts error.message from an API error body, falling back
// to the trimmed raw body.
func errorMessage(body []byte) string {
	var env apiErrorBody
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorDetail {
		msg = msg[:maxErrorDetail] + "..."
	}
	return msg
}

// mapHTTPError maps an HTTP status code + response body to a domain error so
// the retry loop and circuit breaker can classify upstream failures.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d", statusCode)
	if msg := errorMessage(body); msg != "" {
		detail += ": " + msg
	}

	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusRequestTimeout: // 408
		return fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	case statusCode == http.StatusConflict, statusCode >= 500: // 409, 5xx
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

func logResponseCompleted(logger *slog.Logger, providerName string, result *domain.ResponseResult) {
	logger.Debug("llm response completed",
		"provider", providerName,
		"response_id", result.ID,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", usage.InputTokens),
		tracer.IntAttr("llm.output_tokens", usage.OutputTokens),
		tracer.IntAttr("llm.reasoning_tokens", usage.ReasoningTokens),
	)
}
