package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/config"
	"o3-search-mcp/internal/infra/tracer"
)

const providerName = "openai"

// Backoff bounds between retried attempts.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 8 * time.Second
)

// ResponsesProvider implements domain.ResponsesProvider against the OpenAI
// Responses API, retrying transient failures with exponential backoff.
type ResponsesProvider struct {
	apiKey     string
	baseURL    string
	maxRetries int
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger

	newBackOff func() backoff.BackOff
}

// NewResponsesProvider creates a provider from the OpenAI settings.
func NewResponsesProvider(cfg config.OpenAIConfig, logger *slog.Logger) *ResponsesProvider {
	return newResponsesProvider(cfg, NewHTTPClient(cfg), logger)
}

func newResponsesProvider(cfg config.OpenAIConfig, client *http.Client, logger *slog.Logger) *ResponsesProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &ResponsesProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxRetries: max(cfg.MaxRetries, 0),
		timeout:    timeout,
		client:     client,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(retryInitialInterval),
				backoff.WithMaxInterval(retryMaxInterval),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}
}

// CreateResponse implements domain.ResponsesProvider.
func (p *ResponsesProvider) CreateResponse(ctx context.Context, req domain.ResponseRequest) (*domain.ResponseResult, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.responses",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", providerName),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	attempts := 0
	op := func() (*domain.ResponseResult, error) {
		attempts++
		res, err := p.attempt(ctx, body)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !domain.IsRetryableError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("llm request failed, retrying",
			"provider", providerName,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxRetries)), ctx)
	result, err := backoff.RetryNotifyWithData(op, b, notify)
	span.SetAttributes(tracer.IntAttr("llm.attempts", attempts))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logResponseCompleted(p.logger, providerName, result)

	return result, nil
}

// attempt performs one bounded HTTP round trip.
func (p *ResponsesProvider) attempt(ctx context.Context, body []byte) (*domain.ResponseResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	respBody, err := doJSONRequest(attemptCtx, p.client, p.baseURL+"/responses", body, headers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no response within %s", domain.ErrTimeout, p.timeout)
		}
		return nil, err
	}

	var reply responsesReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedReply, err)
	}
	if err := reply.failure(); err != nil {
		return nil, err
	}
	return reply.toResult(), nil
}

// Name implements domain.ResponsesProvider.
func (p *ResponsesProvider) Name() string { return providerName }

var _ domain.ResponsesProvider = (*ResponsesProvider)(nil)

// --- Responses API wire types ---

type responsesReply struct {
	ID                string                `json:"id"`
	Object            string                `json:"object"`
	Model             string                `json:"model"`
	Status            string                `json:"status"`
	Output            []responsesOutputItem `json:"output"`
	OutputText        string                `json:"output_text,omitempty"`
	Error             *apiError             `json:"error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Usage responsesUsage `json:"usage"`
}

type responsesOutputItem struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"` // message, web_search_call, reasoning
	Status  string             `json:"status"`
	Role    string             `json:"role,omitempty"`
	Content []responsesContent `json:"content,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"` // output_text, refusal
	Text string `json:"text,omitempty"`
}

type responsesUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	TotalTokens         int `json:"total_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

// failure reports a reply that completed at the HTTP level but failed
// upstream. Such failures are not retried.
func (r *responsesReply) failure() error {
	if r.Error != nil {
		msg := r.Error.Message
		if msg == "" {
			msg = r.Error.Code
		}
		return fmt.Errorf("%w: response %s: %s", domain.ErrToolFailure, r.ID, msg)
	}
	if r.Status == "failed" {
		return fmt.Errorf("%w: response %s failed", domain.ErrToolFailure, r.ID)
	}
	return nil
}

// outputText concatenates the output_text parts of every message item.
func (r *responsesReply) outputText() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return r.OutputText
	}
	return sb.String()
}

func (r *responsesReply) toResult() *domain.ResponseResult {
	return &domain.ResponseResult{
		ID:         r.ID,
		Model:      r.Model,
		Status:     r.Status,
		OutputText: r.outputText(),
		Usage: domain.Usage{
			InputTokens:     r.Usage.InputTokens,
			OutputTokens:    r.Usage.OutputTokens,
			ReasoningTokens: r.Usage.OutputTokensDetails.ReasoningTokens,
			TotalTokens:     r.Usage.TotalTokens,
		},
	}
}
