// Package search turns one natural-language query into one Responses API
// call with web search enabled.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/trace"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/tracer"
)

// FallbackText is returned when the upstream reply carries no output text.
const FallbackText = "No response text available."

const (
	errorPrefix  = "Error: "
	unknownError = "Unknown error occurred"
)

// Options fixes the request parameters sent with every query.
type Options struct {
	Model             string
	SearchContextSize domain.Tier
	ReasoningEffort   domain.Tier
}

// Handler implements domain.Searcher.
type Handler struct {
	provider domain.ResponsesProvider
	opts     Options
	logger   *slog.Logger
}

// NewHandler creates a Handler. Empty options fall back to o3 with medium
// tiers.
func NewHandler(provider domain.ResponsesProvider, opts Options, logger *slog.Logger) *Handler {
	if opts.Model == "" {
		opts.Model = "o3"
	}
	if opts.SearchContextSize == "" {
		opts.SearchContextSize = domain.TierMedium
	}
	if opts.ReasoningEffort == "" {
		opts.ReasoningEffort = domain.TierMedium
	}
	return &Handler{provider: provider, opts: opts, logger: logger}
}

// Search forwards input upstream and returns the answer text. Failures,
// including panics in the provider, come back as "Error: ..." text.
func (h *Handler) Search(ctx context.Context, input string) (resp domain.ToolResponse) {
	ctx, span := tracer.StartSpan(ctx, "search.invoke",
		trace.WithAttributes(
			tracer.StringAttr("search.model", h.opts.Model),
			tracer.StringAttr("search.context_size", h.opts.SearchContextSize.String()),
			tracer.StringAttr("search.reasoning_effort", h.opts.ReasoningEffort.String()),
			tracer.IntAttr("search.input_length", len(input)),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", domain.ErrToolFailure, r)
			h.logger.Error("o3-search panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			tracer.RecordError(span, err)
			resp = errorResponse(fmt.Sprint(r))
		}
	}()

	res, err := h.provider.CreateResponse(ctx, h.request(input))
	if err != nil {
		h.logger.Error("o3-search failed",
			"provider", h.provider.Name(),
			"code", domain.ErrorCodeOf(err),
			"error", err,
		)
		tracer.RecordError(span, err)
		return errorResponse(err.Error())
	}

	text := ""
	if res != nil {
		text = res.OutputText
		span.SetAttributes(tracer.StringAttr("llm.response_id", res.ID))
	}
	if text == "" {
		text = FallbackText
		span.SetAttributes(tracer.BoolAttr("search.fallback", true))
	}
	tracer.SetOK(span)
	return domain.TextResponse(text)
}

func (h *Handler) request(input string) domain.ResponseRequest {
	return domain.ResponseRequest{
		Model: h.opts.Model,
		Input: input,
		Tools: []domain.ResponseTool{{
			Type:              domain.ToolTypeWebSearch,
			SearchContextSize: h.opts.SearchContextSize,
		}},
		ToolChoice:        domain.ToolChoiceAuto,
		ParallelToolCalls: true,
		Reasoning:         &domain.Reasoning{Effort: h.opts.ReasoningEffort},
	}
}

func errorResponse(msg string) domain.ToolResponse {
	if msg == "" {
		msg = unknownError
	}
	return domain.TextResponse(errorPrefix + msg)
}

var _ domain.Searcher = (*Handler)(nil)
