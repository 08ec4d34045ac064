package domain

import (
	"context"
	"fmt"
	"strings"
)

// ContentKindText is the only content kind a ToolResponse carries.
const ContentKindText = "text"

// ToolRequest is one decoded tool invocation.
type ToolRequest struct {
	Input string `json:"input"`
}

// ToolResponse is the tagged payload returned for exactly one ToolRequest.
type ToolResponse struct {
	Kind string `json:"type"`
	Text string `json:"text"`
}

// TextResponse builds a ToolResponse of kind "text".
func TextResponse(text string) ToolResponse {
	return ToolResponse{Kind: ContentKindText, Text: text}
}

// Searcher answers a natural-language query. Implementations never return an
// error: upstream failures are encoded in the response text.
type Searcher interface {
	Search(ctx context.Context, input string) ToolResponse
}

// Tier is a coarse low/medium/high setting shared by the search context size
// and the reasoning effort.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier normalizes s and reports whether it names a known tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: tier %q (want low, medium or high)", ErrInvalidInput, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	}
	return false
}

func (t Tier) String() string { return string(t) }

// Upstream tool and choice identifiers.
const (
	ToolTypeWebSearch = "web_search_preview"
	ToolChoiceAuto    = "auto"
)

// ResponseTool describes a hosted tool the upstream model may call.
type ResponseTool struct {
	Type              string `json:"type"`
	SearchContextSize Tier   `json:"search_context_size,omitempty"`
}

// Reasoning configures upstream deliberation.
type Reasoning struct {
	Effort Tier `json:"effort,omitempty"`
}

// ResponseRequest is the single upstream call issued per invocation.
type ResponseRequest struct {
	Model             string         `json:"model"`
	Input             string         `json:"input"`
	Tools             []ResponseTool `json:"tools,omitempty"`
	ToolChoice        string         `json:"tool_choice,omitempty"`
	ParallelToolCalls bool           `json:"parallel_tool_calls"`
	Reasoning         *Reasoning     `json:"reasoning,omitempty"`
}

// ResponseResult is the part of the upstream reply the handler consumes.
type ResponseResult struct {
	ID         string
	Model      string
	Status     string
	OutputText string
	Usage      Usage
}

// Usage holds upstream token accounting.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	TotalTokens     int `json:"total_tokens"`
}

// ResponsesProvider issues upstream response requests.
type ResponsesProvider interface {
	CreateResponse(ctx context.Context, req ResponseRequest) (*ResponseResult, error)
	// Name returns the provider's identifier (e.g., "openai").
	Name() string
}
