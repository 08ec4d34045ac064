package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"low", TierLow, false},
		{"medium", TierMedium, false},
		{"HIGH", TierHigh, false},
		{" Medium ", TierMedium, false},
		{"", "", true},
		{"extreme", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInput, "ParseTier(%q)", tt.input)
			continue
		}
		require.NoError(t, err, "ParseTier(%q)", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestTextResponse(t *testing.T) {
	resp := TextResponse("Paris.")
	assert.Equal(t, ContentKindText, resp.Kind)
	assert.Equal(t, "Paris.", resp.Text)
}

func TestResponseRequestWireShape(t *testing.T) {
	req := ResponseRequest{
		Model: "o3",
		Input: "q",
		Tools: []ResponseTool{
			{Type: ToolTypeWebSearch, SearchContextSize: TierHigh},
		},
		ToolChoice:        ToolChoiceAuto,
		ParallelToolCalls: true,
		Reasoning:         &Reasoning{Effort: TierLow},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "o3",
		"input": "q",
		"tools": [{"type": "web_search_preview", "search_context_size": "high"}],
		"tool_choice": "auto",
		"parallel_tool_calls": true,
		"reasoning": {"effort": "low"}
	}`, string(data))
}
