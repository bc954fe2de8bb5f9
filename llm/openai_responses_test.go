package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToResponsesInput_SystemExtracted(t *testing.T) {
	messages := []Message{
		TextMessage("system", "You are a helpful assistant."),
		TextMessage("user", "Hello"),
	}

	instructions, input := convertToResponsesInput(messages)

	assert.Equal(t, "You are a helpful assistant.", instructions)
	require.Len(t, input, 1)

	var msg responsesMessageInput
	require.NoError(t, json.Unmarshal(input[0], &msg))
	assert.Equal(t, "user", msg.Role)
	assert.Equal(t, "Hello", msg.Content)
}

func TestConvertToResponsesInput_ToolCalls(t *testing.T) {
	content := "Let me search for that."
	messages := []Message{
		TextMessage("system", "system"),
		TextMessage("user", "find files"),
		{
			Role:    "assistant",
			Content: &content,
			ToolCalls: []ToolCall{
				{
					ID:   "call_123",
					Type: "function",
					Function: FunctionCall{
						Name:      "glob",
						Arguments: `{"pattern":"*.go"}`,
					},
				},
			},
		},
		ToolResultMessage("call_123", "main.go\nutil.go"),
	}

	instructions, input := convertToResponsesInput(messages)

	assert.Equal(t, "system", instructions)

	// Should have: user msg + assistant msg + function_call + function_call_output = 4
	require.Len(t, input, 4)

	var fcInput responsesFunctionCallInput
	require.NoError(t, json.Unmarshal(input[2], &fcInput))
	assert.Equal(t, "function_call", fcInput.Type)
	assert.Equal(t, "call_123", fcInput.CallID)
	assert.Equal(t, "glob", fcInput.Name)

	var fcoInput responsesFunctionCallOutputInput
	require.NoError(t, json.Unmarshal(input[3], &fcoInput))
	assert.Equal(t, "function_call_output", fcoInput.Type)
	assert.Equal(t, "call_123", fcoInput.CallID)
	assert.Equal(t, "main.go\nutil.go", fcoInput.Output)
}

func TestConvertResponsesResponse_TextOnly(t *testing.T) {
	resp := responsesResponse{
		ID:     "resp_1",
		Status: "completed",
		Output: []responsesOutput{
			{
				Type: "message",
				Role: "assistant",
				Content: []responsesContentItem{
					{Type: "output_text", Text: "Hello world!"},
				},
			},
		},
		Usage: responsesUsage{
			InputTokens:  10,
			OutputTokens: 5,
			TotalTokens:  15,
		},
	}

	result := convertResponsesResponse(resp)

	assert.Equal(t, "Hello world!", result.Message.ContentString())
	assert.Equal(t, "stop", result.FinishReason)
	assert.Empty(t, result.Message.ToolCalls)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestConvertResponsesResponse_ToolCalls(t *testing.T) {
	resp := responsesResponse{
		ID:     "resp_2",
		Status: "completed",
		Output: []responsesOutput{
			{
				Type:      "function_call",
				Name:      "glob",
				Arguments: `{"pattern":"*.go"}`,
				CallID:    "call_abc",
				Status:    "completed",
			},
		},
		Usage: responsesUsage{
			InputTokens:  20,
			OutputTokens: 10,
			TotalTokens:  30,
		},
	}

	result := convertResponsesResponse(resp)

	assert.Equal(t, "tool_calls", result.FinishReason)
	require.Len(t, result.Message.ToolCalls, 1)
	tc := result.Message.ToolCalls[0]
	assert.Equal(t, "call_abc", tc.ID)
	assert.Equal(t, "glob", tc.Function.Name)
	assert.Equal(t, `{"pattern":"*.go"}`, tc.Function.Arguments)
}

func TestConvertResponsesResponse_Incomplete(t *testing.T) {
	resp := responsesResponse{
		ID:     "resp_3",
		Status: "incomplete",
		Output: []responsesOutput{
			{
				Type: "message",
				Role: "assistant",
				Content: []responsesContentItem{
					{Type: "output_text", Text: "Partial response..."},
				},
			},
		},
	}

	result := convertResponsesResponse(resp)

	assert.Equal(t, "length", result.FinishReason)
}

func TestConvertResponsesToolDefs(t *testing.T) {
	tools := []ToolDef{
		{
			Type: "function",
			Function: FunctionDef{
				Name:        "glob",
				Description: "Find files",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"}}}`),
			},
		},
	}

	result := convertResponsesToolDefs(tools)

	require.Len(t, result, 1)
	assert.Equal(t, "function", result[0].Type)
	assert.Equal(t, "glob", result[0].Name)
	assert.Equal(t, "Find files", result[0].Description)
}

func TestConvertResponsesResponse_MixedTextAndToolCalls(t *testing.T) {
	resp := responsesResponse{
		ID:     "resp_4",
		Status: "completed",
		Output: []responsesOutput{
			{
				Type: "message",
				Role: "assistant",
				Content: []responsesContentItem{
					{Type: "output_text", Text: "Let me search for that."},
				},
			},
			{
				Type:      "function_call",
				Name:      "grep",
				Arguments: `{"pattern":"func main"}`,
				CallID:    "call_xyz",
				Status:    "completed",
			},
		},
	}

	result := convertResponsesResponse(resp)

	assert.Equal(t, "Let me search for that.", result.Message.ContentString())
	require.Len(t, result.Message.ToolCalls, 1)
	assert.Equal(t, "tool_calls", result.FinishReason)
}
