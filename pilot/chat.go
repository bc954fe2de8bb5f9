package pilot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaiho/pilot/llm"
	"github.com/kaiho/pilot/tools"
)

// Chat drives one turn of the agent loop for a caller that has no terminal
// to block on. It appends prompt as a user message to priorMessages (nil
// for a fresh conversation) and runs until the model responds with no tool
// calls, the iteration cap is hit, the context is cancelled, or a
// destructive Bash command needs confirmation and no confirmCb was given —
// in which case it returns a ResultNeedsConfirmation outcome carrying a
// ConfirmState for ChatResume to consume.
//
// confirmCb, onProgress, and onContentChunk are all optional; pass nil for
// any the caller doesn't need. When confirmCb is non-nil, destructive Bash
// commands are approved or denied synchronously and the loop never pauses.
func Chat(ctx context.Context, client llm.LLMClient, registry *tools.Registry, prompt string, mode Mode, contextWindow int, priorMessages []llm.Message, confirmCb ConfirmFunc, onProgress ProgressFunc, onContentChunk ContentChunkFunc) (*ChatResult, error) {
	messages := make([]llm.Message, len(priorMessages), len(priorMessages)+1)
	copy(messages, priorMessages)
	messages = append(messages, llm.TextMessage("user", prompt))

	st := &loopState{messages: messages, mode: mode}
	return runLoop(ctx, client, registry, contextWindow, st, confirmCb, onProgress, onContentChunk)
}

// ChatResume consumes a ConfirmState returned by Chat's ResultNeedsConfirmation
// outcome. If confirmed, state.Command is executed through the registry's
// Bash tool directly; otherwise the pending tool call is answered with the
// same cancellation string the synchronous confirmation path uses. Either
// way the loop then re-enters at its top with the restored conversation.
func ChatResume(ctx context.Context, client llm.LLMClient, registry *tools.Registry, contextWindow int, state ConfirmState, confirmed bool, onProgress ProgressFunc, onContentChunk ContentChunkFunc) (*ChatResult, error) {
	if state.PendingToolCallID == "" {
		return nil, fmt.Errorf("pilot: ConfirmState has no pending tool call id")
	}

	messages := make([]llm.Message, len(state.Messages))
	copy(messages, state.Messages)

	var result string
	if confirmed {
		out, err := registry.Execute(ctx, "Bash", bashCommandJSON(state.Command))
		if err != nil {
			result = fmt.Sprintf("Error: %s", err)
		} else {
			result = out
		}
	} else {
		result = "Command cancelled (destructive command not confirmed)."
	}

	messages = append(messages, llm.ToolResultMessage(state.PendingToolCallID, result))

	toolLog := make([]string, len(state.ToolLog))
	copy(toolLog, state.ToolLog)

	st := &loopState{messages: messages, toolLog: toolLog, mode: state.Mode}
	return runLoop(ctx, client, registry, contextWindow, st, nil, onProgress, onContentChunk)
}

func bashCommandJSON(command string) []byte {
	// command was already extracted from a valid Bash call's arguments, so a
	// minimal re-encoding round-trips cleanly through the registry's schema
	// validation without needing the original raw JSON.
	data, _ := json.Marshal(bashArgs{Command: command})
	return data
}
