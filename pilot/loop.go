package pilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaiho/pilot/agent"
	"github.com/kaiho/pilot/llm"
	"github.com/kaiho/pilot/tools"
)

// MaxIterationsPerTurn is the defensive backstop against a model that never
// stops calling tools. Exceeding it ends the turn as Complete with the
// conversation accumulated so far plus a tool_log note, not as an error —
// this must never fire during a well-behaved turn.
const MaxIterationsPerTurn = 50

const askModeRefusal = "Refused: ask mode only permits Read, Grep, ListDir, and Glob. Switch to agent mode to run this tool."

// askModeRestricted names the tools ask mode refuses to dispatch.
var askModeRestricted = map[string]bool{"Write": true, "Edit": true, "Bash": true}

// loopState carries everything the state machine needs across iterations
// and across a confirmation pause/resume boundary.
type loopState struct {
	messages []llm.Message
	toolLog  []string
	mode     Mode
}

// bashArgs mirrors just enough of a Bash tool call's arguments to read the
// command for the destructive check before dispatch.
type bashArgs struct {
	Command string `json:"command"`
}

func runLoop(ctx context.Context, client llm.LLMClient, registry *tools.Registry, contextWindow int, st *loopState, confirmCb ConfirmFunc, onProgress ProgressFunc, onContentChunk ContentChunkFunc) (*ChatResult, error) {
	progress := func(line string) {
		st.toolLog = append(st.toolLog, line)
		if onProgress != nil {
			onProgress(line)
		}
	}

	for iteration := 0; iteration < MaxIterationsPerTurn; iteration++ {
		if ctx.Err() != nil {
			return &ChatResult{Kind: ResultCancelled, ToolLog: st.toolLog, Messages: st.messages}, nil
		}

		st.messages = agent.TruncateToBudget(st.messages, contextWindow)

		if onProgress != nil {
			onProgress("Calling API...")
		}
		events, err := client.StreamMessage(ctx, st.messages, registry.Definitions())
		if err != nil {
			return nil, llm.ClassifyTransportError(err)
		}

		onText := func(string) {}
		if onContentChunk != nil {
			onText = onContentChunk
		}
		resp, err := llm.AccumulateStream(events, onText)
		if err != nil {
			if ctx.Err() != nil {
				return &ChatResult{Kind: ResultCancelled, ToolLog: st.toolLog, Messages: st.messages}, nil
			}
			return nil, llm.ClassifyTransportError(err)
		}

		agent.RewriteLargeToolArgsInPlace(&resp.Message)
		st.messages = append(st.messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return &ChatResult{
				Kind:     ResultComplete,
				Content:  resp.Message.ContentString(),
				ToolLog:  st.toolLog,
				Messages: st.messages,
				Usage:    usageFromLLM(resp.Usage),
			}, nil
		}

		if ctx.Err() != nil {
			return &ChatResult{Kind: ResultCancelled, ToolLog: st.toolLog, Messages: st.messages}, nil
		}

		result, err := dispatchToolCalls(ctx, registry, st, resp.Message.ToolCalls, confirmCb, progress)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	st.toolLog = append(st.toolLog, fmt.Sprintf("turn ended: reached maximum of %d iterations", MaxIterationsPerTurn))
	return &ChatResult{Kind: ResultComplete, Content: "", ToolLog: st.toolLog, Messages: st.messages}, nil
}

// dispatchToolCalls executes one assistant turn's tool calls. It returns a
// non-nil *ChatResult only when the turn must end immediately (a
// confirmation pause); a nil result means the caller should loop again.
func dispatchToolCalls(ctx context.Context, registry *tools.Registry, st *loopState, calls []llm.ToolCall, confirmCb ConfirmFunc, progress func(string)) (*ChatResult, error) {
	allReadOnly := true
	for _, tc := range calls {
		if !registry.IsReadOnly(tc.Function.Name) {
			allReadOnly = false
			break
		}
	}

	if allReadOnly && len(calls) > 1 {
		outputs := make([]string, len(calls))
		var wg sync.WaitGroup
		for i, tc := range calls {
			progress(fmt.Sprintf("→ %s: %s", tc.Function.Name, argsPreview(tc.Function.Arguments)))
			if !json.Valid([]byte(tc.Function.Arguments)) {
				outputs[i] = fmt.Sprintf("Error: invalid JSON in tool arguments: %s", tc.Function.Arguments)
				continue
			}
			wg.Add(1)
			go func(idx int, tc llm.ToolCall) {
				defer wg.Done()
				out, err := registry.Execute(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
				if err != nil {
					out = fmt.Sprintf("Error: %s", err)
				}
				outputs[idx] = out
			}(i, tc)
		}
		wg.Wait()

		for i, tc := range calls {
			st.messages = append(st.messages, llm.ToolResultMessage(tc.ID, outputs[i]))
		}
		return nil, nil
	}

	for _, tc := range calls {
		if !json.Valid([]byte(tc.Function.Arguments)) {
			st.messages = append(st.messages, llm.ToolResultMessage(tc.ID, fmt.Sprintf("Error: invalid JSON in tool arguments: %s", tc.Function.Arguments)))
			continue
		}

		progress(fmt.Sprintf("→ %s: %s", tc.Function.Name, argsPreview(tc.Function.Arguments)))

		if strings.EqualFold(string(st.mode), string(ModeAsk)) && askModeRestricted[tc.Function.Name] {
			st.messages = append(st.messages, llm.ToolResultMessage(tc.ID, askModeRefusal))
			continue
		}

		if tc.Function.Name == "Bash" {
			var args bashArgs
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)

			if tools.IsDestructive(args.Command) {
				if confirmCb != nil {
					if !confirmCb(args.Command) {
						st.messages = append(st.messages, llm.ToolResultMessage(tc.ID, "Command cancelled (destructive command not confirmed)."))
						continue
					}
				} else {
					return &ChatResult{
						Kind:    ResultNeedsConfirmation,
						Command: args.Command,
						State: &ConfirmState{
							Messages:          st.messages,
							ToolLog:           st.toolLog,
							PendingToolCallID: tc.ID,
							Mode:              st.mode,
							ToolDefs:          registry.Definitions(),
							Command:           args.Command,
						},
					}, nil
				}
			}
		}

		out, err := registry.Execute(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
		if err != nil {
			out = fmt.Sprintf("Error: %s", err)
		}
		st.messages = append(st.messages, llm.ToolResultMessage(tc.ID, out))
	}

	return nil, nil
}

// argsPreview trims a tool call's raw argument JSON to a short string for
// the progress log.
func argsPreview(args string) string {
	const max = 200
	if len(args) <= max {
		return args
	}
	return args[:max] + "..."
}
