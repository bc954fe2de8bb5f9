package llm

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AccumulateStream collects streaming events into a complete Response.
// It also calls onText for each text delta for real-time display.
//
// Content deltas beyond MaxContentBytes and tool-call deltas at or beyond
// MaxToolCalls, or whose arguments would push a single tool call beyond
// MaxToolCallArgsBytes, are silently dropped rather than partially applied —
// this defends against a malformed or adversarial stream without aborting
// the turn. Once a content delta reaches or would exceed MaxContentBytes, the
// rest of the response is ignored. Drops are logged at warn level since a well-behaved upstream
// never triggers them.
func AccumulateStream(events <-chan StreamEvent, onText func(string)) (*Response, error) {
	return AccumulateStreamWithLogger(events, onText, log.Logger)
}

// AccumulateStreamWithLogger is AccumulateStream with an explicit logger,
// letting callers route drop warnings to a per-turn or per-session sink.
func AccumulateStreamWithLogger(events <-chan StreamEvent, onText func(string), logger zerolog.Logger) (*Response, error) {
	var content strings.Builder
	toolCalls := make(map[int]*ToolCall) // accumulate by index
	var usage Usage
	var finishReason string
	capped := false

	for event := range events {
		// Once content has hit or would exceed MaxContentBytes, stop interpreting
		// the response entirely — still drain the channel so the producing goroutine
		// isn't left blocked on a send, but no further deltas are applied.
		if capped {
			continue
		}

		if event.Err != nil {
			return nil, event.Err
		}
		if event.Done {
			break
		}

		if event.TextDelta != "" {
			if content.Len() >= MaxContentBytes {
				capped = true
				logger.Warn().Int("content_bytes", content.Len()).Msg("content cap reached; ignoring remainder of response")
			} else if content.Len()+len(event.TextDelta) > MaxContentBytes {
				capped = true
				logger.Warn().
					Int("current_bytes", content.Len()).
					Int("delta_bytes", len(event.TextDelta)).
					Msg("dropping content delta: would exceed MaxContentBytes")
			} else {
				content.WriteString(event.TextDelta)
				if onText != nil {
					onText(event.TextDelta)
				}
			}
		}

		for _, delta := range event.ToolCallDeltas {
			mergeToolCallDelta(toolCalls, delta, logger)
		}

		if event.Usage != nil {
			usage = *event.Usage
		}
		if event.FinishReason != "" {
			finishReason = event.FinishReason
		}
	}

	// Build the final message
	var contentPtr *string
	if content.Len() > 0 {
		s := content.String()
		contentPtr = &s
	}

	var calls []ToolCall
	for i := 0; i < len(toolCalls); i++ {
		if tc, ok := toolCalls[i]; ok {
			calls = append(calls, *tc)
		}
	}

	msg := Message{
		Role:      "assistant",
		Content:   contentPtr,
		ToolCalls: calls,
	}

	return &Response{
		Message:      msg,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// mergeToolCallDelta merges one tool-call delta into the index-keyed accumulator,
// enforcing MaxToolCalls and MaxToolCallArgsBytes.
func mergeToolCallDelta(toolCalls map[int]*ToolCall, delta ToolCallDelta, logger zerolog.Logger) {
	if delta.Index >= MaxToolCalls {
		logger.Warn().Int("index", delta.Index).Msg("dropping tool call delta: index exceeds MaxToolCalls")
		return
	}

	tc, ok := toolCalls[delta.Index]
	if !ok {
		tc = &ToolCall{Type: "function"}
		toolCalls[delta.Index] = tc
	}
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Function.Name != "" {
		tc.Function.Name = delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		if len(tc.Function.Arguments)+len(delta.Function.Arguments) > MaxToolCallArgsBytes {
			logger.Warn().
				Int("index", delta.Index).
				Int("current_bytes", len(tc.Function.Arguments)).
				Int("delta_bytes", len(delta.Function.Arguments)).
				Msg("dropping tool call argument delta: would exceed MaxToolCallArgsBytes")
			return
		}
		tc.Function.Arguments += delta.Function.Arguments
	}
}
