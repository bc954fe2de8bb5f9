package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaiho/pilot/llm"
)

const (
	// CharsPerToken is the heuristic ratio for estimating token count.
	CharsPerToken = 4
	// ContextBuffer is the fraction of context to keep free, matching the
	// 0.85 truncation ratio.
	ContextBuffer = 0.15
)

// EstimateTokens estimates the token count for a message using the char heuristic.
func EstimateTokens(msg llm.Message) int {
	tokens := len(msg.Role) / CharsPerToken
	if msg.Content != nil {
		tokens += len(*msg.Content) / CharsPerToken
	}
	for _, tc := range msg.ToolCalls {
		tokens += len(tc.Function.Name) / CharsPerToken
		tokens += len(tc.Function.Arguments) / CharsPerToken
	}
	// Minimum 1 token per message for overhead
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateToolDefTokens estimates token count for tool definitions using the chars/4 heuristic.
func EstimateToolDefTokens(defs []llm.ToolDef) int {
	data, err := json.Marshal(defs)
	if err != nil {
		return 0
	}
	tokens := len(data) / CharsPerToken
	if tokens < 1 && len(defs) > 0 {
		tokens = 1
	}
	return tokens
}

// EstimateTotalTokens estimates total tokens across all messages.
func EstimateTotalTokens(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg)
	}
	return total
}

// TruncationBudgetFraction is the fraction of the context window the
// deterministic truncator is allowed to fill before it starts dropping
// messages.
const TruncationBudgetFraction = 0.85

// TruncateToBudget drops the oldest messages until the remaining messages
// fit within floor(contextWindow*0.85) estimated tokens. If messages[0] is a
// system message, it is never evicted and eviction starts at index 1;
// otherwise eviction starts at index 0. The final message is never evicted
// either way. Sizes are computed once up front so each removal is O(1).
func TruncateToBudget(messages []llm.Message, contextWindow int) []llm.Message {
	if contextWindow <= 0 || len(messages) <= 1 {
		return messages
	}

	budget := int(float64(contextWindow) * TruncationBudgetFraction)

	sizes := make([]int, len(messages))
	total := 0
	for i, msg := range messages {
		sizes[i] = EstimateTokens(msg)
		total += sizes[i]
	}

	if total <= budget {
		return messages
	}

	startIdx := 0
	if messages[0].Role == "system" {
		startIdx = 1
	}

	keep := make([]bool, len(messages))
	for i := range keep {
		keep[i] = true
	}
	keep[len(messages)-1] = true

	for i := startIdx; i < len(messages)-1 && total > budget; i++ {
		total -= sizes[i]
		keep[i] = false
	}

	truncated := make([]llm.Message, 0, len(messages))
	for i, msg := range messages {
		if keep[i] {
			truncated = append(truncated, msg)
		}
	}
	return truncated
}

// RewriteLargeToolArgsInPlace replaces the arguments of Write/Edit tool calls
// already appended to an assistant message with a short byte-count
// placeholder, so the conversation history doesn't carry the full file
// content forward on every subsequent turn.
func RewriteLargeToolArgsInPlace(msg *llm.Message) {
	for i := range msg.ToolCalls {
		tc := &msg.ToolCalls[i]
		switch tc.Function.Name {
		case "Write":
			rewriteArgField(tc, "content", "written")
		case "Edit":
			rewriteArgField(tc, "old_string", "bytes")
			rewriteArgField(tc, "new_string", "bytes")
		}
	}
}

func rewriteArgField(tc *llm.ToolCall, field, label string) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &decoded); err != nil {
		return
	}
	raw, ok := decoded[field]
	if !ok {
		return
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return
	}
	if label == "written" {
		decoded[field] = json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("[%d bytes written]", len(value))))
	} else {
		decoded[field] = json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("[%d bytes]", len(value))))
	}
	rewritten, err := json.Marshal(decoded)
	if err != nil {
		return
	}
	tc.Function.Arguments = string(rewritten)
}

// compactionPrompt returns the system prompt used when asking the LLM to summarize the conversation.
func compactionPrompt() string {
	return `Your task is to create a detailed summary of the conversation so far, paying close attention to the user's explicit requests and your previous actions. This summary should be thorough in capturing technical details, code patterns, and architectural decisions essential for continuing work without losing context.

Before providing your final summary, wrap your analysis in <analysis> tags to organize your thoughts. In your analysis:
1. Chronologically analyze each message, identifying: the user's explicit requests and intents, your approach, key decisions and code patterns, specific file names, code snippets, function signatures, and file edits.
2. Note errors encountered and how they were fixed, paying special attention to user feedback.
3. Double-check for technical accuracy and completeness.

Your summary should include these sections:

1. Primary Request and Intent: All of the user's explicit requests and intents in detail.
2. Key Technical Concepts: Important technical concepts, technologies, and frameworks discussed.
3. Files and Code Sections: Specific files examined, modified, or created, with summaries of why each is important and what changes were made. Include code snippets where applicable.
4. Errors and Fixes: All errors encountered and how they were resolved, including any user feedback.
5. Problem Solving: Problems solved and any ongoing troubleshooting.
6. Pending Tasks: Any tasks explicitly asked for that remain incomplete.
7. Current Work: Precisely what was being worked on immediately before this summary, including file names and code snippets.
8. Optional Next Step: The next step related to the most recent work, only if directly in line with the user's most recent explicit request.

Drop verbose tool outputs (full file contents, long search results) — instead note what was learned. Drop redundant back-and-forth and dead-end steps unless the dead end itself is informative.

Output the summary directly. Do not include any preamble or meta-commentary outside the analysis and summary.`
}

// serializeHistory formats conversation messages into readable text for the LLM to summarize.
func serializeHistory(messages []llm.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString("[System]\n")
			if msg.Content != nil {
				// Truncate system prompt to avoid overwhelming the summary
				content := *msg.Content
				if len(content) > 500 {
					content = content[:500] + "...[truncated]"
				}
				sb.WriteString(content)
			}
		case "user":
			sb.WriteString("[User]\n")
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
		case "assistant":
			sb.WriteString("[Assistant]\n")
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&sb, "\n[Tool Call: %s(%s)]", tc.Function.Name, tc.Function.Arguments)
			}
		case "tool":
			sb.WriteString("[Tool Result]\n")
			if msg.Content != nil {
				content := *msg.Content
				// Truncate long tool results
				if len(content) > 1000 {
					content = content[:1000] + "...[truncated]"
				}
				sb.WriteString(content)
			}
		default:
			fmt.Fprintf(&sb, "[%s]\n", msg.Role)
			if msg.Content != nil {
				sb.WriteString(*msg.Content)
			}
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}
