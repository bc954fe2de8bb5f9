// Package pilot is the non-interactive chat facade: a caller that has no
// terminal to block on (an HTTP handler, a batch job, a second Claude-style
// client) drives the agent loop through Chat and, when a destructive Bash
// command needs approval out-of-band, resumes it later through ChatResume.
// The interactive CLI/TUI front-end uses the agent package directly instead,
// since it can supply a synchronous confirmation callback.
package pilot

import (
	"github.com/kaiho/pilot/llm"
)

// Mode gates which tools a turn may execute. ModeAsk is read-only: only
// Read, Grep, ListDir, and Glob may run; Write, Edit, and Bash are refused
// outright rather than dispatched.
type Mode string

const (
	ModeAgent Mode = "agent"
	ModeAsk   Mode = "ask"
)

// ConfirmFunc is the synchronous confirmation callback. It is called with
// the destructive command and returns true to approve. When a caller
// supplies one, a destructive Bash call never pauses the loop.
type ConfirmFunc func(command string) bool

// ProgressFunc receives human-oriented status lines, e.g. tool invocation
// previews. Called synchronously from the loop; must not block.
type ProgressFunc func(line string)

// ContentChunkFunc receives each assistant content delta as read from the
// stream, exactly as the API emitted it. Called synchronously; must not
// block.
type ContentChunkFunc func(delta string)

// TokenUsage mirrors llm.Usage with the facade's own field names, since the
// facade is a stable public surface independent of the OpenAI wire shape.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

func usageFromLLM(u llm.Usage) TokenUsage {
	return TokenUsage{Prompt: u.PromptTokens, Completion: u.CompletionTokens, Total: u.TotalTokens}
}

// ConfirmState is the serializable continuation for a destructive-command
// pause. Holding it is sufficient to resume the loop exactly where it
// stopped; no other state is required. ToolDefs is carried alongside the
// live registry for round-tripping through storage (a caller may persist
// ConfirmState and reconstruct a registry later); ChatResume itself always
// dispatches through the registry passed to it, not ToolDefs.
type ConfirmState struct {
	Messages          []llm.Message `json:"messages"`
	ToolLog           []string      `json:"tool_log"`
	PendingToolCallID string        `json:"pending_tool_call_id"`
	Mode              Mode          `json:"mode"`
	ToolDefs          []llm.ToolDef `json:"tool_defs"`
	Command           string        `json:"command"`
}

// ResultKind discriminates the ChatResult outcomes: a turn that ran to
// completion, one that was cancelled, and one that paused for confirmation.
type ResultKind int

const (
	ResultComplete ResultKind = iota
	ResultNeedsConfirmation
	ResultCancelled
)

func (k ResultKind) String() string {
	switch k {
	case ResultNeedsConfirmation:
		return "needs_confirmation"
	case ResultCancelled:
		return "cancelled"
	default:
		return "complete"
	}
}

// ChatResult is the union type Chat and ChatResume return. Kind determines
// which fields are meaningful: Complete populates Content/ToolLog/Messages/
// Usage; NeedsConfirmation populates Command/State; Cancelled populates
// ToolLog/Messages with whatever was accumulated before the cancel signal.
type ChatResult struct {
	Kind     ResultKind
	Content  string
	ToolLog  []string
	Messages []llm.Message
	Usage    TokenUsage

	// Populated only when Kind == ResultNeedsConfirmation.
	Command string
	State   *ConfirmState
}
