// Package tools provides the tool registry and implementations for file operations,
// shell execution, and codebase search, with path sandboxing for security.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kaiho/pilot/llm"
)

// ToolFunc is the signature for tool implementations.
type ToolFunc func(ctx context.Context, input json.RawMessage) (string, error)

type toolEntry struct {
	name   string
	fn     ToolFunc
	def    llm.ToolDef
	schema *jsonschema.Schema
}

// Registry holds all available tools and dispatches execution.
type Registry struct {
	tools         []toolEntry
	workDir       string
	exploreFunc   ExploreFunc
	taskCallbacks TaskCallbacks
}

// NewRegistry creates a registry and registers the seven built-in tools:
// Read, Write, Edit, Bash, Grep, ListDir, Glob.
func NewRegistry(workDir string) *Registry {
	r := &Registry{workDir: workDir}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(name, description string, schema json.RawMessage, fn ToolFunc) {
	compiled, err := compileSchema(name, schema)
	if err != nil {
		// A malformed literal schema is a programming error caught at startup,
		// not a runtime condition — panic rather than silently skip validation.
		panic(fmt.Sprintf("tools: invalid schema for %s: %v", name, err))
	}
	r.tools = append(r.tools, toolEntry{
		name:   name,
		fn:     fn,
		schema: compiled,
		def: llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
	})
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, strings.NewReader(string(schema))); err != nil {
		return nil, err
	}
	return c.Compile(resource)
}

// Execute runs a tool by name with the given input, after validating input
// against the tool's registered JSON schema.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	entry, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown tool '%s'", name)
	}

	var decoded interface{}
	if err := json.Unmarshal(input, &decoded); err != nil {
		return "", &llm.ChatError{Kind: llm.ErrToolArgs, Tool: name, Source: err}
	}
	if err := entry.schema.Validate(decoded); err != nil {
		return "", &llm.ChatError{Kind: llm.ErrToolArgs, Tool: name, Source: err}
	}

	output, err := entry.fn(ctx, input)
	if err != nil {
		return output, err
	}
	return truncateOutput(name, output), nil
}

// outputCaps gives each tool's result a byte ceiling. Read and Bash can
// return large file contents or command logs; Grep/ListDir/Glob results are
// already line-oriented and capped tighter.
var outputCaps = map[string]int{
	"Read":    32 * 1024,
	"Bash":    32 * 1024,
	"Grep":    16 * 1024,
	"ListDir": 16 * 1024,
	"Glob":    16 * 1024,
}

func truncateOutput(name, output string) string {
	limit, ok := outputCaps[name]
	if !ok || len(output) <= limit {
		return output
	}

	cut := limit
	for cut > 0 && !isUTF8Boundary(output, cut) {
		cut--
	}
	return output[:cut] + fmt.Sprintf("\n\n[... truncated, %d bytes total]", len(output))
}

func isUTF8Boundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

func (r *Registry) lookup(name string) (toolEntry, bool) {
	for _, t := range r.tools {
		if t.name == name {
			return t, true
		}
	}
	return toolEntry{}, false
}

// IsReadOnly returns true for tools that don't modify the filesystem.
func (r *Registry) IsReadOnly(name string) bool {
	switch name {
	case "Glob", "Grep", "ListDir", "Read":
		return true
	default:
		return false
	}
}

// destructivePrefixes are the command prefixes that make a Bash invocation a
// confirmation candidate. Matching is prefix-only against the normalized
// (trimmed, collapsed-whitespace, lowercased) command string.
var destructivePrefixes = []string{
	"rm ", "rm -", "rmdir ", "del ", "rd ", "mv ", "unlink ",
}

// IsDestructive reports whether a Bash command matches one of the destructive
// prefixes. It is the Tool Executor's sole signal for pausing on confirmation;
// Write and Edit are never treated as destructive by this classifier.
func IsDestructive(command string) bool {
	normalized := normalizeCommand(command)
	if normalized == "" {
		return false
	}
	for _, prefix := range destructivePrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

func normalizeCommand(command string) string {
	fields := strings.Fields(command)
	return strings.ToLower(strings.Join(fields, " "))
}

// Definitions returns tool definitions in stable registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// registerReadOnlyTools registers the read-only tools (Glob, Grep, ListDir, Read).
// Shared by both the full registry and the read-only registry used by the
// codebase-search sub-agent.
func (r *Registry) registerReadOnlyTools() {
	r.register("Glob",
		`Fast file pattern matching. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to the search root. Use this instead of bash find.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "Glob pattern to match files (e.g., '**/*.go', 'src/**/*.ts')"
				},
				"path": {
					"type": "string",
					"description": "Directory to search under (default: working directory)"
				},
				"max_results": {
					"type": "integer",
					"description": "Maximum number of matches to return (default: 100)"
				}
			},
			"required": ["pattern"]
		}`),
		r.globTool,
	)

	r.register("Grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. Use this instead of bash grep or rg. RE2 does not support lookaheads or lookbehinds; literal braces need escaping.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "RE2 regular expression to search for"
				},
				"path": {
					"type": "string",
					"description": "Directory to search in (default: working directory)"
				},
				"include": {
					"type": "string",
					"description": "Glob pattern to filter filenames (e.g., '*.go'); brace alternatives such as '*.{ts,tsx}' are not supported"
				},
				"context_lines": {
					"type": "integer",
					"description": "Number of lines of context to show around each match"
				},
				"max_results": {
					"type": "integer",
					"description": "Maximum number of matches to return (default: 50)"
				}
			},
			"required": ["pattern"]
		}`),
		r.grepTool,
	)

	r.register("ListDir",
		"List directory contents, directories first (trailing slash) then files, both sorted by name. Use Glob to find files by pattern instead.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Directory path to list (default: working directory)"
				},
				"max_depth": {
					"type": "integer",
					"description": "How many directory levels to descend (default: 1)"
				}
			}
		}`),
		r.listDirTool,
	)

	r.register("Read",
		`Return the full contents of a file as text. Use this instead of bash cat, head, or tail.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "File path to read"
				}
			},
			"required": ["file_path"]
		}`),
		r.readTool,
	)
}

func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()

	r.register("Write",
		`Create or overwrite a file with the given content. Creates parent directories if needed. Always prefer editing existing files over writing new ones — use Edit to modify existing files. Never proactively create documentation files (*.md) or README files unless explicitly requested.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "File path to write"
				},
				"content": {
					"type": "string",
					"description": "Content to write to the file"
				}
			},
			"required": ["file_path", "content"]
		}`),
		r.writeTool,
	)

	r.register("Edit",
		`Edit a file by replacing an exact string match. old_string must appear exactly once in the file. When editing text from Read tool output, preserve exact indentation. If the edit fails because old_string is not unique, include more surrounding context to make it unique.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "File path to edit"
				},
				"old_string": {
					"type": "string",
					"description": "Exact string to find (must appear exactly once)"
				},
				"new_string": {
					"type": "string",
					"description": "Replacement string"
				}
			},
			"required": ["file_path", "old_string", "new_string"]
		}`),
		r.editTool,
	)

	r.register("Bash",
		`Execute a shell command in the working directory. Use for terminal operations like git, builds, tests, and other system commands. Do not use Bash for file operations (reading, writing, editing, searching) — use the dedicated tools instead.

Destructive commands (rm, rmdir, del, rd, mv, unlink) pause the turn for confirmation before they run. Default timeout: 30s, max: 120s.

Git safety: never force-push, reset --hard, use --no-verify, or amend unless explicitly asked. Never use interactive flags (-i). Prefer staging specific files over "git add -A".`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {
					"type": "string",
					"description": "Shell command to execute"
				},
				"timeout": {
					"type": "integer",
					"description": "Timeout in seconds (default: 30, max: 120)"
				}
			},
			"required": ["command"]
		}`),
		r.bashTool,
	)
}
