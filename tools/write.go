package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type writeInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// writeTool overwrites a file with the given content, creating parent
// directories if needed. Confirmation is a Tool Executor concern for
// destructive Bash commands only; Write executes directly.
func (r *Registry) writeTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[writeInput](input)
	if err != nil {
		return "", err
	}
	if params.FilePath == "" {
		return "", fmt.Errorf("file_path is required")
	}

	absPath, err := ValidatePath(r.workDir, params.FilePath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	if err := AtomicWrite(absPath, []byte(params.Content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return "OK", nil
}
