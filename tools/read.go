package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

type readInput struct {
	FilePath string `json:"file_path"`
}

// readTool returns the full contents of a file as text.
func (r *Registry) readTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[readInput](input)
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

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}

	if len(content) == 0 {
		return "File is empty.", nil
	}

	return string(content), nil
}
