package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type editInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// editTool replaces an exact, single occurrence of old_string with new_string.
// Executes directly; Edit is not a destructive-confirmation candidate.
func (r *Registry) editTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[editInput](input)
	if err != nil {
		return "", err
	}
	if params.FilePath == "" {
		return "", fmt.Errorf("file_path is required")
	}
	if params.OldString == "" {
		return "", fmt.Errorf("old_string is required")
	}

	absPath, err := ValidatePath(r.workDir, params.FilePath)
	if err != nil {
		return "", err
	}

	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(contentBytes)

	count := strings.Count(content, params.OldString)
	if count == 0 {
		return "", fmt.Errorf("no match found for old_string in %s. Check for exact whitespace and indentation", params.FilePath)
	}
	if count > 1 {
		lines := strings.Split(content, "\n")
		firstLine := strings.SplitN(params.OldString, "\n", 2)[0]
		var locations []string
		for i, line := range lines {
			if strings.Contains(line, firstLine) {
				locations = append(locations, fmt.Sprintf("line %d", i+1))
			}
		}
		return "", fmt.Errorf("old_string matches %d times in %s (at %s). Include more surrounding context to make the match unique",
			count, params.FilePath, strings.Join(locations, ", "))
	}

	newContent := strings.Replace(content, params.OldString, params.NewString, 1)

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}

	if err := AtomicWrite(absPath, []byte(newContent), info.Mode()); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Successfully edited %s (%d bytes written)", params.FilePath, len(newContent)), nil
}
