package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type grepInput struct {
	Pattern      string `json:"pattern"`
	Path         string `json:"path"`
	Include      string `json:"include"`
	ContextLines int    `json:"context_lines"`
	MaxResults   int    `json:"max_results"`
}

const grepDefaultMaxResults = 50

// grepTool performs an RE2 regex search over files under path (default the
// working directory), pruning ignored directories and skipping binary files.
func (r *Registry) grepTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[grepInput](input)
	if err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex (RE2 syntax): %w", err)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = grepDefaultMaxResults
	}

	searchDir := r.workDir
	if params.Path != "" {
		searchDir, err = ValidatePath(r.workDir, params.Path)
		if err != nil {
			return "", err
		}
	}

	var results []string
	totalMatches := 0

	err = filepath.WalkDir(searchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if params.Include != "" {
			matched, _ := filepath.Match(params.Include, d.Name())
			if !matched {
				return nil
			}
		}

		if isBinaryFile(path) {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		rel, _ := filepath.Rel(r.workDir, path)
		rel = filepath.ToSlash(rel)

		var lines []string
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}

		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			totalMatches++
			if len(results) >= maxResults {
				continue
			}
			if params.ContextLines > 0 {
				start := i - params.ContextLines
				if start < 0 {
					start = 0
				}
				end := i + params.ContextLines
				if end >= len(lines) {
					end = len(lines) - 1
				}
				for j := start; j <= end; j++ {
					marker := "-"
					if j == i {
						marker = ":"
					}
					results = append(results, fmt.Sprintf("%s%s%d%s %s", rel, marker, j+1, marker, truncateLine(lines[j], 200)))
				}
				results = append(results, "--")
			} else {
				results = append(results, fmt.Sprintf("%s:%d: %s", rel, i+1, truncateLine(line, 200)))
			}
		}
		return nil
	})

	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "No matches found.", nil
	}

	var out strings.Builder
	for _, line := range results {
		out.WriteString(line)
		out.WriteByte('\n')
	}

	if totalMatches > maxResults {
		out.WriteString(fmt.Sprintf("\n... and %d more matches", totalMatches-maxResults))
	}

	return out.String(), nil
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return true
	}

	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
