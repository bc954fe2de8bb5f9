package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type listDirInput struct {
	Path     string `json:"path"`
	MaxDepth int    `json:"max_depth"`
}

// listDirTool lists directory entries, directories first (with a trailing
// slash) then files, each group sorted by name. max_depth > 1 recurses,
// rendering nested entries indented under their parent.
func (r *Registry) listDirTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[listDirInput](input)
	if err != nil {
		return "", err
	}

	dir := r.workDir
	if params.Path != "" {
		dir, err = ValidatePath(r.workDir, params.Path)
		if err != nil {
			return "", err
		}
	}

	maxDepth := params.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}

	var out strings.Builder
	empty := true
	if err := listDirLevel(dir, 0, maxDepth, &out, &empty); err != nil {
		return "", err
	}

	if empty {
		return "Directory is empty.", nil
	}

	return out.String(), nil
}

func listDirLevel(dir string, depth, maxDepth int, out *strings.Builder, empty *bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var dirs, files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			if shouldSkipDir(e.Name()) {
				continue
			}
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	indent := strings.Repeat("  ", depth)

	for _, d := range dirs {
		*empty = false
		out.WriteString(fmt.Sprintf("%s%s/\n", indent, d.Name()))
		if depth+1 < maxDepth {
			if err := listDirLevel(filepath.Join(dir, d.Name()), depth+1, maxDepth, out, empty); err != nil {
				continue
			}
		}
	}

	for _, f := range files {
		*empty = false
		info, err := f.Info()
		size := ""
		if err == nil {
			size = formatSize(info.Size())
		}
		out.WriteString(fmt.Sprintf("%s%-40s %s\n", indent, f.Name(), size))
	}

	return nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
