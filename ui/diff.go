package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const defaultDiffWidth = 100

// diffWidth returns the terminal width to wrap diff lines at, probed from
// the real terminal size when stdout is a TTY and falling back to
// defaultDiffWidth otherwise (piped output, redirected files, no TTY).
func diffWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultDiffWidth
	}
	return w
}

// clipLine truncates a diff line to fit the terminal width, accounting for
// the marker/gutter prefix already applied by the caller.
func clipLine(line string, prefixLen int) string {
	max := diffWidth() - prefixLen
	if max <= 0 || len(line) <= max {
		return line
	}
	return line[:max-1] + "…"
}

// PrintDiff prints a colorized unified diff.
func (t *Terminal) PrintDiff(path, oldContent, newContent string) {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	fmt.Println(t.c(Bold, fmt.Sprintf("--- %s", path)))
	fmt.Println(t.c(Bold, fmt.Sprintf("+++ %s", path)))

	// Simple line-by-line diff — find changed region
	// For the edit tool, we know the change is localized, so a simple approach works.
	maxLen := len(oldLines)
	if len(newLines) > maxLen {
		maxLen = len(newLines)
	}

	// Find first differing line
	start := 0
	for start < len(oldLines) && start < len(newLines) && oldLines[start] == newLines[start] {
		start++
	}

	// Find last differing line (from end)
	endOld := len(oldLines) - 1
	endNew := len(newLines) - 1
	for endOld > start && endNew > start && oldLines[endOld] == newLines[endNew] {
		endOld--
		endNew--
	}

	// Print context before
	contextLines := 3
	from := start - contextLines
	if from < 0 {
		from = 0
	}

	fmt.Println(t.c(Cyan, fmt.Sprintf("@@ -%d,%d +%d,%d @@", from+1, endOld-from+1, from+1, endNew-from+1)))

	for i := from; i < start; i++ {
		fmt.Println(t.c(Gray, " "+clipLine(oldLines[i], 1)))
	}

	// Print removed lines
	for i := start; i <= endOld && i < len(oldLines); i++ {
		fmt.Println(t.c(Red, "-"+clipLine(oldLines[i], 1)))
	}

	// Print added lines
	for i := start; i <= endNew && i < len(newLines); i++ {
		fmt.Println(t.c(Green, "+"+clipLine(newLines[i], 1)))
	}

	// Print context after
	to := endOld + contextLines + 1
	if to > len(oldLines) {
		to = len(oldLines)
	}
	for i := endOld + 1; i < to; i++ {
		fmt.Println(t.c(Gray, " "+clipLine(oldLines[i], 1)))
	}
}

// PrintFilePreview prints a preview of file contents for the write tool.
func (t *Terminal) PrintFilePreview(path, content string) {
	fmt.Println(t.c(BoldGreen, fmt.Sprintf("New file: %s", path)))
	lines := strings.Split(content, "\n")
	gutterLen := len(fmt.Sprintf("  %3d │ ", len(lines)))
	for i, line := range lines {
		fmt.Println(t.c(Gray, fmt.Sprintf("  %3d │ ", i+1)) + t.c(Green, clipLine(line, gutterLen)))
	}
}

// ConfirmAction asks the user for y/n confirmation.
func (t *Terminal) ConfirmAction(prompt string) bool {
	fmt.Print(t.c(BoldYellow, prompt+" [y/n] "))
	var response string
	fmt.Scanln(&response)
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
