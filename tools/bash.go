package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

const (
	defaultTimeout = 30
	maxTimeout     = 120
)

// bashTool executes command through the platform shell and captures stdout
// and stderr separately. Destructive-command confirmation is a Tool Executor
// concern, not this tool's — by the time Execute reaches here it has already
// been confirmed (or didn't need to be).
func (r *Registry) bashTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[bashInput](input)
	if err != nil {
		return "", err
	}
	if params.Command == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", params.Command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", params.Command)
	}
	cmd.Dir = r.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Command timed out after %ds.", timeout), nil
	}
	if _, isExitErr := runErr.(*exec.ExitError); runErr != nil && !isExitErr {
		return fmt.Sprintf("Error executing command: %v", runErr), nil
	}

	out := stdout.String()
	errOut := stderr.String()

	switch {
	case errOut != "" && out != "":
		return errOut + "\n" + out, nil
	case errOut != "":
		return errOut, nil
	default:
		return out, nil
	}
}
