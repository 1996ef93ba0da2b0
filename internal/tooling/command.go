package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ShellTool runs a shell command inside the workspace root.
type ShellTool struct {
	guard   pathGuard
	timeout time.Duration
}

func (*ShellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "run_command",
			Description: "Execute a shell command in the workspace directory and return its combined output and exit code.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The shell command to run.",
					},
					"timeout_seconds": map[string]any{
						"type":        "integer",
						"description": "Optional timeout in seconds, capped at the configured maximum.",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

func (t *ShellTool) Call(ctx context.Context, args map[string]any) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", errors.New("command is required")
	}

	limit := t.timeout
	if requested := intArg(args, "timeout_seconds", 0); requested > 0 {
		if asked := time.Duration(requested) * time.Second; asked < limit {
			limit = asked
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.guard.root
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()

	exitCode := 0
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			return "", runErr
		}
	}

	output := buf.String()
	const maxOutput = 48 * 1024
	truncated := false
	if len(output) > maxOutput {
		output = output[:maxOutput]
		truncated = true
	}

	payload := map[string]any{
		"output":    output,
		"exit_code": exitCode,
		"timed_out": timedOut,
		"truncated": truncated,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
