package gate

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// RunResult carries the captured output of one command execution.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined for storage on the log row.
func (r RunResult) Combined() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(r.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// Runner executes an opaque shell command.
type Runner interface {
	Execute(ctx context.Context, command string) (RunResult, error)
}

// ShellRunner runs commands through /bin/sh with a bounded timeout.
type ShellRunner struct {
	timeout time.Duration
}

// NewShellRunner constructs a ShellRunner.
func NewShellRunner(timeout time.Duration) *ShellRunner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ShellRunner{timeout: timeout}
}

// Execute runs the command. A non-zero exit is reported through ExitCode with
// a nil error; the error return is reserved for start failures and timeouts.
func (r *ShellRunner) Execute(ctx context.Context, command string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, err
	}
	return result, nil
}
