package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultCommandTimeout = 5 * time.Minute
	stderrTailBytes       = 2048
)

type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an external media tool. Implementations must honour ctx
// cancellation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Output, error)
}

type ExitError struct {
	Command string
	Args    []string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type ExecRunner struct {
	timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &ExecRunner{timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	slog.Debug("Running command", "command", name, "args", strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	output := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err())
		}
		return output, &ExitError{
			Command: name,
			Args:    args,
			Stderr:  tail(stderr.String(), stderrTailBytes),
			Err:     err,
		}
	}
	slog.Debug("Command finished", "command", name, "elapsed", time.Since(start).Round(time.Millisecond))

	return output, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
