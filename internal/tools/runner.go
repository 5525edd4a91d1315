package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on the output pipes after the
// process has been killed by context cancellation.
const waitDelay = 5 * time.Second

// RunResult contains the captured output of a finished process
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Run executes binary with args and captures stdout and stderr separately.
// Both pipes are drained concurrently so a chatty stderr cannot block the
// child. When ctx ends first the process is killed and the partial result
// is returned together with ctx.Err().
func Run(ctx context.Context, binary string, args ...string) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	// Bound pipe draining after the process is killed
	cmd.WaitDelay = waitDelay

	// Separate pipes so stderr can be reported on failure
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	// Launch nmap
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	// Drain both streams at once; nmap can fill either pipe
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutDone := make(chan error, 1)
	stderrDone := make(chan error, 1)

	go func() {
		_, err := io.Copy(&stdoutBuf, stdoutPipe)
		stdoutDone <- err
	}()
	go func() {
		_, err := io.Copy(&stderrBuf, stderrPipe)
		stderrDone <- err
	}()

	// Readers finish when the child closes its end
	<-stdoutDone
	<-stderrDone

	// Reap the process and collect the exit status
	err = cmd.Wait()

	result := &RunResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err != nil {
		// A cancelled or expired context wins over the exit code
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("%s exited with code %d: %w", binary, result.ExitCode, err)
	}

	return result, nil
}
