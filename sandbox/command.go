package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultOutputLimit caps each captured stream when no limit is configured.
const DefaultOutputLimit = 1024 * 1024

// Command is one structured process invocation. Program and Args are passed
// to the kernel as-is; no shell is involved.
type Command struct {
	Program string
	Args    []string
	Dir     string
	// Env entries (KEY=VALUE) are appended to the host environment.
	Env []string
	// OutputLimit caps stdout and stderr independently.
	OutputLimit int
}

// CommandResult is the classified outcome of a Command.
type CommandResult struct {
	Stdout    string
	Stderr    string
	Truncated bool
	Exit      ExitKind
	ExitCode  int
	Signal    string
	Duration  time.Duration
}

// Failed reports whether the command did not exit cleanly.
func (r CommandResult) Failed() bool {
	return r.Exit != ExitNormal || r.ExitCode != 0
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	// Run blocks until the command finishes or ctx is done. The returned
	// error is non-nil only when the process could not be started.
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// ProcessRunner implements CommandRunner with os/exec. On unix each command
// runs in its own process group and the whole group is killed when ctx is
// done or the command returns.
type ProcessRunner struct {
	killGrace time.Duration
}

// DefaultKillGrace is used when no positive kill grace is configured.
const DefaultKillGrace = 500 * time.Millisecond

// NewProcessRunner creates a ProcessRunner. killGrace bounds how long output
// pipes are drained after the process is gone. Without it a descendant
// holding stdout open would stall the step until the deadline.
func NewProcessRunner(killGrace time.Duration) *ProcessRunner {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &ProcessRunner{killGrace: killGrace}
}

// Run executes the command with its own process group and bounded capture.
func (p *ProcessRunner) Run(ctx context.Context, c Command) (CommandResult, error) {
	if c.Program == "" {
		return CommandResult{Exit: ExitSpawnError, ExitCode: -1}, errors.New("no command provided")
	}

	// A deadline that expired between steps is a timeout, not a spawn failure.
	if ctx.Err() != nil {
		return CommandResult{Exit: ExitTimeout, ExitCode: -1}, nil
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...) //nolint:gosec // argv comes from the recipe table, never a shell
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = p.killGrace
	setProcessGroup(cmd)

	stdout := newCappedBuffer(c.OutputLimit)
	stderr := newCappedBuffer(c.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{Exit: ExitSpawnError, ExitCode: -1, Stdout: "", Stderr: ""},
			fmt.Errorf("failed to start %s: %w", c.Program, err)
	}

	waitErr := cmd.Wait()
	// Descendants that outlived the leader (background jobs, daemonized
	// helpers) share its group and go down with it.
	killProcessGroup(cmd)

	result := CommandResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	switch {
	case waitErr != nil && ctx.Err() != nil:
		result.Exit = ExitTimeout
		result.ExitCode = -1
	case waitErr == nil, errors.Is(waitErr, exec.ErrWaitDelay):
		result.Exit = ExitNormal
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			result.Exit = ExitSignaled
			result.ExitCode = -1
			result.Signal = waitErr.Error()
			break
		}
		if sig, ok := terminationSignal(exitErr.ProcessState); ok {
			result.Exit = ExitSignaled
			result.ExitCode = -1
			result.Signal = sig
			break
		}
		result.Exit = ExitNormal
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}
