package sandbox

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies the overall outcome of an execution.
type Status string

// Execution outcomes
const (
	StatusSuccess             Status = "success"
	StatusUnsupportedLanguage Status = "unsupported_language"
	StatusStageFailed         Status = "stage_failed"
	StatusSpawnFailed         Status = "spawn_failed"
	StatusStepFailed          Status = "step_failed"
	StatusTimedOut            Status = "timed_out"
)

// ExitKind classifies how the last process of an execution ended.
type ExitKind string

// Exit classifications
const (
	ExitNormal     ExitKind = "exited"
	ExitTimeout    ExitKind = "timed_out"
	ExitSignaled   ExitKind = "signaled"
	ExitSpawnError ExitKind = "spawn_error"
)

// MessageExecutionFailed is all a client learns about infrastructure failures.
const MessageExecutionFailed = "Execution failed"

// ExecutionResult represents the result of code execution
type ExecutionResult struct {
	ID       string
	Language string
	Success  bool
	Status   Status
	Exit     ExitKind
	ExitCode int
	Signal   string
	// Stdout is the output of the capturing steps.
	Stdout string
	// Stderr is the error output of the capturing steps, or of the failed step.
	Stderr string
	// Diagnostics is the output of non-capturing steps such as compilers.
	Diagnostics string
	// Message is the client facing summary of a failure.
	Message    string
	FailedStep string
	Truncated  bool
	Duration   time.Duration
}

// Response is the wire shape returned to clients.
type Response struct {
	ExecutionID   string `json:"executionId,omitempty"`
	Success       bool   `json:"success"`
	Status        Status `json:"status"`
	Output        string `json:"output"`
	Error         string `json:"error"`
	Stderr        string `json:"stderr,omitempty"`
	ExitCode      int    `json:"exitCode"`
	ExecutionTime int64  `json:"executionTime"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// Response converts the result into its wire shape. On success the error
// field carries diagnostics followed by program stderr, never mixed into the
// program output.
func (r ExecutionResult) Response() Response {
	resp := Response{
		ExecutionID:   r.ID,
		Success:       r.Success,
		Status:        r.Status,
		Output:        r.Stdout,
		ExitCode:      r.ExitCode,
		ExecutionTime: r.Duration.Milliseconds(),
		Truncated:     r.Truncated,
	}

	if r.Success {
		resp.Error = joinOutput(r.Diagnostics, r.Stderr)
		return resp
	}

	resp.Error = r.Message
	resp.Stderr = joinOutput(r.Diagnostics, r.Stderr)
	return resp
}

type stepOutcome struct {
	step   Step
	result CommandResult
}

// outcome is what the engine observed for one request.
type outcome struct {
	id        string
	language  string
	steps     []stepOutcome
	stageErr  error
	spawnErr  error
	spawnStep string
	timeout   time.Duration
	duration  time.Duration
}

// assemble normalizes an outcome into exactly one status and exit kind.
func assemble(o outcome) ExecutionResult {
	res := ExecutionResult{
		ID:       o.id,
		Language: o.language,
		Duration: o.duration,
		Exit:     ExitNormal,
	}

	for _, s := range o.steps {
		res.Truncated = res.Truncated || s.result.Truncated
	}

	switch {
	case o.stageErr != nil:
		res.Status = StatusStageFailed
		res.Exit = ExitSpawnError
		res.ExitCode = -1
		res.Message = MessageExecutionFailed
		res.Diagnostics, res.Stdout, res.Stderr = collect(o.steps, -1)

	case o.spawnErr != nil:
		res.Status = StatusSpawnFailed
		res.Exit = ExitSpawnError
		res.ExitCode = -1
		res.FailedStep = o.spawnStep
		res.Message = MessageExecutionFailed
		res.Diagnostics, res.Stdout, res.Stderr = collect(o.steps, -1)

	case len(o.steps) == 0:
		// Recipes always have steps; reaching this means nothing ran.
		res.Status = StatusStageFailed
		res.Exit = ExitSpawnError
		res.ExitCode = -1
		res.Message = MessageExecutionFailed

	default:
		last := o.steps[len(o.steps)-1]
		res.Exit = last.result.Exit
		res.ExitCode = last.result.ExitCode
		res.Signal = last.result.Signal

		switch {
		case last.result.Exit == ExitTimeout:
			res.Status = StatusTimedOut
			res.FailedStep = last.step.Name
			res.Message = fmt.Sprintf("Execution timed out after %s", o.timeout)
			res.Diagnostics, res.Stdout, res.Stderr = collect(o.steps, -1)

		case last.result.Failed() && !last.step.ContinueOnFailure:
			failed := len(o.steps) - 1
			res.Status = StatusStepFailed
			res.FailedStep = last.step.Name
			res.Diagnostics, res.Stdout, _ = collect(o.steps, failed)
			res.Stderr = failureText(last)
			res.Message = res.Stderr

		default:
			res.Status = StatusSuccess
			res.Success = true
			res.Diagnostics, res.Stdout, res.Stderr = collect(o.steps, -1)
		}
	}

	return res
}

// collect splits step output into diagnostics, program stdout and program
// stderr. The step at index skip contributes program stdout only.
func collect(steps []stepOutcome, skip int) (diagnostics, stdout, stderr string) {
	var diag, out, errOut strings.Builder
	for i, s := range steps {
		switch {
		case i == skip:
			if s.step.Capture {
				out.WriteString(s.result.Stdout)
			}
		case s.step.Capture:
			out.WriteString(s.result.Stdout)
			errOut.WriteString(s.result.Stderr)
		default:
			diag.WriteString(joinOutput(s.result.Stdout, s.result.Stderr))
		}
	}
	return diag.String(), out.String(), errOut.String()
}

// failureText is what a failed step said about its failure.
func failureText(s stepOutcome) string {
	r := s.result
	switch {
	case r.Stderr != "":
		return r.Stderr
	case r.Stdout != "" && !s.step.Capture:
		// Some toolchains print diagnostics on stdout.
		return r.Stdout
	case r.Exit == ExitSignaled:
		return fmt.Sprintf("Process terminated by signal: %s", r.Signal)
	default:
		return fmt.Sprintf("Process exited with code %d", r.ExitCode)
	}
}

func joinOutput(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case strings.HasSuffix(a, "\n"):
		return a + b
	default:
		return a + "\n" + b
	}
}
