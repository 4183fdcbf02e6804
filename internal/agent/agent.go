// Package agent runs the external coding agent for a single task and
// reconstructs its self-reported outcome from the output stream.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// Result statuses the agent may self-report.
const (
	StatusDone    = "done"
	StatusBlocked = "blocked"
)

// Result is the agent's self-report, parsed from the last well-formed
// JSON object on its output stream. It is weak evidence: the
// hallucination validator downstream corroborates it against the
// repository state.
type Result struct {
	Status       string   `json:"status"`
	Summary      string   `json:"summary"`
	Notes        string   `json:"notes"`
	Files        []string `json:"files"`
	Tests        string   `json:"tests"`
	CompletedACs []string `json:"completed_acs"`
}

// DefaultResult is the permissive fallback used when the agent exits
// cleanly without a parseable result object.
func DefaultResult() Result {
	return Result{Status: StatusDone}
}

// Options control a single execution.
type Options struct {
	// Timeout is the hard per-execution limit. Zero means no limit
	// beyond context cancellation.
	Timeout time.Duration

	// OnACComplete is invoked for every acceptance-criterion completion
	// marker seen mid-stream, so checkbox state reflects real progress
	// even if the process later times out. May be nil.
	OnACComplete func(ref task.CriterionRef)

	// OnProgress is invoked for observed tool-use activity. Purely
	// observational. May be nil.
	OnProgress func(activity string)
}

// Executor runs the external agent. The subprocess implementation is
// ClaudeExecutor; tests substitute deterministic fakes.
type Executor interface {
	Execute(ctx context.Context, t task.Task, prompt string, opts Options) (Result, error)
}

// ExecutionError reports a subprocess that exited non-zero or was
// terminated by a signal. Output carries a bounded summary of the
// process's stderr/stdout tail.
type ExecutionError struct {
	TaskID string
	Output string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("agent execution failed for task %s: %v: %s", e.TaskID, e.Err, e.Output)
	}
	return fmt.Sprintf("agent execution failed for task %s: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ContractError reports a missing or malformed terminal result object.
// It is never fatal: callers degrade to DefaultResult and let the
// validator decide.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("agent result contract violated: %s", e.Reason)
}

// QuotaError reports a usage or rate limit signalled by the agent.
// Retrying is pointless until the limit resets externally, so the
// orchestrator halts immediately on it.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("agent hit a usage limit: %s", e.Message)
}
