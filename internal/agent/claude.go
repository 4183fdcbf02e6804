package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// tailLines bounds how much output is retained for result parsing and
// error summaries. The result contract lives at the end of the stream,
// so only the tail matters.
const tailLines = 400

// errSummaryLimit bounds the output excerpt carried by ExecutionError.
const errSummaryLimit = 2000

// ClaudeExecutor runs tasks through the Claude Code CLI subprocess.
type ClaudeExecutor struct {
	command   string
	extraArgs []string
	workdir   string
	logger    *zap.Logger
}

// NewClaudeExecutor creates an executor invoking command in workdir.
func NewClaudeExecutor(command string, extraArgs []string, workdir string, logger *zap.Logger) *ClaudeExecutor {
	return &ClaudeExecutor{
		command:   command,
		extraArgs: extraArgs,
		workdir:   workdir,
		logger:    logger,
	}
}

// IsAvailable checks if the agent command exists in PATH.
func (e *ClaudeExecutor) IsAvailable() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

// Execute runs the agent once for the task. The context carries the
// watchdog's abort signal; opts.Timeout adds the hard execution limit.
// Mid-stream AC markers fire opts.OnACComplete as they arrive.
func (e *ClaudeExecutor) Execute(ctx context.Context, t task.Task, prompt string, opts Options) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if t.Model != "" {
		args = append(args, "--model", t.Model)
	}
	args = append(args, e.extraArgs...)

	cmd := CommandContext(ctx, e.command, args...)
	if e.workdir != "" {
		cmd.Dir = e.workdir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start agent: %w", err)
	}

	scan := &scanner{onACComplete: opts.OnACComplete, onProgress: opts.OnProgress}
	outTail := newTailBuffer(tailLines)
	errTail := newTailBuffer(tailLines)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdout, func(line string) {
			scan.Line(line)
			outTail.Add(line)
		})
	}()
	go func() {
		defer wg.Done()
		readLines(stderr, func(line string) {
			errTail.Add(line)
		})
	}()

	// Wait closes the pipes, so the readers must drain them first.
	wg.Wait()
	waitErr := cmd.Wait()

	stdoutTail := outTail.String()
	stderrTail := errTail.String()

	if IsQuotaSignal(stderrTail) || IsQuotaSignal(stdoutTail) {
		return Result{}, &QuotaError{Message: firstQuotaLine(stderrTail, stdoutTail)}
	}

	if waitErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, &ExecutionError{TaskID: t.ID, Output: truncate(stderrTail, errSummaryLimit), Err: fmt.Errorf("execution timed out")}
		}
		if ctx.Err() == context.Canceled {
			return Result{}, &ExecutionError{TaskID: t.ID, Output: truncate(stderrTail, errSummaryLimit), Err: fmt.Errorf("execution aborted")}
		}
		summary := stderrTail
		if strings.TrimSpace(summary) == "" {
			summary = stdoutTail
		}
		return Result{}, &ExecutionError{TaskID: t.ID, Output: truncate(summary, errSummaryLimit), Err: waitErr}
	}

	res, parseErr := ParseResult(stdoutTail)
	if parseErr != nil {
		var contractErr *ContractError
		if errors.As(parseErr, &contractErr) {
			// Degrade gracefully: the hallucination gate downstream is
			// the real safety net.
			e.logger.Warn("agent result contract violated, using permissive default",
				zap.String("task", t.ID), zap.String("reason", contractErr.Reason))
			return DefaultResult(), nil
		}
		return Result{}, parseErr
	}
	if IsQuotaSignal(res.Notes) || IsQuotaSignal(res.Summary) {
		return Result{}, &QuotaError{Message: truncate(res.Notes+" "+res.Summary, errSummaryLimit)}
	}
	return res, nil
}

// readLines scans r line by line with a buffer sized for long
// stream-json lines.
func readLines(r io.Reader, fn func(line string)) {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// firstQuotaLine returns the first line carrying a quota signature, for
// the halt log message.
func firstQuotaLine(streams ...string) string {
	for _, stream := range streams {
		for _, line := range strings.Split(stream, "\n") {
			if IsQuotaSignal(line) {
				return truncate(line, 200)
			}
		}
	}
	return "usage limit reported"
}
