// Package orchestrator is the reconciliation loop: it picks the next
// task from the store, delegates it to the agent under watchdog
// supervision, gates the self-reported result through the hallucination
// validator, and reconciles acceptance criteria back into the store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/agent"
	"github.com/oviniciusramosp/claude-pm/internal/git"
	"github.com/oviniciusramosp/claude-pm/internal/history"
	"github.com/oviniciusramosp/claude-pm/internal/task"
	"github.com/oviniciusramosp/claude-pm/internal/watchdog"
)

// Mode selects which reconciliation flavor a schedule request wants.
// Epic mode is forced regardless whenever an unfinished epic exists.
type Mode string

const (
	ModeTask Mode = "task"
	ModeEpic Mode = "epic"
)

// State is a snapshot of the orchestrator's control flags. Halted and
// Paused are orthogonal: halting is a safety fault that requires an
// explicit Resume, pausing is a deliberate operator no-op.
type State struct {
	Running        bool     `json:"running"`
	Paused         bool     `json:"paused"`
	Halted         bool     `json:"halted"`
	PendingReasons []string `json:"pending_reasons"`
	PendingMode    Mode     `json:"pending_mode,omitempty"`
	CurrentTaskID  string   `json:"current_task_id,omitempty"`
}

// ValidationError reports a hallucination: the agent said "done" but the
// validator found no evidence of work, even after the corrective retry.
type ValidationError struct {
	TaskID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for task %s: %s", e.TaskID, e.Reason)
}

// ReviewError reports a failed epic review. The epic close is blocked,
// not silently retried.
type ReviewError struct {
	EpicID string
	Reason string
}

func (e *ReviewError) Error() string {
	return fmt.Sprintf("review failed for epic %s: %s", e.EpicID, e.Reason)
}

// Metrics receives orchestrator counters. The server package provides
// the prometheus implementation; tests run with the no-op.
type Metrics interface {
	ObserveExecution(result string, seconds float64)
	IncValidationRetry()
	IncHalt()
}

type nopMetrics struct{}

func (nopMetrics) ObserveExecution(string, float64) {}
func (nopMetrics) IncValidationRetry()              {}
func (nopMetrics) IncHalt()                         {}

// Options configure an Orchestrator.
type Options struct {
	Store            task.Store
	Executor         agent.Executor
	Watchdog         *watchdog.Watchdog
	History          *history.Log
	Logger           *zap.Logger
	Metrics          Metrics // optional
	Workdir          string
	Policy           Policy
	Debounce         time.Duration
	ExecutionTimeout time.Duration
	ReviewEnabled    bool
	ReviewTimeout    time.Duration
	ResetOnFailure   bool
}

// Orchestrator is the scheduling state machine. All mutable control
// state lives behind its mutex; instances are independent, so tests can
// run several side by side.
type Orchestrator struct {
	store    task.Store
	executor agent.Executor
	dog      *watchdog.Watchdog
	hist     *history.Log
	logger   *zap.Logger
	metrics  Metrics

	workdir          string
	policy           Policy
	debounceWindow   time.Duration
	executionTimeout time.Duration
	reviewEnabled    bool
	reviewTimeout    time.Duration
	resetOnFailure   bool

	ctx context.Context

	mu             sync.Mutex
	running        bool
	paused         bool
	halted         bool
	pending        bool
	pendingReasons []string
	pendingMode    Mode
	currentTaskID  string
	debounce       *time.Timer
	idle           chan struct{} // closed when a runQueued drain finishes
}

// New creates an orchestrator. Call Start before scheduling.
func New(opts Options) *Orchestrator {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Orchestrator{
		store:            opts.Store,
		executor:         opts.Executor,
		dog:              opts.Watchdog,
		hist:             opts.History,
		logger:           opts.Logger,
		metrics:          metrics,
		workdir:          opts.Workdir,
		policy:           opts.Policy,
		debounceWindow:   opts.Debounce,
		executionTimeout: opts.ExecutionTimeout,
		reviewEnabled:    opts.ReviewEnabled,
		reviewTimeout:    opts.ReviewTimeout,
		resetOnFailure:   opts.ResetOnFailure,
		ctx:              context.Background(),
	}
}

// Start binds the orchestrator to a lifetime context. Executions started
// by later schedules are cancelled when ctx is.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
}

// Schedule requests a reconciliation pass. Requests are dropped while
// halted or paused. A burst of requests collapses into one pass: the
// debounce timer batches the first run, and requests arriving while a
// pass is running set a pending flag that triggers exactly one more pass
// afterwards.
func (o *Orchestrator) Schedule(reason string, mode Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.halted {
		o.logger.Debug("schedule dropped: halted", zap.String("reason", reason))
		return
	}
	if o.paused {
		o.logger.Debug("schedule dropped: paused", zap.String("reason", reason))
		return
	}

	o.pendingReasons = append(o.pendingReasons, reason)
	if mode == ModeEpic {
		o.pendingMode = ModeEpic
	} else if o.pendingMode == "" {
		o.pendingMode = ModeTask
	}

	if o.running {
		o.pending = true
		return
	}

	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounce = time.AfterFunc(o.debounceWindow, o.runQueued)
}

// Pause makes the orchestrator silently drop schedule requests until
// Unpause. It does not touch the halted flag.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	o.logger.Info("orchestrator paused")
}

// Unpause re-enables scheduling. Requests dropped while paused are not
// replayed.
func (o *Orchestrator) Unpause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	o.logger.Info("orchestrator unpaused")
}

// Resume clears the halted flag. It is the only way out of a halt.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.halted = false
	o.logger.Info("orchestrator resumed")
}

// Snapshot returns the current control state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Running:        o.running,
		Paused:         o.paused,
		Halted:         o.halted,
		PendingReasons: append([]string(nil), o.pendingReasons...),
		PendingMode:    o.pendingMode,
		CurrentTaskID:  o.currentTaskID,
	}
}

// WaitIdle blocks until the in-flight drain (if any) finishes. Test and
// shutdown helper.
func (o *Orchestrator) WaitIdle() {
	o.mu.Lock()
	ch := o.idle
	o.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// RunOnce performs a single reconciliation pass synchronously, bypassing
// the debounce. The CLI's run command uses it; the daemon path goes
// through Schedule.
func (o *Orchestrator) RunOnce(ctx context.Context, mode Mode) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("a reconciliation pass is already running")
	}
	if o.halted {
		o.mu.Unlock()
		return errors.New("orchestrator is halted; resume first")
	}
	o.running = true
	o.idle = make(chan struct{})
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		close(o.idle)
		o.mu.Unlock()
	}()

	return o.reconcile(ctx, mode)
}

// halt stops all future scheduling until an explicit Resume.
func (o *Orchestrator) halt(reason string) {
	o.mu.Lock()
	o.halted = true
	o.mu.Unlock()
	o.metrics.IncHalt()
	o.logger.Error("orchestrator halted", zap.String("reason", reason))
}

// runQueued drains collapsed schedule requests: it loops reconcile while
// the pending flag is set after each pass, so a burst of triggers yields
// exactly one extra pass, and only one pass is ever in flight.
func (o *Orchestrator) runQueued() {
	o.mu.Lock()
	if o.running || o.halted || o.paused {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.idle = make(chan struct{})
	o.mu.Unlock()

	for {
		o.mu.Lock()
		reasons := o.pendingReasons
		mode := o.pendingMode
		o.pendingReasons = nil
		o.pendingMode = ""
		o.pending = false
		o.mu.Unlock()

		o.logger.Info("reconciliation pass starting",
			zap.Strings("reasons", reasons), zap.String("mode", string(mode)))

		if err := o.reconcile(o.ctx, mode); err != nil {
			o.logger.Error("reconciliation pass aborted", zap.Error(err))
		}

		// The stopped transition and the final pending check share one
		// critical section. A concurrent Schedule either still sees
		// running and is drained by the next loop turn, or sees stopped
		// and arms its own debounce timer; no request falls between.
		o.mu.Lock()
		if o.pending && !o.halted && !o.paused {
			o.mu.Unlock()
			continue
		}
		o.running = false
		close(o.idle)
		o.mu.Unlock()
		return
	}
}

// reconcile runs one pass: select and execute eligible tasks until no
// candidate remains or a stop condition fires. Store errors abort the
// pass and propagate.
func (o *Orchestrator) reconcile(ctx context.Context, mode Mode) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if o.Snapshot().Halted {
			return nil
		}

		tasks, err := o.store.ListTasks()
		if err != nil {
			return fmt.Errorf("store error: %w", err)
		}

		// Epic maintenance first: closing a finished epic may unblock
		// the next one, and a Done child with unchecked criteria gets
		// reset before selection sees it.
		if err := o.closeCompletedEpics(ctx, tasks); err != nil {
			return err
		}
		tasks, err = o.store.ListTasks()
		if err != nil {
			return fmt.Errorf("store error: %w", err)
		}

		var pick Pick
		var ok bool
		if mode == ModeEpic || HasIncompleteEpic(tasks) {
			pick, ok, err = o.nextEpicChild(tasks)
			if err != nil {
				return err
			}
		} else {
			pick, ok = PickNextLeaf(tasks, o.policy)
		}
		if !ok {
			o.logger.Info("no candidate task, pass complete")
			return nil
		}

		cont, err := o.executeOne(ctx, pick)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// executeOne runs a single picked task end to end. It returns whether
// the reconcile loop should continue to the next candidate.
func (o *Orchestrator) executeOne(ctx context.Context, pick Pick) (bool, error) {
	t := pick.Task

	o.mu.Lock()
	o.currentTaskID = t.ID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.currentTaskID = ""
		o.mu.Unlock()
	}()

	switch pick.Source {
	case SourceNotStarted:
		if err := o.store.UpdateStatus(t.ID, task.StatusInProgress); err != nil {
			return false, fmt.Errorf("store error: %w", err)
		}
		if err := o.hist.Started(t.ID, "selected"); err != nil {
			o.logger.Warn("failed to record run start", zap.Error(err))
		}
	case SourceInProgress:
		// Idempotent resume: an InProgress task whose done record exists
		// lost only the final status write; finish the transition
		// instead of re-running the agent.
		done, err := o.hist.HasDone(t.ID)
		if err != nil {
			o.logger.Warn("failed to read run history", zap.Error(err))
		}
		if done {
			o.logger.Info("finishing interrupted completion", zap.String("task", t.ID))
			if err := o.store.UpdateStatus(t.ID, task.StatusDone); err != nil {
				return false, fmt.Errorf("store error: %w", err)
			}
			return true, nil
		}
		if err := o.hist.Started(t.ID, "resumed"); err != nil {
			o.logger.Warn("failed to record run start", zap.Error(err))
		}
	}

	body, err := o.store.GetBody(t.ID)
	if err != nil {
		return false, fmt.Errorf("store error: %w", err)
	}
	prompt := agent.BuildPrompt(t, body)

	o.logger.Info("executing task", zap.String("task", t.ID), zap.String("source", string(pick.Source)))
	start := time.Now()
	result, err := o.runValidated(ctx, t, prompt)
	elapsed := time.Since(start)

	if err != nil {
		return o.handleFailure(t, err, elapsed)
	}

	o.metrics.ObserveExecution("success", elapsed.Seconds())

	// Reconcile the final contract's AC claims; mid-stream markers have
	// already been applied as they arrived.
	if len(result.CompletedACs) > 0 {
		if err := o.store.UpdateCheckboxesByText(t.ID, result.CompletedACs); err != nil {
			return false, fmt.Errorf("store error: %w", err)
		}
	}

	body, err = o.store.GetBody(t.ID)
	if err != nil {
		return false, fmt.Errorf("store error: %w", err)
	}
	if unchecked := task.UncheckedCriteria(body); len(unchecked) > 0 {
		o.logger.Warn("task reported done with unchecked criteria, keeping in progress",
			zap.String("task", t.ID), zap.Int("unchecked", len(unchecked)))
		note := fmt.Sprintf("\n> Automation: run finished but %d acceptance criteria remain unchecked; task kept in progress.\n", len(unchecked))
		if err := o.store.AppendToBody(t.ID, note); err != nil {
			return false, fmt.Errorf("store error: %w", err)
		}
		return false, nil
	}

	if err := o.store.UpdateStatus(t.ID, task.StatusDone); err != nil {
		return false, fmt.Errorf("store error: %w", err)
	}
	summary := result.Summary
	if summary == "" {
		summary = "(no summary reported)"
	}
	note := fmt.Sprintf("\n## Execution summary (%s)\n%s\n", time.Now().Format(time.RFC3339), summary)
	if result.Tests != "" {
		note += fmt.Sprintf("\nVerified: %s\n", result.Tests)
	}
	if err := o.store.AppendToBody(t.ID, note); err != nil {
		return false, fmt.Errorf("store error: %w", err)
	}
	if err := o.hist.Done(t.ID, summary); err != nil {
		o.logger.Warn("failed to record run completion", zap.Error(err))
	}
	o.dog.RecordSuccess(t.ID)
	o.logger.Info("task done", zap.String("task", t.ID), zap.Duration("elapsed", elapsed))
	return true, nil
}

// runValidated executes the task under the watchdog and gates the
// result through the hallucination validator, retrying exactly once
// with a corrective prompt on an invalid "done".
func (o *Orchestrator) runValidated(ctx context.Context, t task.Task, prompt string) (agent.Result, error) {
	before, err := git.Take(o.workdir)
	if err != nil {
		return agent.Result{}, err
	}

	result, err := o.runUnderWatchdog(ctx, t, prompt)
	if err != nil {
		return agent.Result{}, err
	}
	if result.Status != agent.StatusDone {
		// A blocked self-report is an honest failure, not a suspected
		// hallucination, so it is not a ValidationError.
		return agent.Result{}, fmt.Errorf("task %s: agent reported %q: %s", t.ID, result.Status, result.Notes)
	}

	verdict, err := git.Validate(o.workdir, before, result)
	if err != nil {
		return agent.Result{}, err
	}
	if verdict.Valid {
		return result, nil
	}

	o.metrics.IncValidationRetry()
	o.logger.Warn("hallucination suspected, retrying with corrective prompt",
		zap.String("task", t.ID), zap.String("reason", verdict.Reason))

	corrective := agent.BuildCorrectivePrompt(prompt, verdict.Reason)
	result, err = o.runUnderWatchdog(ctx, t, corrective)
	if err != nil {
		return agent.Result{}, err
	}
	if result.Status != agent.StatusDone {
		return agent.Result{}, fmt.Errorf("task %s: agent reported %q on retry: %s", t.ID, result.Status, result.Notes)
	}
	verdict, err = git.Validate(o.workdir, before, result)
	if err != nil {
		return agent.Result{}, err
	}
	if !verdict.Valid {
		return agent.Result{}, &ValidationError{TaskID: t.ID, Reason: verdict.Reason}
	}
	return result, nil
}

// runUnderWatchdog runs one agent execution with the staleness timer
// armed. The watchdog's abort cancels the execution context; mid-stream
// AC markers mutate checkbox state as they arrive.
func (o *Orchestrator) runUnderWatchdog(ctx context.Context, t task.Task, prompt string) (agent.Result, error) {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := o.dog.Watch(t.ID, cancel)
	defer stop()

	return o.executor.Execute(execCtx, t, prompt, agent.Options{
		Timeout: o.executionTimeout,
		OnACComplete: func(ref task.CriterionRef) {
			o.applyCriterionRef(t.ID, ref)
		},
		OnProgress: func(activity string) {
			o.logger.Debug("agent activity", zap.String("task", t.ID), zap.String("activity", activity))
		},
	})
}

// applyCriterionRef checks the referenced criterion in the store. Text
// references are resolved by the store against the live body; positional
// references go straight through.
func (o *Orchestrator) applyCriterionRef(taskID string, ref task.CriterionRef) {
	var err error
	if ref.Index > 0 {
		err = o.store.UpdateCheckboxesByIndex(taskID, []int{ref.Index})
	} else {
		err = o.store.UpdateCheckboxesByText(taskID, []string{ref.Text})
	}
	if err != nil {
		o.logger.Warn("failed to check criterion",
			zap.String("task", taskID), zap.String("ref", ref.String()), zap.Error(err))
	} else {
		o.logger.Info("criterion completed",
			zap.String("task", taskID), zap.String("ref", ref.String()))
	}
}

// handleFailure records a failed execution and decides whether the loop
// stops or the whole orchestrator halts. Quota errors halt immediately
// without consuming a failure-ledger slot.
func (o *Orchestrator) handleFailure(t task.Task, execErr error, elapsed time.Duration) (bool, error) {
	var quotaErr *agent.QuotaError
	if errors.As(execErr, &quotaErr) {
		o.metrics.ObserveExecution("quota", elapsed.Seconds())
		o.halt("usage limit: " + quotaErr.Message)
		return false, nil
	}

	o.metrics.ObserveExecution("failure", elapsed.Seconds())
	o.logger.Error("task failed", zap.String("task", t.ID), zap.Error(execErr))

	if err := o.hist.Failed(t.ID, execErr.Error()); err != nil {
		o.logger.Warn("failed to record run failure", zap.Error(err))
	}
	note := fmt.Sprintf("\n> Automation: run failed at %s: %s\n", time.Now().Format(time.RFC3339), execErr.Error())
	if err := o.store.AppendToBody(t.ID, note); err != nil {
		o.logger.Warn("failed to append failure note", zap.Error(err))
	}

	// The task stays visibly InProgress unless reset is configured, so
	// a human can inspect and intervene.
	if o.resetOnFailure {
		if err := o.store.UpdateStatus(t.ID, task.StatusNotStarted); err != nil {
			o.logger.Warn("failed to reset task status", zap.Error(err))
		}
	}

	if o.dog.RecordFailure(t.ID) {
		o.halt(fmt.Sprintf("task %s failed too many times in a row", t.ID))
	}
	return false, nil
}
