package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/agent"
	"github.com/oviniciusramosp/claude-pm/internal/history"
	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// nextEpicChild selects the next child of the single active epic,
// kicking the epic off first if it has not started yet.
func (o *Orchestrator) nextEpicChild(tasks []task.Task) (Pick, bool, error) {
	epic, ok := FirstOpenEpic(tasks, o.policy)
	if !ok {
		// An epic-mode request with no open epic falls back to
		// standalone tasks.
		pick, ok := PickNextLeaf(tasks, o.policy)
		return pick, ok, nil
	}

	if epic.Status == task.StatusNotStarted {
		if err := o.kickoffEpic(tasks, epic); err != nil {
			return Pick{}, false, err
		}
		tasks2, err := o.store.ListTasks()
		if err != nil {
			return Pick{}, false, fmt.Errorf("store error: %w", err)
		}
		tasks = tasks2
	}

	pick, ok := PickChild(tasks, epic.ID, o.policy)
	return pick, ok, nil
}

// kickoffEpic marks a freshly selected epic InProgress with exactly one
// child stamped InProgress and the rest NotStarted.
func (o *Orchestrator) kickoffEpic(tasks []task.Task, epic task.Task) error {
	o.logger.Info("starting epic", zap.String("epic", epic.ID))

	if err := o.store.UpdateStatus(epic.ID, task.StatusInProgress); err != nil {
		return fmt.Errorf("store error: %w", err)
	}

	children := task.ChildrenOf(tasks, epic.ID)
	sortCandidates(children, o.policy)
	for i, child := range children {
		want := task.StatusNotStarted
		if i == 0 {
			want = task.StatusInProgress
		}
		if child.Status == want || child.Status == task.StatusDone {
			continue
		}
		if err := o.store.UpdateStatus(child.ID, want); err != nil {
			return fmt.Errorf("store error: %w", err)
		}
	}

	if err := o.hist.Started(epic.ID, "epic kickoff"); err != nil {
		o.logger.Warn("failed to record epic start", zap.Error(err))
	}
	return nil
}

// closeCompletedEpics scans all non-Done epics and closes the ones whose
// children are all Done with zero unchecked acceptance criteria. A child
// reported Done but retaining unchecked criteria is reset to InProgress
// (self-healing against partial writes) and the close is skipped this
// pass. When the review stage is enabled, a non-done review blocks the
// close and is logged, not silently retried.
func (o *Orchestrator) closeCompletedEpics(ctx context.Context, tasks []task.Task) error {
	for _, epic := range tasks {
		if !isEpicTask(epic, tasks) || epic.Status == task.StatusDone {
			continue
		}
		children := task.ChildrenOf(tasks, epic.ID)
		if len(children) == 0 {
			continue
		}

		allDone := true
		for _, child := range children {
			if child.Status != task.StatusDone {
				allDone = false
				break
			}
		}
		if !allDone {
			continue
		}

		clean := true
		for _, child := range children {
			body, err := o.store.GetBody(child.ID)
			if err != nil {
				return fmt.Errorf("store error: %w", err)
			}
			if unchecked := task.UncheckedCriteria(body); len(unchecked) > 0 {
				o.logger.Warn("done child has unchecked criteria, reopening",
					zap.String("epic", epic.ID), zap.String("task", child.ID),
					zap.Int("unchecked", len(unchecked)))
				if err := o.store.UpdateStatus(child.ID, task.StatusInProgress); err != nil {
					return fmt.Errorf("store error: %w", err)
				}
				clean = false
			}
		}
		if !clean {
			continue
		}

		if o.reviewEnabled {
			ok, err := o.reviewEpic(ctx, epic, children)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}

		if err := o.closeEpic(epic, children); err != nil {
			return err
		}
	}
	return nil
}

// reviewEpic runs the optional secondary review over the aggregate of
// all children before the final transition. Each child line carries the
// summary its execution recorded in the run log, so the reviewer sees
// what was actually done, not just the task names.
func (o *Orchestrator) reviewEpic(ctx context.Context, epic task.Task, children []task.Task) (bool, error) {
	records, err := o.hist.Load()
	if err != nil {
		return false, fmt.Errorf("history error: %w", err)
	}
	lastDone := make(map[string]string, len(children))
	for _, record := range records {
		if record.Event == history.EventDone && record.Detail != "" {
			lastDone[record.TaskID] = record.Detail
		}
	}

	summaries := make([]string, 0, len(children))
	for _, child := range children {
		line := fmt.Sprintf("%s: %s", child.ID, child.Name)
		if detail, ok := lastDone[child.ID]; ok {
			line = fmt.Sprintf("%s: %s", line, detail)
		}
		summaries = append(summaries, line)
	}

	reviewCtx, cancel := context.WithTimeout(ctx, o.reviewTimeout)
	defer cancel()

	prompt := agent.BuildReviewPrompt(epic, summaries)
	result, err := o.executor.Execute(reviewCtx, epic, prompt, agent.Options{Timeout: o.reviewTimeout})
	if err != nil {
		return false, err
	}
	if result.Status != agent.StatusDone {
		reviewErr := &ReviewError{EpicID: epic.ID, Reason: result.Notes}
		o.logger.Error("epic review blocked the close", zap.Error(reviewErr))
		note := fmt.Sprintf("\n> Automation: review blocked epic close at %s: %s\n",
			time.Now().Format(time.RFC3339), result.Notes)
		if err := o.store.AppendToBody(epic.ID, note); err != nil {
			o.logger.Warn("failed to append review note", zap.Error(err))
		}
		return false, nil
	}
	return true, nil
}

// closeEpic stamps all children Done in their own records (idempotent)
// and transitions the epic with an aggregate summary.
func (o *Orchestrator) closeEpic(epic task.Task, children []task.Task) error {
	for _, child := range children {
		if child.Status == task.StatusDone {
			continue
		}
		if err := o.store.UpdateStatus(child.ID, task.StatusDone); err != nil {
			return fmt.Errorf("store error: %w", err)
		}
	}

	if err := o.store.UpdateStatus(epic.ID, task.StatusDone); err != nil {
		return fmt.Errorf("store error: %w", err)
	}

	names := make([]string, 0, len(children))
	for _, child := range children {
		names = append(names, child.ID)
	}
	summary := fmt.Sprintf("\n## Epic closed (%s)\nAll %d children completed: %s\n",
		time.Now().Format(time.RFC3339), len(children), strings.Join(names, ", "))
	if err := o.store.AppendToBody(epic.ID, summary); err != nil {
		return fmt.Errorf("store error: %w", err)
	}

	if err := o.hist.Done(epic.ID, "epic closed"); err != nil {
		o.logger.Warn("failed to record epic close", zap.Error(err))
	}
	o.logger.Info("epic closed", zap.String("epic", epic.ID), zap.Int("children", len(children)))
	return nil
}
