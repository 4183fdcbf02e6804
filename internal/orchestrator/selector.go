package orchestrator

import (
	"sort"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// Source says where a picked task came from.
type Source string

const (
	SourceNotStarted Source = "not_started"
	SourceInProgress Source = "in_progress"
)

// Pick is the selector's output: the next task to run and whether it is
// being resumed or freshly started.
type Pick struct {
	Task   task.Task
	Source Source
}

// Policy configures candidate ordering. "id" sorts lexicographically by
// id; "priority" sorts by descending priority with id as tiebreak.
type Policy struct {
	Order string
}

// sortCandidates orders tasks in place per the policy.
func sortCandidates(tasks []task.Task, policy Policy) {
	sort.Slice(tasks, func(i, j int) bool {
		if policy.Order == "priority" && tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// pickFrom applies the shared selection rule to a candidate set: an
// already-InProgress task is preferred over starting a NotStarted one,
// so a crashed run resumes in place instead of abandoning work.
func pickFrom(candidates []task.Task, policy Policy) (Pick, bool) {
	sortCandidates(candidates, policy)
	for _, t := range candidates {
		if t.Status == task.StatusInProgress {
			return Pick{Task: t, Source: SourceInProgress}, true
		}
	}
	for _, t := range candidates {
		if t.Status == task.StatusNotStarted {
			return Pick{Task: t, Source: SourceNotStarted}, true
		}
	}
	return Pick{}, false
}

// PickNextLeaf selects the next standalone task: not an epic, not an
// epic's child.
func PickNextLeaf(tasks []task.Task, policy Policy) (Pick, bool) {
	var candidates []task.Task
	for _, t := range tasks {
		if t.ParentID != "" || isEpicTask(t, tasks) {
			continue
		}
		candidates = append(candidates, t)
	}
	return pickFrom(candidates, policy)
}

// FirstOpenEpic returns the first non-Done epic in policy order. Epics
// are mutually exclusive: only this one is eligible until it closes.
// Epics without children are containers still being filled in and are
// not schedulable.
func FirstOpenEpic(tasks []task.Task, policy Policy) (task.Task, bool) {
	var epics []task.Task
	for _, t := range tasks {
		if isEpicTask(t, tasks) && t.Status != task.StatusDone && t.HasChildren(tasks) {
			epics = append(epics, t)
		}
	}
	if len(epics) == 0 {
		return task.Task{}, false
	}
	sortCandidates(epics, policy)
	return epics[0], true
}

// PickChild selects the next child of the given epic using the same
// resume-in-place rule, scoped to ParentID == epicID.
func PickChild(tasks []task.Task, epicID string, policy Policy) (Pick, bool) {
	return pickFrom(task.ChildrenOf(tasks, epicID), policy)
}

// HasIncompleteEpic reports whether any unfinished epic with children
// exists. While one does, the orchestrator delegates in epic mode so
// standalone tasks never run interleaved with an active epic's
// children. A childless epic has nothing to delegate and must not pin
// the scheduler in epic mode.
func HasIncompleteEpic(tasks []task.Task) bool {
	for _, t := range tasks {
		if isEpicTask(t, tasks) && t.Status != task.StatusDone && t.HasChildren(tasks) {
			return true
		}
	}
	return false
}

// isEpicTask treats a task as an epic container when it is typed Epic
// with no parent, or when other tasks name it as their parent.
func isEpicTask(t task.Task, tasks []task.Task) bool {
	return t.IsEpic() || t.HasChildren(tasks)
}
