// Package task defines the task model, the Store interface the
// orchestrator reconciles against, and the acceptance-criteria tracker.
package task

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Type classifies a task.
type Type string

const (
	TypeEpic      Type = "epic"
	TypeUserStory Type = "user_story"
	TypeBug       Type = "bug"
	TypeChore     Type = "chore"
	TypeDiscovery Type = "discovery"
)

// Task is one unit of work. The Store owns persistence; the orchestrator
// holds only transient references during a reconciliation pass.
type Task struct {
	ID       string   `json:"id" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Status   Status   `json:"status" yaml:"status"`
	Type     Type     `json:"type" yaml:"type"`
	Priority int      `json:"priority" yaml:"priority"`
	Model    string   `json:"model,omitempty" yaml:"model,omitempty"`
	Agents   []string `json:"agents,omitempty" yaml:"agents,omitempty"`
	ParentID string   `json:"parentId,omitempty" yaml:"parent,omitempty"`
}

// IsEpic reports whether t is an epic container. A task with children is
// treated as an epic even if typed otherwise; callers that know the full
// task list should use HasChildren alongside this.
func (t Task) IsEpic() bool {
	return t.Type == TypeEpic && t.ParentID == ""
}

// HasChildren reports whether any task in tasks names t as its parent.
func (t Task) HasChildren(tasks []Task) bool {
	for _, other := range tasks {
		if other.ParentID == t.ID {
			return true
		}
	}
	return false
}

// ChildrenOf returns the tasks whose ParentID is epicID, in input order.
func ChildrenOf(tasks []Task, epicID string) []Task {
	var children []Task
	for _, t := range tasks {
		if t.ParentID == epicID {
			children = append(children, t)
		}
	}
	return children
}
