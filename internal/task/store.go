package task

// Store is the abstract task store the orchestrator reconciles against.
// Implementations must recompute checkbox indices from the live body text
// on every call, keep UpdateStatus atomic per task, and never truncate
// prior content in AppendToBody.
type Store interface {
	// ListTasks returns all tasks with their current statuses.
	ListTasks() ([]Task, error)

	// GetBody returns the markdown body of the task.
	GetBody(id string) (string, error)

	// UpdateStatus sets the task's status.
	UpdateStatus(id string, status Status) error

	// UpdateCheckboxesByIndex checks the acceptance criteria at the given
	// 1-based document-order positions. Already-checked boxes stay checked.
	UpdateCheckboxesByIndex(id string, indices []int) error

	// UpdateCheckboxesByText checks the acceptance criteria whose text
	// matches the given strings. Unmatched texts are ignored.
	UpdateCheckboxesByText(id string, texts []string) error

	// AppendToBody appends text to the end of the task body.
	AppendToBody(id string, text string) error
}
