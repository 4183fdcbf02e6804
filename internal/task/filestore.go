package task

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oviniciusramosp/claude-pm/internal/util"
)

const frontMatterFence = "---"

// FileStore is a Store backed by a tree of markdown files. Each task
// lives at <root>/<id>.md; the id is the file path relative to the root
// without the extension, so nested directories yield path-like ids.
// Task metadata sits in a YAML front-matter block, the markdown body
// (including acceptance-criteria checkboxes) follows it.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the directory the store reads from.
func (s *FileStore) Root() string { return s.root }

// ListTasks walks the tree and returns all tasks sorted by id.
func (s *FileStore) ListTasks() ([]Task, error) {
	var tasks []Task
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(strings.TrimSuffix(rel, ".md"))
		t, _, err := s.read(id)
		if err != nil {
			return fmt.Errorf("failed to read task %s: %w", id, err)
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// GetBody returns the markdown body of the task.
func (s *FileStore) GetBody(id string) (string, error) {
	_, body, err := s.read(id)
	return body, err
}

// UpdateStatus sets the task's status. The write is atomic per task:
// the file is rewritten to a temp file and renamed into place.
func (s *FileStore) UpdateStatus(id string, status Status) error {
	t, body, err := s.read(id)
	if err != nil {
		return err
	}
	t.Status = status
	return s.write(id, t, body)
}

// UpdateCheckboxesByIndex checks the criteria at the given 1-based
// positions. Indices are resolved against the body as stored right now,
// never against a cached parse.
func (s *FileStore) UpdateCheckboxesByIndex(id string, indices []int) error {
	t, body, err := s.read(id)
	if err != nil {
		return err
	}
	return s.write(id, t, CheckByIndex(body, indices))
}

// UpdateCheckboxesByText checks the criteria whose text matches the
// given strings. Unmatched texts are ignored.
func (s *FileStore) UpdateCheckboxesByText(id string, texts []string) error {
	t, body, err := s.read(id)
	if err != nil {
		return err
	}
	return s.write(id, t, CheckByText(body, texts))
}

// AppendToBody appends text to the end of the task body, never
// truncating prior content. A separating newline is inserted when the
// body does not already end with one.
func (s *FileStore) AppendToBody(id string, text string) error {
	t, body, err := s.read(id)
	if err != nil {
		return err
	}
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return s.write(id, t, body+text)
}

// CreateTask writes a new task file. Used by `claude-pm init` and tests;
// the orchestrator itself never creates tasks. An empty id is derived
// from the task name.
func (s *FileStore) CreateTask(t Task, body string) error {
	if t.ID == "" {
		t.ID = util.Slug(t.Name)
	}
	if t.ID == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	path := s.path(t.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	return s.write(t.ID, t, body)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id)+".md")
}

func (s *FileStore) read(id string) (Task, string, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return Task{}, "", fmt.Errorf("failed to read task %s: %w", id, err)
	}
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return Task{}, "", fmt.Errorf("task %s: %w", id, err)
	}
	var t Task
	if err := yaml.Unmarshal(meta, &t); err != nil {
		return Task{}, "", fmt.Errorf("task %s: invalid front matter: %w", id, err)
	}
	t.ID = id
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	return t, body, nil
}

// write renders the task file and renames it into place so a crashed
// write never leaves a half-written task behind.
func (s *FileStore) write(id string, t Task, body string) error {
	meta, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", id, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterFence + "\n")
	buf.Write(meta)
	buf.WriteString(frontMatterFence + "\n")
	buf.WriteString(body)

	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write task %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace task %s: %w", id, err)
	}
	return nil
}

// splitFrontMatter splits a task file into its YAML metadata block and
// the markdown body that follows the closing fence.
func splitFrontMatter(data []byte) (meta []byte, body string, err error) {
	content := string(data)
	if !strings.HasPrefix(content, frontMatterFence+"\n") {
		return nil, "", fmt.Errorf("missing front matter")
	}
	rest := content[len(frontMatterFence)+1:]
	end := strings.Index(rest, "\n"+frontMatterFence+"\n")
	if end == -1 {
		// Closing fence at EOF without trailing newline.
		if strings.HasSuffix(rest, "\n"+frontMatterFence) {
			return []byte(rest[:len(rest)-len(frontMatterFence)-1]), "", nil
		}
		return nil, "", fmt.Errorf("unterminated front matter")
	}
	meta = []byte(rest[:end+1])
	body = rest[end+len(frontMatterFence)+2:]
	return meta, body, nil
}
