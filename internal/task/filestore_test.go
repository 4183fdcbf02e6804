package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir())
}

func mustCreate(t *testing.T, s *FileStore, task Task, body string) {
	t.Helper()
	require.NoError(t, s.CreateTask(task, body))
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, Task{
		ID:       "auth/login-flow",
		Name:     "Login flow",
		Type:     TypeUserStory,
		Priority: 2,
		ParentID: "auth/epic",
	}, "Body text.\n\n- [ ] works\n")

	tasks, err := s.ListTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	got := tasks[0]
	assert.Equal(t, "auth/login-flow", got.ID)
	assert.Equal(t, "Login flow", got.Name)
	assert.Equal(t, StatusNotStarted, got.Status)
	assert.Equal(t, TypeUserStory, got.Type)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, "auth/epic", got.ParentID)

	body, err := s.GetBody("auth/login-flow")
	require.NoError(t, err)
	assert.Equal(t, "Body text.\n\n- [ ] works\n", body)
}

func TestFileStoreListTasks(t *testing.T) {
	t.Run("sorted by id", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "b-second", Name: "B"}, "")
		mustCreate(t, s, Task{ID: "a-first", Name: "A"}, "")

		tasks, err := s.ListTasks()
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, "a-first", tasks[0].ID)
		assert.Equal(t, "b-second", tasks[1].ID)
	})

	t.Run("missing root yields no tasks", func(t *testing.T) {
		s := NewFileStore(filepath.Join(t.TempDir(), "nope"))
		tasks, err := s.ListTasks()
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("non-markdown files are skipped", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "real", Name: "Real"}, "")
		require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0644))

		tasks, err := s.ListTasks()
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})
}

func TestFileStoreUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, Task{ID: "t1", Name: "One"}, "body\n")

	require.NoError(t, s.UpdateStatus("t1", StatusInProgress))

	tasks, err := s.ListTasks()
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, tasks[0].Status)

	// Body survives a metadata rewrite.
	body, err := s.GetBody("t1")
	require.NoError(t, err)
	assert.Equal(t, "body\n", body)

	// No temp file left behind.
	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileStoreCheckboxUpdates(t *testing.T) {
	body := "- [ ] first\n- [ ] second\n"

	t.Run("by index", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "t1", Name: "One"}, body)

		require.NoError(t, s.UpdateCheckboxesByIndex("t1", []int{2}))
		got, err := s.GetBody("t1")
		require.NoError(t, err)
		assert.Equal(t, "- [ ] first\n- [x] second\n", got)
	})

	t.Run("by text", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "t1", Name: "One"}, body)

		require.NoError(t, s.UpdateCheckboxesByText("t1", []string{"first"}))
		got, err := s.GetBody("t1")
		require.NoError(t, err)
		assert.Equal(t, "- [x] first\n- [ ] second\n", got)
	})
}

func TestFileStoreAppendToBody(t *testing.T) {
	t.Run("appends after trailing newline", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "t1", Name: "One"}, "existing\n")

		require.NoError(t, s.AppendToBody("t1", "appended\n"))
		got, err := s.GetBody("t1")
		require.NoError(t, err)
		assert.Equal(t, "existing\nappended\n", got)
	})

	t.Run("inserts separator when body lacks one", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "t1", Name: "One"}, "existing")

		require.NoError(t, s.AppendToBody("t1", "appended"))
		got, err := s.GetBody("t1")
		require.NoError(t, err)
		assert.Equal(t, "existing\nappended", got)
	})
}

func TestFileStoreCreateTask(t *testing.T) {
	t.Run("derives id from name", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{Name: "Fix Login Flow!"}, "")

		tasks, err := s.ListTasks()
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "fix-login-flow", tasks[0].ID)
	})

	t.Run("nested ids create directories", func(t *testing.T) {
		s := newTestStore(t)
		mustCreate(t, s, Task{ID: "epics/auth/child", Name: "Child"}, "")

		_, err := os.Stat(filepath.Join(s.Root(), "epics", "auth", "child.md"))
		assert.NoError(t, err)
	})

	t.Run("rejects empty id and name", func(t *testing.T) {
		s := newTestStore(t)
		assert.Error(t, s.CreateTask(Task{}, ""))
	})
}

func TestSplitFrontMatter(t *testing.T) {
	t.Run("missing front matter is an error", func(t *testing.T) {
		s := newTestStore(t)
		path := filepath.Join(s.Root(), "broken.md")
		require.NoError(t, os.WriteFile(path, []byte("no fences here\n"), 0644))

		_, err := s.ListTasks()
		assert.Error(t, err)
	})

	t.Run("closing fence at EOF yields empty body", func(t *testing.T) {
		s := newTestStore(t)
		path := filepath.Join(s.Root(), "tight.md")
		require.NoError(t, os.WriteFile(path, []byte("---\nname: Tight\nstatus: done\ntype: chore\n---"), 0644))

		tasks, err := s.ListTasks()
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, StatusDone, tasks[0].Status)
	})
}
