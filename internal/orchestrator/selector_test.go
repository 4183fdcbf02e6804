package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

func TestPickNextLeaf(t *testing.T) {
	t.Run("id order by default", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "b", Status: task.StatusNotStarted},
			{ID: "a", Status: task.StatusNotStarted},
		}
		pick, ok := PickNextLeaf(tasks, Policy{Order: "id"})
		require.True(t, ok)
		assert.Equal(t, "a", pick.Task.ID)
		assert.Equal(t, SourceNotStarted, pick.Source)
	})

	t.Run("priority order with id tiebreak", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "a", Status: task.StatusNotStarted, Priority: 1},
			{ID: "c", Status: task.StatusNotStarted, Priority: 5},
			{ID: "b", Status: task.StatusNotStarted, Priority: 5},
		}
		pick, ok := PickNextLeaf(tasks, Policy{Order: "priority"})
		require.True(t, ok)
		assert.Equal(t, "b", pick.Task.ID)
	})

	t.Run("in-progress preferred over not-started", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "a", Status: task.StatusNotStarted},
			{ID: "z", Status: task.StatusInProgress},
		}
		pick, ok := PickNextLeaf(tasks, Policy{Order: "id"})
		require.True(t, ok)
		assert.Equal(t, "z", pick.Task.ID)
		assert.Equal(t, SourceInProgress, pick.Source)
	})

	t.Run("epics and their children are excluded", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "epic", Type: task.TypeEpic, Status: task.StatusNotStarted},
			{ID: "child", ParentID: "epic", Status: task.StatusNotStarted},
			{ID: "leaf", Status: task.StatusNotStarted},
		}
		pick, ok := PickNextLeaf(tasks, Policy{Order: "id"})
		require.True(t, ok)
		assert.Equal(t, "leaf", pick.Task.ID)
	})

	t.Run("untyped parent with children counts as epic", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "group", Type: task.TypeChore, Status: task.StatusNotStarted},
			{ID: "group-child", ParentID: "group", Status: task.StatusNotStarted},
		}
		_, ok := PickNextLeaf(tasks, Policy{Order: "id"})
		assert.False(t, ok)
	})

	t.Run("nothing eligible", func(t *testing.T) {
		tasks := []task.Task{{ID: "a", Status: task.StatusDone}}
		_, ok := PickNextLeaf(tasks, Policy{Order: "id"})
		assert.False(t, ok)
	})
}

func TestFirstOpenEpic(t *testing.T) {
	t.Run("done epics are skipped", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "e1", Type: task.TypeEpic, Status: task.StatusDone},
			{ID: "e2", Type: task.TypeEpic, Status: task.StatusNotStarted},
			{ID: "e2-c1", ParentID: "e2", Status: task.StatusNotStarted},
		}
		epic, ok := FirstOpenEpic(tasks, Policy{Order: "id"})
		require.True(t, ok)
		assert.Equal(t, "e2", epic.ID)
	})

	t.Run("mutual exclusion picks one epic", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "e2", Type: task.TypeEpic, Status: task.StatusInProgress},
			{ID: "e2-c1", ParentID: "e2", Status: task.StatusNotStarted},
			{ID: "e1", Type: task.TypeEpic, Status: task.StatusNotStarted},
			{ID: "e1-c1", ParentID: "e1", Status: task.StatusNotStarted},
		}
		epic, ok := FirstOpenEpic(tasks, Policy{Order: "id"})
		require.True(t, ok)
		assert.Equal(t, "e1", epic.ID)
	})

	t.Run("childless epics are not schedulable", func(t *testing.T) {
		tasks := []task.Task{
			{ID: "empty", Type: task.TypeEpic, Status: task.StatusNotStarted},
		}
		_, ok := FirstOpenEpic(tasks, Policy{Order: "id"})
		assert.False(t, ok)
	})

	t.Run("no epics", func(t *testing.T) {
		_, ok := FirstOpenEpic([]task.Task{{ID: "leaf"}}, Policy{Order: "id"})
		assert.False(t, ok)
	})
}

func TestPickChild(t *testing.T) {
	tasks := []task.Task{
		{ID: "epic", Type: task.TypeEpic, Status: task.StatusInProgress},
		{ID: "c2", ParentID: "epic", Status: task.StatusNotStarted},
		{ID: "c1", ParentID: "epic", Status: task.StatusDone},
		{ID: "other", ParentID: "another-epic", Status: task.StatusNotStarted},
	}
	pick, ok := PickChild(tasks, "epic", Policy{Order: "id"})
	require.True(t, ok)
	assert.Equal(t, "c2", pick.Task.ID)
}

func TestHasIncompleteEpic(t *testing.T) {
	assert.True(t, HasIncompleteEpic([]task.Task{
		{ID: "e", Type: task.TypeEpic, Status: task.StatusInProgress},
		{ID: "c", ParentID: "e", Status: task.StatusNotStarted},
	}))
	assert.False(t, HasIncompleteEpic([]task.Task{
		{ID: "e", Type: task.TypeEpic, Status: task.StatusDone},
		{ID: "leaf", Status: task.StatusNotStarted},
	}))
	// A typed epic with no children yet must not hold the scheduler in
	// epic mode.
	assert.False(t, HasIncompleteEpic([]task.Task{
		{ID: "e", Type: task.TypeEpic, Status: task.StatusNotStarted},
		{ID: "leaf", Status: task.StatusNotStarted},
	}))
}
