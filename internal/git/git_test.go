package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repository in a temp dir with one initial commit.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "git", "init")
	run(t, dir, "git", "config", "user.email", "test@example.com")
	run(t, dir, "git", "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed\n"), 0644))
	run(t, dir, "git", "add", ".")
	run(t, dir, "git", "commit", "-m", "initial")
	return dir
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "%s %v: %s", name, args, out)
}

func TestTake(t *testing.T) {
	t.Run("clean repository", func(t *testing.T) {
		dir := initRepo(t)
		snap, err := Take(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, snap.Head)
		assert.Empty(t, snap.DirtyFiles)
	})

	t.Run("untracked file shows up dirty", func(t *testing.T) {
		dir := initRepo(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0644))

		snap, err := Take(dir)
		require.NoError(t, err)
		assert.Contains(t, snap.DirtyFiles, "new.txt")
	})

	t.Run("unborn branch has empty head", func(t *testing.T) {
		dir := t.TempDir()
		run(t, dir, "git", "init")

		snap, err := Take(dir)
		require.NoError(t, err)
		assert.Empty(t, snap.Head)
	})
}

func TestSnapshotEqual(t *testing.T) {
	a := Snapshot{Head: "abc", DirtyFiles: []string{"x", "y"}}

	assert.True(t, a.Equal(Snapshot{Head: "abc", DirtyFiles: []string{"y", "x"}}))
	assert.False(t, a.Equal(Snapshot{Head: "def", DirtyFiles: []string{"x", "y"}}))
	assert.False(t, a.Equal(Snapshot{Head: "abc", DirtyFiles: []string{"x"}}))
	assert.False(t, a.Equal(Snapshot{Head: "abc", DirtyFiles: []string{"x", "z"}}))
	assert.True(t, Snapshot{}.Equal(Snapshot{}))
}
