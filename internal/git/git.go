// Package git inspects the working tree the agent operates on. The
// orchestrator uses it to corroborate the agent's self-reported results
// against observable repository state.
package git

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Snapshot captures the repository state at a point in time: the commit
// HEAD points at, and the set of uncommitted paths.
type Snapshot struct {
	Head       string
	DirtyFiles []string
}

// Take records the current repository state of dir. If dir is empty,
// the current working directory is used.
func Take(dir string) (Snapshot, error) {
	head, err := revParseHead(dir)
	if err != nil {
		return Snapshot{}, err
	}
	dirty, err := dirtyFiles(dir)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Head: head, DirtyFiles: dirty}, nil
}

// Equal reports whether two snapshots describe the same repository
// state: same HEAD and the same set of dirty paths.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Head != other.Head || len(s.DirtyFiles) != len(other.DirtyFiles) {
		return false
	}
	a := append([]string(nil), s.DirtyFiles...)
	b := append([]string(nil), other.DirtyFiles...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// revParseHead returns the current HEAD commit, or "" in a repository
// with no commits yet.
func revParseHead(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.Output()
	if err != nil {
		// An unborn branch has no HEAD; treat it as empty rather than
		// failing, so fresh repositories still validate.
		if _, ok := err.(*exec.ExitError); ok {
			return "", nil
		}
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// dirtyFiles returns the paths with uncommitted changes, including
// staged and untracked files.
func dirtyFiles(dir string) ([]string, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Porcelain format: XY filename (two status chars, a space,
		// then the path).
		if len(line) > 3 {
			files = append(files, line[3:])
		} else {
			files = append(files, strings.TrimSpace(line))
		}
	}
	return files, nil
}
