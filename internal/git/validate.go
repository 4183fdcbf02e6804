package git

import (
	"os"
	"path/filepath"

	"github.com/oviniciusramosp/claude-pm/internal/agent"
)

// Verdict is the validator's judgement of a self-reported "done".
type Verdict struct {
	Valid  bool
	Reason string
}

// Validate gates a self-reported "done" against observable artifacts.
// The report is accepted when either the working tree changed since the
// before snapshot (new commits or uncommitted modifications), or at
// least one file the agent declared exists on disk. This is a heuristic
// that detects absence of work, not incorrectness: any repository change
// counts as evidence, related to the task or not.
func Validate(workdir string, before Snapshot, result agent.Result) (Verdict, error) {
	after, err := Take(workdir)
	if err != nil {
		return Verdict{}, err
	}

	if !after.Equal(before) {
		return Verdict{Valid: true}, nil
	}

	for _, file := range result.Files {
		if file == "" {
			continue
		}
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		if _, err := os.Stat(path); err == nil {
			return Verdict{Valid: true}, nil
		}
	}

	reason := "no repository changes and no declared files exist"
	if len(result.Files) == 0 {
		reason = "no repository changes and the result declared no files"
	}
	return Verdict{Valid: false, Reason: reason}, nil
}
