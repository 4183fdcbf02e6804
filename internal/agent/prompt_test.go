package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

func TestBuildPrompt(t *testing.T) {
	tk := task.Task{
		ID:       "auth/login",
		Name:     "Login flow",
		Type:     task.TypeUserStory,
		ParentID: "auth/epic",
	}
	body := "Do the work.\n\n- [ ] first criterion\n- [x] second criterion\n"

	prompt := BuildPrompt(tk, body)

	assert.Contains(t, prompt, "**ID**: auth/login")
	assert.Contains(t, prompt, "**Epic**: auth/epic")
	assert.Contains(t, prompt, "Do the work.")
	assert.Contains(t, prompt, "1. [ ] first criterion")
	assert.Contains(t, prompt, "2. [x] second criterion")
	assert.Contains(t, prompt, "AC_COMPLETE")
	assert.Contains(t, prompt, `"completed_acs"`)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, prompt, BuildPrompt(tk, body))
	})

	t.Run("no criteria section without checkboxes", func(t *testing.T) {
		p := BuildPrompt(tk, "Just prose.")
		assert.NotContains(t, p, "## Acceptance Criteria")
		assert.Contains(t, p, "## Response Contract")
	})

	t.Run("no epic line for standalone tasks", func(t *testing.T) {
		standalone := tk
		standalone.ParentID = ""
		assert.NotContains(t, BuildPrompt(standalone, body), "**Epic**")
	})
}

func TestBuildCorrectivePrompt(t *testing.T) {
	original := BuildPrompt(task.Task{ID: "t1", Name: "One"}, "body")
	corrective := BuildCorrectivePrompt(original, "no repository changes and the result declared no files")

	assert.Contains(t, corrective, original)
	assert.Contains(t, corrective, "## Correction Required")
	assert.Contains(t, corrective, "no repository changes")
}

func TestBuildReviewPrompt(t *testing.T) {
	epic := task.Task{ID: "auth/epic", Name: "Auth overhaul", Type: task.TypeEpic}
	prompt := BuildReviewPrompt(epic, []string{"auth/login: Login flow", "auth/logout: Logout flow"})

	assert.Contains(t, prompt, "**ID**: auth/epic")
	assert.Contains(t, prompt, "- auth/login: Login flow")
	assert.Contains(t, prompt, "- auth/logout: Logout flow")
	assert.Contains(t, prompt, `"blocked"`)
}
