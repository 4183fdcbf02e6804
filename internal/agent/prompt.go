package agent

import (
	"fmt"
	"strings"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// BuildPrompt constructs the prompt for one task execution. It is
// deterministic: the same task metadata and body always yield the same
// prompt, so retries and tests are reproducible.
func BuildPrompt(t task.Task, body string) string {
	var sb strings.Builder

	sb.WriteString("You are executing one work item from an automated backlog.\n\n")

	sb.WriteString("## Your Task\n")
	sb.WriteString(fmt.Sprintf("**ID**: %s\n", t.ID))
	sb.WriteString(fmt.Sprintf("**Name**: %s\n", t.Name))
	sb.WriteString(fmt.Sprintf("**Type**: %s\n", t.Type))
	if t.ParentID != "" {
		sb.WriteString(fmt.Sprintf("**Epic**: %s\n", t.ParentID))
	}
	sb.WriteString("\n## Description\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\n")

	criteria := task.ParseCriteria(body)
	if len(criteria) > 0 {
		sb.WriteString("## Acceptance Criteria\n")
		sb.WriteString("You MUST verify ALL of the following before considering the task complete:\n")
		for _, c := range criteria {
			state := " "
			if c.Checked {
				state = "x"
			}
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", c.Index, state, c.Text))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(
			"Whenever you finish one criterion, immediately print a line `%s <criterion text>` so progress is tracked even if you are interrupted.\n\n",
			acCompleteMarker))
	}

	sb.WriteString("## Response Contract\n")
	sb.WriteString("When you are finished, the LAST JSON object you print must have exactly this shape:\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "status": "done" | "blocked",
  "summary": "one paragraph describing what you did",
  "notes": "caveats or follow-ups, empty string if none",
  "files": ["paths you created or modified"],
  "tests": "how you verified the work",
  "completed_acs": ["criterion text for each criterion you completed"]
}` + "\n")
	sb.WriteString("```\n")
	sb.WriteString("Report \"blocked\" with an explanation in notes if you cannot complete the task. Never report \"done\" without producing real changes.\n")

	return sb.String()
}

// BuildCorrectivePrompt appends a corrective section to the original
// prompt after a failed hallucination check. Used for exactly one retry.
func BuildCorrectivePrompt(original, reason string) string {
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\n## Correction Required\n")
	sb.WriteString("Your previous run reported \"done\" but validation found no evidence of work: ")
	sb.WriteString(reason)
	sb.WriteString("\nActually perform the task this time. Create or modify the files the task requires, ")
	sb.WriteString("and list every touched path in the final JSON object's files array.\n")
	return sb.String()
}

// BuildReviewPrompt constructs the optional epic-review prompt over the
// aggregate of all child summaries.
func BuildReviewPrompt(epic task.Task, childSummaries []string) string {
	var sb strings.Builder
	sb.WriteString("You are reviewing the completed children of an epic before it is closed.\n\n")
	sb.WriteString(fmt.Sprintf("## Epic\n**ID**: %s\n**Name**: %s\n\n", epic.ID, epic.Name))
	sb.WriteString("## Child Summaries\n")
	for _, s := range childSummaries {
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("\nVerify the work hangs together: no child contradicts another, nothing named in the epic is missing. ")
	sb.WriteString("Respond with the same JSON contract; report \"blocked\" with an explanation in notes if the epic should not close.\n")
	return sb.String()
}
