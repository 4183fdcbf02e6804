package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

func collectScanner() (*scanner, *[]task.CriterionRef, *[]string) {
	var refs []task.CriterionRef
	var progress []string
	s := &scanner{
		onACComplete: func(ref task.CriterionRef) { refs = append(refs, ref) },
		onProgress:   func(activity string) { progress = append(progress, activity) },
	}
	return s, &refs, &progress
}

func TestScannerLine(t *testing.T) {
	t.Run("plain text ac marker by text", func(t *testing.T) {
		s, refs, _ := collectScanner()
		s.Line("AC_COMPLETE: Endpoint returns 200")
		require.Len(t, *refs, 1)
		assert.Equal(t, task.ByText("Endpoint returns 200"), (*refs)[0])
	})

	t.Run("plain text ac marker by index", func(t *testing.T) {
		s, refs, _ := collectScanner()
		s.Line("AC_COMPLETE: #2")
		require.Len(t, *refs, 1)
		assert.Equal(t, task.ByIndex(2), (*refs)[0])
	})

	t.Run("marker found mid-line", func(t *testing.T) {
		s, refs, _ := collectScanner()
		s.Line("...done! AC_COMPLETE: second criterion")
		require.Len(t, *refs, 1)
		assert.Equal(t, task.ByText("second criterion"), (*refs)[0])
	})

	t.Run("progress marker", func(t *testing.T) {
		s, _, progress := collectScanner()
		s.Line("PROGRESS: running the test suite")
		require.Len(t, *progress, 1)
		assert.Equal(t, "running the test suite", (*progress)[0])
	})

	t.Run("empty payload is ignored", func(t *testing.T) {
		s, refs, progress := collectScanner()
		s.Line("AC_COMPLETE:")
		s.Line("PROGRESS:   ")
		assert.Empty(t, *refs)
		assert.Empty(t, *progress)
	})

	t.Run("assistant text blocks are scanned", func(t *testing.T) {
		s, refs, _ := collectScanner()
		s.Line(`{"type":"assistant","message":{"content":[{"type":"text","text":"working...\nAC_COMPLETE: #1\nmore"}]}}`)
		require.Len(t, *refs, 1)
		assert.Equal(t, task.ByIndex(1), (*refs)[0])
	})

	t.Run("tool use reports progress", func(t *testing.T) {
		s, _, progress := collectScanner()
		s.Line(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"internal/app.go"}}]}}`)
		require.Len(t, *progress, 1)
		assert.Equal(t, "Edit internal/app.go", (*progress)[0])
	})

	t.Run("text delta events are scanned", func(t *testing.T) {
		s, refs, _ := collectScanner()
		s.Line(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"AC_COMPLETE: third one"}}}`)
		require.Len(t, *refs, 1)
		assert.Equal(t, task.ByText("third one"), (*refs)[0])
	})

	t.Run("nil callbacks do not panic", func(t *testing.T) {
		s := &scanner{}
		s.Line("AC_COMPLETE: #1")
		s.Line("PROGRESS: something")
	})
}

func TestParseCriterionRef(t *testing.T) {
	assert.Equal(t, task.ByIndex(3), ParseCriterionRef("#3"))
	assert.Equal(t, task.ByIndex(3), ParseCriterionRef("3"))
	assert.Equal(t, task.ByText("#0"), ParseCriterionRef("#0"))
	assert.Equal(t, task.ByText("add the endpoint"), ParseCriterionRef("add the endpoint"))
}

func TestDescribeToolUse(t *testing.T) {
	assert.Equal(t, "Bash git status", describeToolUse(streamContent{
		Name:  "Bash",
		Input: map[string]interface{}{"command": "git status"},
	}))
	assert.Equal(t, "WebSearch", describeToolUse(streamContent{Name: "WebSearch"}))

	long := make([]byte, 120)
	for i := range long {
		long[i] = 'x'
	}
	got := describeToolUse(streamContent{
		Name:  "Grep",
		Input: map[string]interface{}{"pattern": string(long)},
	})
	assert.Len(t, got, len("Grep ")+80+3)
}
