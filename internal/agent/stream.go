package agent

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

// Inline markers the agent emits mid-stream. They are recognized
// independently of the terminal result contract so checkbox state tracks
// real progress even when the process later times out.
const (
	acCompleteMarker = "AC_COMPLETE:"
	progressMarker   = "PROGRESS:"
)

// scanner inspects each output line for completion and progress signals.
// It understands both plain text and Claude's stream-json framing; for
// the latter, markers are searched inside assistant text blocks and
// tool-use events are reported as progress.
type scanner struct {
	onACComplete func(ref task.CriterionRef)
	onProgress   func(activity string)
}

// Line processes one line of agent output.
func (s *scanner) Line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "{") {
		if s.jsonLine(line) {
			return
		}
	}
	s.textFragment(line)
}

// jsonLine handles a stream-json event. Returns false when the line is
// not parseable JSON, in which case it is treated as plain text.
func (s *scanner) jsonLine(line string) bool {
	var event streamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return false
	}

	switch event.Type {
	case "assistant":
		for _, c := range event.message() {
			switch c.Type {
			case "text":
				s.textFragment(c.Text)
			case "tool_use":
				s.progress(describeToolUse(c))
			}
		}
	case "stream_event":
		if event.Event != nil && event.Event.Delta != nil && event.Event.Delta.Type == "text_delta" {
			s.textFragment(event.Event.Delta.Text)
		}
	}
	return true
}

// textFragment scans displayable text for inline markers. Markers are
// matched anywhere in the fragment because token streaming can prepend
// partial words to the line.
func (s *scanner) textFragment(text string) {
	for _, line := range strings.Split(text, "\n") {
		if idx := strings.Index(line, acCompleteMarker); idx != -1 {
			payload := strings.TrimSpace(line[idx+len(acCompleteMarker):])
			if payload != "" && s.onACComplete != nil {
				s.onACComplete(ParseCriterionRef(payload))
			}
			continue
		}
		if idx := strings.Index(line, progressMarker); idx != -1 {
			s.progress(strings.TrimSpace(line[idx+len(progressMarker):]))
		}
	}
}

func (s *scanner) progress(activity string) {
	if activity != "" && s.onProgress != nil {
		s.onProgress(activity)
	}
}

// ParseCriterionRef interprets an AC marker payload: "#2" or "2" is a
// positional reference, anything else is free text resolved against the
// live body parse.
func ParseCriterionRef(payload string) task.CriterionRef {
	trimmed := strings.TrimPrefix(payload, "#")
	if n, err := strconv.Atoi(trimmed); err == nil && n > 0 {
		return task.ByIndex(n)
	}
	return task.ByText(payload)
}

// streamEvent is the subset of Claude's stream-json framing the scanner
// cares about.
type streamEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Event   *struct {
		Type  string `json:"type"`
		Delta *struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"delta,omitempty"`
	} `json:"event,omitempty"`
}

type streamContent struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

func (e streamEvent) message() []streamContent {
	if len(e.Message) == 0 {
		return nil
	}
	var wrapper struct {
		Content []streamContent `json:"content"`
	}
	if err := json.Unmarshal(e.Message, &wrapper); err != nil {
		return nil
	}
	return wrapper.Content
}

// streamTextContent returns the assistant text blocks on a stream-json
// line, for callers searching them for embedded payloads.
func streamTextContent(line string) []string {
	var event streamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return nil
	}
	if event.Type != "assistant" {
		return nil
	}
	var texts []string
	for _, c := range event.message() {
		if c.Type == "text" && c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

// describeToolUse renders a short activity string for a tool-use event.
func describeToolUse(c streamContent) string {
	target := ""
	switch c.Name {
	case "Read", "Write", "Edit":
		target, _ = c.Input["file_path"].(string)
	case "Bash":
		target, _ = c.Input["command"].(string)
	case "Glob", "Grep":
		target, _ = c.Input["pattern"].(string)
	}
	if target == "" {
		return c.Name
	}
	if len(target) > 80 {
		target = target[:80] + "..."
	}
	return c.Name + " " + target
}
