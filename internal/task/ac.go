package task

import (
	"fmt"
	"strings"
)

// Criterion is one acceptance criterion parsed from a task body.
// Index is the 1-based position in checkbox document order. Indices are
// derived from the current body text and are not stable identifiers:
// they must be recomputed from the live body before every indexed
// mutation, because edits can shift positions.
type Criterion struct {
	Index   int
	Text    string
	Checked bool
}

// CriterionRef is a tagged reference to a criterion, resolved against a
// live parse of the body. Exactly one of the two forms is set.
type CriterionRef struct {
	Index int    // 1-based; 0 when the reference is by text
	Text  string // empty when the reference is by index
}

// ByIndex returns a positional criterion reference.
func ByIndex(n int) CriterionRef { return CriterionRef{Index: n} }

// ByText returns a free-text criterion reference.
func ByText(s string) CriterionRef { return CriterionRef{Text: s} }

func (r CriterionRef) String() string {
	if r.Index > 0 {
		return fmt.Sprintf("#%d", r.Index)
	}
	return r.Text
}

// ParseCriteria extracts the checkbox-style acceptance criteria from a
// markdown body, in document order. Both "- [ ]" and "* [ ]" list
// markers are recognized, with any leading indentation.
func ParseCriteria(body string) []Criterion {
	var criteria []Criterion
	for _, line := range strings.Split(body, "\n") {
		text, checked, ok := parseCheckboxLine(line)
		if !ok {
			continue
		}
		criteria = append(criteria, Criterion{
			Index:   len(criteria) + 1,
			Text:    text,
			Checked: checked,
		})
	}
	return criteria
}

// UncheckedCriteria returns the criteria in body that are not checked.
func UncheckedCriteria(body string) []Criterion {
	var unchecked []Criterion
	for _, c := range ParseCriteria(body) {
		if !c.Checked {
			unchecked = append(unchecked, c)
		}
	}
	return unchecked
}

// Resolve maps ref to a 1-based checkbox index against a live parse of
// body. Text references match on trimmed text first, then
// case-insensitively, then by containment in either direction, so an
// agent quoting a criterion loosely still lands on the right box.
// Returns 0 when the reference cannot be resolved.
func Resolve(body string, ref CriterionRef) int {
	criteria := ParseCriteria(body)

	if ref.Index > 0 {
		if ref.Index <= len(criteria) {
			return ref.Index
		}
		return 0
	}

	want := strings.TrimSpace(ref.Text)
	if want == "" {
		return 0
	}
	for _, c := range criteria {
		if c.Text == want {
			return c.Index
		}
	}
	wantLower := strings.ToLower(want)
	for _, c := range criteria {
		if strings.ToLower(c.Text) == wantLower {
			return c.Index
		}
	}
	for _, c := range criteria {
		haveLower := strings.ToLower(c.Text)
		if strings.Contains(haveLower, wantLower) || strings.Contains(wantLower, haveLower) {
			return c.Index
		}
	}
	return 0
}

// CheckByIndex returns body with the checkboxes at the given 1-based
// positions checked. Positions out of range are ignored; checking an
// already-checked box is a no-op, so the operation is idempotent.
func CheckByIndex(body string, indices []int) string {
	want := make(map[int]bool, len(indices))
	for _, i := range indices {
		want[i] = true
	}

	lines := strings.Split(body, "\n")
	index := 0
	for i, line := range lines {
		_, _, ok := parseCheckboxLine(line)
		if !ok {
			continue
		}
		index++
		if want[index] {
			lines[i] = checkLine(line)
		}
	}
	return strings.Join(lines, "\n")
}

// CheckByText returns body with the checkboxes matching the given texts
// checked. Each text is resolved against the body as mutated so far.
func CheckByText(body string, texts []string) string {
	for _, text := range texts {
		idx := Resolve(body, ByText(text))
		if idx == 0 {
			continue
		}
		body = CheckByIndex(body, []int{idx})
	}
	return body
}

// parseCheckboxLine parses a single markdown line as a checkbox item.
func parseCheckboxLine(line string) (text string, checked bool, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
		return "", false, false
	}
	rest := trimmed[2:]
	switch {
	case strings.HasPrefix(rest, "[ ] "):
		return strings.TrimSpace(rest[4:]), false, true
	case strings.HasPrefix(rest, "[x] "), strings.HasPrefix(rest, "[X] "):
		return strings.TrimSpace(rest[4:]), true, true
	case rest == "[ ]":
		return "", false, true
	case rest == "[x]", rest == "[X]":
		return "", true, true
	}
	return "", false, false
}

// checkLine rewrites an unchecked checkbox line as checked, preserving
// indentation and the list marker.
func checkLine(line string) string {
	if i := strings.Index(line, "[ ]"); i != -1 {
		return line[:i] + "[x]" + line[i+3:]
	}
	return line
}
