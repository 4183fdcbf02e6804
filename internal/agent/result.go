package agent

import (
	"encoding/json"
	"strings"
)

// claudeWrapper is the envelope emitted by the Claude CLI in json output
// mode. The contract object usually lives inside the result field.
type claudeWrapper struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// ParseResult extracts the agent's terminal result from its full output:
// the last syntactically valid contract object wins. When no object can
// be found, the permissive DefaultResult is returned together with a
// *ContractError so callers can log the degradation; it must never be
// treated as fatal.
func ParseResult(output string) (Result, error) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		candidates := candidateJSON(lines[i])
		for _, candidate := range candidates {
			if res, ok := tryResult(candidate); ok {
				return res, nil
			}
		}
	}

	// Fall back to a brace scan over the raw tail for agents that emit
	// pretty-printed (multi-line) JSON.
	if res, ok := tryResult(lastBraceStretch(output)); ok {
		return res, nil
	}

	return DefaultResult(), &ContractError{Reason: "no result object found in agent output"}
}

// candidateJSON returns the strings on a line that may hold the contract
// object: the line itself, and the payload of a Claude CLI envelope or
// assistant stream event wrapping it.
func candidateJSON(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || !strings.Contains(line, "{") {
		return nil
	}
	candidates := []string{stripMarkdownFences(line)}

	var wrapper claudeWrapper
	if err := json.Unmarshal([]byte(line), &wrapper); err == nil && wrapper.Type == "result" && !wrapper.IsError {
		candidates = append(candidates, stripMarkdownFences(wrapper.Result))
	}
	if texts := streamTextContent(line); len(texts) > 0 {
		for _, text := range texts {
			candidates = append(candidates, stripMarkdownFences(text))
		}
	}
	return candidates
}

// tryResult parses s as the contract object. Objects without a
// recognized status field are rejected so incidental JSON in the stream
// (tool payloads, telemetry) does not masquerade as the result.
func tryResult(s string) (Result, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !strings.HasPrefix(s, "{") {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		return Result{}, false
	}
	if res.Status != StatusDone && res.Status != StatusBlocked {
		return Result{}, false
	}
	return res, true
}

// lastBraceStretch returns the substring from the last top-level "{" to
// the final "}" in output, or empty when no such stretch exists.
func lastBraceStretch(output string) string {
	end := strings.LastIndex(output, "}")
	if end == -1 {
		return ""
	}
	depth := 0
	for i := end; i >= 0; i-- {
		switch output[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return output[i : end+1]
			}
		}
	}
	return ""
}

// stripMarkdownFences removes ```json fences the agent may wrap its
// result in.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if cut, found := strings.CutPrefix(s, "```json"); found {
		s = cut
	} else if cut, found := strings.CutPrefix(s, "```"); found {
		s = cut
	}
	if cut, found := strings.CutSuffix(s, "```"); found {
		s = cut
	}
	return strings.TrimSpace(s)
}

// quotaSignatures are substrings that identify a usage/rate limit in
// agent output. Matching any of them halts the orchestrator immediately.
var quotaSignatures = []string{
	"rate limit",
	"usage limit",
	"quota exceeded",
	"out of credits",
	"overloaded_error",
}

// IsQuotaSignal reports whether s carries a usage-limit signature.
func IsQuotaSignal(s string) bool {
	lower := strings.ToLower(s)
	for _, sig := range quotaSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
