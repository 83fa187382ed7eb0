// Package parser normalizes raw test-process output into a
// framework-independent TestResults. Parsing never fails: unparseable
// input yields a zero-valued result so the reporting layer can always
// render something.
package parser

import (
	"encoding/json"
	"strings"

	"rig/model"
)

// Framework identifies which family of test output a parser handles.
type Framework string

const (
	FrameworkJest   Framework = "jest"
	FrameworkPytest Framework = "pytest"
	FrameworkGoTest Framework = "gotest"
)

// Sniff guesses the framework from distinctive substrings when the caller
// supplies no hint.
func Sniff(raw string) Framework {
	switch {
	case strings.Contains(raw, "--- PASS:") || strings.Contains(raw, "--- FAIL:") ||
		strings.Contains(raw, "=== RUN"):
		return FrameworkGoTest
	case strings.Contains(raw, "passed") && (strings.Contains(raw, "pytest") ||
		strings.Contains(raw, "short test summary") || strings.Contains(raw, "= FAILURES =") ||
		strings.Contains(raw, "collected ")):
		return FrameworkPytest
	case strings.Contains(raw, "Tests:") || strings.Contains(raw, "Test Suites:") ||
		strings.Contains(raw, "Ran all test suites"):
		return FrameworkJest
	case strings.Contains(raw, " in ") && strings.Contains(raw, "passed"):
		return FrameworkPytest
	}
	return FrameworkJest
}

// Parse dispatches to the framework-specific parser. An empty hint sniffs
// the output. Parsing the same input twice yields identical results.
func Parse(raw string, hint Framework) model.TestResults {
	if hint == "" {
		hint = Sniff(raw)
	}
	switch hint {
	case FrameworkGoTest:
		return parseGoTest(raw)
	case FrameworkPytest:
		return parsePytest(raw)
	default:
		return parseJest(raw)
	}
}

// extractJSON locates a structured payload embedded in mixed output by
// taking the earliest '{' through the latest '}' and requiring the
// framework's signature key inside. Any unmarshal failure means the
// caller falls back to console parsing.
func extractJSON(raw, signature string, v any) bool {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return false
	}
	seg := raw[start : end+1]
	if !strings.Contains(seg, `"`+signature+`"`) {
		return false
	}
	return json.Unmarshal([]byte(seg), v) == nil
}
