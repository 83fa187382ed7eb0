package model

// MaxFailureMessage bounds the stored size of a single failure message.
const MaxFailureMessage = 2000

// TestResults is the framework-independent view of one test run's output.
// Derived purely from raw output; never mutated after construction.
type TestResults struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration float64       `json:"duration"`
	Failures []TestFailure `json:"failures,omitempty"`
}

// TestFailure describes a single failing test. File may be empty and Line
// may be 0 when the framework's output omits them.
type TestFailure struct {
	Name    string `json:"name"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message,omitempty"`
}

// Truncate bounds a failure message to MaxFailureMessage bytes.
func Truncate(msg string) string {
	if len(msg) <= MaxFailureMessage {
		return msg
	}
	return msg[:MaxFailureMessage] + "\n... (truncated)"
}
