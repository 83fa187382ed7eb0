package model

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPassed    Status = "PASSED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether an execution in this status will never
// transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError, StatusCancelled:
		return true
	}
	return false
}

// ExecutionRequest describes one requested test run. Immutable once
// submitted.
type ExecutionRequest struct {
	ProjectID      string            `json:"projectId,omitempty"`
	RepoURL        string            `json:"repoUrl"`
	Branch         string            `json:"branch,omitempty"`
	TestCommand    string            `json:"testCommand"`
	Image          string            `json:"image,omitempty"`
	Sidecars       []string          `json:"sidecars,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// Validate is the only synchronous failure path of ExecuteTestRun.
// Infrastructure faults after dispatch surface as terminal ERROR
// executions, never as returned errors.
func (r *ExecutionRequest) Validate() error {
	if r.RepoURL == "" {
		return fmt.Errorf("execution request: repo URL is required")
	}
	if r.TestCommand == "" {
		return fmt.Errorf("execution request: test command is required")
	}
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("execution request: timeout must be >= 0, got %d", r.TimeoutSeconds)
	}
	return nil
}

// Execution is the live or finished state of one test run. The invariant
// is that Status is terminal iff ExitCode or Error is populated.
type Execution struct {
	ID              string   `json:"id"`
	Handle          string   `json:"handle,omitempty"`
	Status          Status   `json:"status"`
	ExitCode        *int     `json:"exitCode,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	Stdout          string   `json:"stdout,omitempty"`
	Stderr          string   `json:"stderr,omitempty"`
	Error           string   `json:"error,omitempty"`
}
