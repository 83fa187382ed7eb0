package bootstrap

import (
	"strings"
	"testing"
)

func TestBuildClonesWithFallback(t *testing.T) {
	script := Build("https://example.com/app.git", "feature/x", "npm test", 0)

	if !strings.Contains(script, "git clone --depth 1 --branch feature/x https://example.com/app.git") {
		t.Errorf("missing branch clone:\n%s", script)
	}
	if !strings.Contains(script, "|| git clone --depth 1 https://example.com/app.git") {
		t.Errorf("missing default-branch fallback:\n%s", script)
	}
}

func TestBuildWithoutBranch(t *testing.T) {
	script := Build("https://example.com/app.git", "", "npm test", 0)

	if strings.Contains(script, "--branch") {
		t.Errorf("empty branch should not produce --branch:\n%s", script)
	}
}

func TestBuildManifestDetectionOrder(t *testing.T) {
	script := Build("https://example.com/app.git", "main", "make test", 0)

	node := strings.Index(script, "package.json")
	py := strings.Index(script, "requirements.txt")
	gomod := strings.Index(script, "go.mod")
	if node < 0 || py < 0 || gomod < 0 {
		t.Fatalf("missing manifest checks:\n%s", script)
	}
	if !(node < py && py < gomod) {
		t.Error("manifest checks out of order, want node then python then go")
	}
	// elif chains guarantee only the first match installs.
	if strings.Count(script, "elif") != 2 {
		t.Errorf("want a single if/elif chain:\n%s", script)
	}
}

func TestBuildPropagatesExitCode(t *testing.T) {
	script := Build("https://example.com/app.git", "main", "pytest -q", 0)

	if !strings.Contains(script, "exec sh -c 'pytest -q'") {
		t.Errorf("test command must run via exec so its exit code propagates:\n%s", script)
	}
	if strings.Contains(strings.SplitN(script, "exec sh -c", 2)[1], "\n") &&
		strings.TrimSpace(strings.SplitN(script, "exec sh -c", 2)[1]) != "'pytest -q'" {
		t.Errorf("nothing may follow the test command:\n%s", script)
	}
}

func TestBuildGracePeriod(t *testing.T) {
	with := Build("https://example.com/app.git", "main", "npm test", 7)
	if !strings.Contains(with, "sleep 7") {
		t.Errorf("missing grace sleep:\n%s", with)
	}
	without := Build("https://example.com/app.git", "main", "npm test", 0)
	if strings.Contains(without, "sleep") {
		t.Errorf("unexpected sleep with zero grace:\n%s", without)
	}
}

func TestBuildQuotesHostileInput(t *testing.T) {
	script := Build("https://example.com/app.git", "main; rm -rf /", "echo done", 0)

	if strings.Contains(script, "--branch main; rm") {
		t.Errorf("branch not quoted:\n%s", script)
	}
}
