// Package bootstrap builds the shell program the main test container
// runs: clone the branch, install dependencies for whichever manifest the
// project carries, wait out the sidecar grace period, then hand off to
// the caller's test command.
package bootstrap

import (
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

const workDir = "/tmp/rig-workspace"

// Build returns a /bin/sh program for one test run. The test command's
// exit status becomes the script's exit status; nothing in the script
// swallows it.
func Build(repoURL, branch, testCommand string, graceSeconds int) string {
	repo := shellescape.Quote(repoURL)
	ref := shellescape.Quote(branch)

	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")

	// Shallow clone of the named branch, falling back to the default
	// branch when the ref does not exist.
	if branch != "" {
		fmt.Fprintf(&b, "git clone --depth 1 --branch %s %s %s || git clone --depth 1 %s %s\n",
			ref, repo, workDir, repo, workDir)
	} else {
		fmt.Fprintf(&b, "git clone --depth 1 %s %s\n", repo, workDir)
	}
	fmt.Fprintf(&b, "cd %s\n", workDir)

	// Install for the first manifest found, in this order only.
	b.WriteString("if [ -f package.json ]; then\n")
	b.WriteString("  npm ci || npm install\n")
	b.WriteString("elif [ -f requirements.txt ]; then\n")
	b.WriteString("  pip install -r requirements.txt\n")
	b.WriteString("elif [ -f go.mod ]; then\n")
	b.WriteString("  go mod download\n")
	b.WriteString("fi\n")

	// Fixed delay for sidecar startup; there is no readiness probe.
	if graceSeconds > 0 {
		fmt.Fprintf(&b, "sleep %d\n", graceSeconds)
	}

	fmt.Fprintf(&b, "exec sh -c %s\n", shellescape.Quote(testCommand))
	return b.String()
}
