package parser

import (
	"regexp"
	"strconv"
	"strings"

	"rig/model"
)

// Shapes from jest's --json reporter.
type jestReport struct {
	NumPassedTests  int `json:"numPassedTests"`
	NumFailedTests  int `json:"numFailedTests"`
	NumPendingTests int `json:"numPendingTests"`
	NumTotalTests   int `json:"numTotalTests"`
	TestResults     []struct {
		Name             string `json:"name"`
		AssertionResults []struct {
			FullName        string   `json:"fullName"`
			Title           string   `json:"title"`
			Status          string   `json:"status"`
			FailureMessages []string `json:"failureMessages"`
		} `json:"assertionResults"`
	} `json:"testResults"`
}

var (
	reJestSummary  = regexp.MustCompile(`(?m)^Tests:\s+(.+)$`)
	reJestCount    = regexp.MustCompile(`(\d+) (passed|failed|skipped|todo)`)
	reJestTime     = regexp.MustCompile(`Time:\s+([\d.]+)\s*s`)
	reJestFailure  = regexp.MustCompile(`(?m)^\s*[●✕] (.+)$`)
	reJestLocation = regexp.MustCompile(`\(?([^\s():]+\.[jt]sx?):(\d+)(?::\d+)?\)?`)
)

func parseJest(raw string) model.TestResults {
	var rep jestReport
	if extractJSON(raw, "numTotalTests", &rep) && rep.NumTotalTests > 0 {
		res := model.TestResults{
			Passed:   rep.NumPassedTests,
			Failed:   rep.NumFailedTests,
			Skipped:  rep.NumPendingTests,
			Duration: jestDuration(raw),
		}
		for _, suite := range rep.TestResults {
			for _, a := range suite.AssertionResults {
				if a.Status != "failed" {
					continue
				}
				name := a.FullName
				if name == "" {
					name = a.Title
				}
				msg := strings.Join(a.FailureMessages, "\n")
				res.Failures = append(res.Failures, model.TestFailure{
					Name:    name,
					File:    suite.Name,
					Line:    jestLine(msg),
					Message: model.Truncate(msg),
				})
			}
		}
		return res
	}
	return parseJestConsole(raw)
}

// parseJestConsole handles jest's default human-readable reporter.
func parseJestConsole(raw string) model.TestResults {
	var res model.TestResults
	if m := reJestSummary.FindStringSubmatch(raw); m != nil {
		for _, c := range reJestCount.FindAllStringSubmatch(m[1], -1) {
			n, _ := strconv.Atoi(c[1])
			switch c[2] {
			case "passed":
				res.Passed = n
			case "failed":
				res.Failed = n
			case "skipped", "todo":
				res.Skipped += n
			}
		}
	}
	res.Duration = jestDuration(raw)

	// Per-failure blocks open with a ● (or ✕) line and run until the
	// next block or the summary.
	matches := reJestFailure.FindAllStringSubmatchIndex(raw, -1)
	seen := make(map[string]bool)
	for i, m := range matches {
		name := strings.TrimSpace(raw[m[2]:m[3]])
		if name == "" || strings.HasPrefix(name, "Console") || seen[name] {
			continue
		}
		seen[name] = true
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := raw[m[1]:end]
		if idx := strings.Index(block, "\nTests:"); idx >= 0 {
			block = block[:idx]
		}
		f := model.TestFailure{
			Name:    name,
			Message: model.Truncate(strings.TrimSpace(block)),
		}
		if loc := reJestLocation.FindStringSubmatch(block); loc != nil {
			f.File = loc[1]
			f.Line, _ = strconv.Atoi(loc[2])
		}
		res.Failures = append(res.Failures, f)
	}
	return res
}

func jestDuration(raw string) float64 {
	if m := reJestTime.FindStringSubmatch(raw); m != nil {
		if d, err := strconv.ParseFloat(m[1], 64); err == nil {
			return d
		}
	}
	return 0.0
}

func jestLine(msg string) int {
	if loc := reJestLocation.FindStringSubmatch(msg); loc != nil {
		n, _ := strconv.Atoi(loc[2])
		return n
	}
	return 0
}
