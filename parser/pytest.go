package parser

import (
	"regexp"
	"strconv"
	"strings"

	"rig/model"
)

// Shapes from pytest-json-report.
type pytestReport struct {
	Duration float64 `json:"duration"`
	Summary  struct {
		Passed  int `json:"passed"`
		Failed  int `json:"failed"`
		Skipped int `json:"skipped"`
		Total   int `json:"total"`
	} `json:"summary"`
	Tests []struct {
		NodeID  string `json:"nodeid"`
		Outcome string `json:"outcome"`
		Call    *struct {
			Longrepr string `json:"longrepr"`
			Crash    *struct {
				Path    string `json:"path"`
				Lineno  int    `json:"lineno"`
				Message string `json:"message"`
			} `json:"crash"`
		} `json:"call"`
	} `json:"tests"`
}

var (
	rePytestPassed   = regexp.MustCompile(`(\d+) passed`)
	rePytestFailed   = regexp.MustCompile(`(\d+) failed`)
	rePytestSkipped  = regexp.MustCompile(`(\d+) skipped`)
	rePytestErrors   = regexp.MustCompile(`(\d+) error`)
	rePytestDuration = regexp.MustCompile(`in ([\d.]+)s`)
	rePytestFailLine = regexp.MustCompile(`(?m)^FAILED ([^\s]+?)::(\S+?)(?:\s+-\s+(.*))?$`)
)

func parsePytest(raw string) model.TestResults {
	var rep pytestReport
	if extractJSON(raw, "summary", &rep) && rep.Summary.Total > 0 {
		res := model.TestResults{
			Passed:   rep.Summary.Passed,
			Failed:   rep.Summary.Failed,
			Skipped:  rep.Summary.Skipped,
			Duration: rep.Duration,
		}
		for _, t := range rep.Tests {
			if t.Outcome != "failed" {
				continue
			}
			file, name := splitNodeID(t.NodeID)
			f := model.TestFailure{Name: name, File: file}
			if t.Call != nil {
				f.Message = model.Truncate(t.Call.Longrepr)
				if t.Call.Crash != nil {
					f.Line = t.Call.Crash.Lineno
					if f.Message == "" {
						f.Message = model.Truncate(t.Call.Crash.Message)
					}
				}
			}
			res.Failures = append(res.Failures, f)
		}
		return res
	}
	return parsePytestConsole(raw)
}

// parsePytestConsole handles pytest's default console reporter: the final
// "N passed, N failed in T s" summary plus the short-summary FAILED lines.
func parsePytestConsole(raw string) model.TestResults {
	var res model.TestResults
	if m := rePytestPassed.FindStringSubmatch(raw); m != nil {
		res.Passed, _ = strconv.Atoi(m[1])
	}
	if m := rePytestFailed.FindStringSubmatch(raw); m != nil {
		res.Failed, _ = strconv.Atoi(m[1])
	}
	if m := rePytestSkipped.FindStringSubmatch(raw); m != nil {
		res.Skipped, _ = strconv.Atoi(m[1])
	}
	if m := rePytestErrors.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		res.Failed += n
	}
	if m := rePytestDuration.FindStringSubmatch(raw); m != nil {
		res.Duration, _ = strconv.ParseFloat(m[1], 64)
	}

	for _, m := range rePytestFailLine.FindAllStringSubmatch(raw, -1) {
		f := model.TestFailure{
			Name: m[2],
			File: m[1],
		}
		if len(m) > 3 {
			f.Message = model.Truncate(m[3])
		}
		f.Line = pytestLine(raw, f.File)
		res.Failures = append(res.Failures, f)
	}
	return res
}

// pytestLine finds the first traceback reference to the failing file,
// e.g. "tests/test_app.py:42: AssertionError". Best-effort.
func pytestLine(raw, file string) int {
	if file == "" {
		return 0
	}
	re, err := regexp.Compile(regexp.QuoteMeta(file) + `:(\d+)`)
	if err != nil {
		return 0
	}
	if m := re.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func splitNodeID(nodeID string) (file, name string) {
	parts := strings.SplitN(nodeID, "::", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", nodeID
}
