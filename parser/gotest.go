package parser

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"rig/model"
)

var (
	reGoElapsed  = regexp.MustCompile(`^(ok|FAIL)\s+\S+\s+([\d.]+)s`)
	reGoLocation = regexp.MustCompile(`^([^\s:]+_test\.go):(\d+):\s*(.*)$`)
)

// parseGoTest handles `go test` verbose console output. There is no
// structured attempt here: the default runner is line-oriented.
func parseGoTest(raw string) model.TestResults {
	var res model.TestResults
	var current *model.TestFailure

	flush := func() {
		if current != nil {
			current.Message = model.Truncate(strings.TrimRight(current.Message, "\n"))
			res.Failures = append(res.Failures, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "--- PASS: "):
			flush()
			res.Passed++
		case strings.HasPrefix(trimmed, "--- SKIP: "):
			flush()
			res.Skipped++
		case strings.HasPrefix(trimmed, "--- FAIL: "):
			flush()
			res.Failed++
			name := strings.TrimPrefix(trimmed, "--- FAIL: ")
			if idx := strings.Index(name, " ("); idx >= 0 {
				name = name[:idx]
			}
			current = &model.TestFailure{Name: name}
		default:
			if m := reGoElapsed.FindStringSubmatch(trimmed); m != nil {
				flush()
				if d, err := strconv.ParseFloat(m[2], 64); err == nil {
					res.Duration += d
				}
				continue
			}
			if current == nil {
				continue
			}
			// Indented file:line: message lines belong to the open
			// failure block.
			if m := reGoLocation.FindStringSubmatch(trimmed); m != nil {
				if current.File == "" {
					current.File = m[1]
					current.Line, _ = strconv.Atoi(m[2])
				}
				current.Message += m[3] + "\n"
			} else if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
				current.Message += trimmed + "\n"
			} else {
				flush()
			}
		}
	}
	flush()
	return res
}
