package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jestConsole = `PASS src/math.test.js
FAIL src/app.test.js
  ● App › renders the header

    expect(received).toBe(expected)

    Expected: "Hello"
    Received: "Hola"

      at Object.<anonymous> (src/app.test.js:14:23)

Test Suites: 1 failed, 1 passed, 2 total
Tests:       3 passed, 1 failed, 4 total
Snapshots:   0 total
Time:        2.5 s
Ran all test suites.
`

const pytestConsole = `============================= test session starts ==============================
collected 8 items

tests/test_auth.py ..F.s                                                  [ 62%]
tests/test_api.py ..s                                                     [100%]

=================================== FAILURES ===================================
________________________________ test_login ___________________________________

    def test_login():
>       assert resp.status_code == 200
E       assert 401 == 200

tests/test_auth.py:42: AssertionError
=========================== short test summary info ============================
FAILED tests/test_auth.py::test_login - assert 401 == 200
========================= 5 passed, 1 failed, 2 skipped in 2.34s =========================
`

const goTestConsole = `=== RUN   TestA
--- PASS: TestA (0.01s)
=== RUN   TestC
--- PASS: TestC (0.02s)
=== RUN   TestB
--- FAIL: TestB (0.00s)
    b_test.go:12: expected 4, got 5
FAIL
ok  	pkg	1.234s
`

func TestParseJestConsole(t *testing.T) {
	res := Parse(jestConsole, FrameworkJest)

	assert.Equal(t, 3, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 2.5, res.Duration)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "App › renders the header", f.Name)
	assert.Equal(t, "src/app.test.js", f.File)
	assert.Equal(t, 14, f.Line)
	assert.Contains(t, f.Message, `Expected: "Hello"`)
}

func TestParseJestJSON(t *testing.T) {
	raw := `{"numTotalTests":4,"numPassedTests":3,"numFailedTests":1,"numPendingTests":0,` +
		`"testResults":[{"name":"/app/src/app.test.js","assertionResults":[` +
		`{"fullName":"App renders","title":"renders","status":"failed",` +
		`"failureMessages":["expect(received).toBe(expected)\n    at Object.<anonymous> (src/app.test.js:14:23)"]}]}]}`

	res := Parse(raw, FrameworkJest)

	assert.Equal(t, 3, res.Passed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "App renders", res.Failures[0].Name)
	assert.Equal(t, 14, res.Failures[0].Line)
}

func TestParsePytestConsole(t *testing.T) {
	res := Parse(pytestConsole, FrameworkPytest)

	assert.Equal(t, 5, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2.34, res.Duration)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "test_login", f.Name)
	assert.Equal(t, "tests/test_auth.py", f.File)
	assert.Equal(t, 42, f.Line)
	assert.Contains(t, f.Message, "assert 401 == 200")
}

func TestParsePytestJSONReport(t *testing.T) {
	raw := `some preamble
{"duration": 3.21, "summary": {"passed": 2, "failed": 1, "skipped": 0, "total": 3},
 "tests": [
   {"nodeid": "tests/test_x.py::test_ok", "outcome": "passed"},
   {"nodeid": "tests/test_x.py::test_bad", "outcome": "failed",
    "call": {"longrepr": "assert 1 == 2", "crash": {"path": "tests/test_x.py", "lineno": 7, "message": "assert 1 == 2"}}}
 ]}`

	res := Parse(raw, FrameworkPytest)

	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3.21, res.Duration)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "test_bad", res.Failures[0].Name)
	assert.Equal(t, "tests/test_x.py", res.Failures[0].File)
	assert.Equal(t, 7, res.Failures[0].Line)
}

func TestParseGoTest(t *testing.T) {
	res := Parse(goTestConsole, FrameworkGoTest)

	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1.234, res.Duration)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "TestB", f.Name)
	assert.Equal(t, "b_test.go", f.File)
	assert.Equal(t, 12, f.Line)
	assert.Contains(t, f.Message, "expected 4, got 5")
}

func TestParseGoTestSkips(t *testing.T) {
	raw := "--- PASS: TestA (0.00s)\n--- SKIP: TestSlow (0.00s)\nok  \tpkg\t0.1s\n"
	res := Parse(raw, FrameworkGoTest)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Skipped)
}

func TestSniff(t *testing.T) {
	assert.Equal(t, FrameworkGoTest, Sniff(goTestConsole))
	assert.Equal(t, FrameworkPytest, Sniff(pytestConsole))
	assert.Equal(t, FrameworkJest, Sniff(jestConsole))
}

func TestParseSniffsWithoutHint(t *testing.T) {
	res := Parse(pytestConsole, "")
	assert.Equal(t, 5, res.Passed)
}

func TestParseNeverFails(t *testing.T) {
	inputs := []string{
		"",
		"complete garbage",
		`{"numTotalTests": "not a number"}`,
		strings.Repeat("{", 1000),
		"Tests: banana passed",
	}
	for _, raw := range inputs {
		for _, hint := range []Framework{FrameworkJest, FrameworkPytest, FrameworkGoTest, ""} {
			res := Parse(raw, hint)
			assert.GreaterOrEqual(t, res.Passed, 0)
			assert.GreaterOrEqual(t, res.Failed, 0)
			assert.GreaterOrEqual(t, res.Skipped, 0)
			assert.Empty(t, res.Failures)
		}
	}
}

func TestParseIdempotent(t *testing.T) {
	for _, raw := range []string{jestConsole, pytestConsole, goTestConsole} {
		first := Parse(raw, "")
		second := Parse(raw, "")
		assert.Equal(t, first, second)
	}
}

func TestFailureMessageTruncated(t *testing.T) {
	long := strings.Repeat("x", 5000)
	raw := "--- FAIL: TestHuge (0.00s)\n    huge_test.go:1: " + long + "\nFAIL\tpkg\t0.1s\n"
	res := Parse(raw, FrameworkGoTest)
	require.Len(t, res.Failures, 1)
	assert.Less(t, len(res.Failures[0].Message), 2100)
}
