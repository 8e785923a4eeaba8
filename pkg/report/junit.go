package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// JUnit schema types, as read by Jenkins, GitLab and GitHub test reporters.

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitTestCase `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitProblem `xml:"failure,omitempty"`
	Error     *junitProblem `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// WriteJUnit writes the run as a single JUnit testcase. An assertion
// failure becomes <failure>, anything else that stopped the run <error>.
func WriteJUnit(path string, result *core.RunResult) error {
	data, err := buildJUnit(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func buildJUnit(result *core.RunResult) ([]byte, error) {
	seconds := fmt.Sprintf("%.3f", result.Duration.Seconds())

	tc := junitTestCase{
		Name:      result.Name,
		ClassName: result.AppPackage,
		Time:      seconds,
		SystemOut: stepLog(result),
	}

	var failures, errored int
	if f := result.FirstFailure(); f != nil {
		problem := &junitProblem{
			Message: f.Error,
			Type:    f.Category.String(),
			Body:    failureBody(f, result),
		}
		if f.Status == core.StatusFailed {
			tc.Failure = problem
			failures = 1
		} else {
			tc.Error = problem
			errored = 1
		}
	}

	suite := junitTestSuite{
		Name:      result.AppPackage,
		Tests:     1,
		Failures:  failures,
		Errors:    errored,
		Time:      seconds,
		Timestamp: result.StartTime.Format("2006-01-02T15:04:05"),
		Properties: []junitProperty{
			{Name: "device", Value: result.DeviceID},
			{Name: "server", Value: result.ServerURL},
			{Name: "session", Value: result.SessionID},
		},
		Cases: []junitTestCase{tc},
	}

	doc := junitTestSuites{
		Name:     "applogin-e2e",
		Tests:    1,
		Failures: failures,
		Errors:   errored,
		Time:     seconds,
		Suites:   []junitTestSuite{suite},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal junit: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// stepLog renders one line per step for <system-out>.
func stepLog(result *core.RunResult) string {
	var b strings.Builder
	for _, s := range result.Steps {
		fmt.Fprintf(&b, "[%s] %s (%dms)", s.Status, s.Name, s.Duration.Milliseconds())
		if s.Message != "" {
			b.WriteString(" " + s.Message)
		}
		if s.Error != "" {
			b.WriteString(": " + s.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func failureBody(f *core.StepResult, result *core.RunResult) string {
	body := fmt.Sprintf("step %s: %s", f.Name, f.Error)
	if result.DebugSource != "" {
		body += "\n\npage source:\n" + result.DebugSource
	}
	return body
}
