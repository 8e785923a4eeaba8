package core

import (
	"time"
)

// Attachment is a debug artifact written next to the report.
type Attachment struct {
	Type string `json:"type"` // page-source, screenshot
	Path string `json:"path"` // relative to the output directory
}

// StepResult captures the outcome of a single login step
type StepResult struct {
	// Identity
	Index int    `json:"index"` // 0-based position in the run
	Name  string `json:"name"`  // clearAppData, enterEmail, verifyLoginSuccess, ...

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunResult captures the outcome of one login run
type RunResult struct {
	Name       string     `json:"name"`
	DeviceID   string     `json:"deviceId"`
	AppPackage string     `json:"appPackage"`
	ServerURL  string     `json:"serverUrl"`
	SessionID  string     `json:"sessionId,omitempty"`
	Status     StepStatus `json:"status"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`
	WarnedSteps  int `json:"warnedSteps"`

	// Failure info
	Error       string       `json:"error,omitempty"`
	DebugSource string       `json:"debugSource,omitempty"` // page source prefix captured on failure
	Attachments []Attachment `json:"attachments,omitempty"`

	// Raw artifacts captured on failure, written by the reporter
	PageSource string `json:"-"`
	Screenshot []byte `json:"-"`
}

// ComputeSummary calculates step counts and the overall status from Steps
func (r *RunResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0
	r.WarnedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		case StatusWarned:
			r.WarnedSteps++
		}
	}

	switch {
	case r.FailedSteps > 0:
		r.Status = StatusFailed
	case r.TotalSteps == 0:
		r.Status = StatusPending
	default:
		r.Status = StatusPassed
	}
}

// Passed reports whether the run succeeded.
func (r *RunResult) Passed() bool {
	return r.Status == StatusPassed
}

// FirstFailure returns the first failed or errored step, or nil.
func (r *RunResult) FirstFailure() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed || r.Steps[i].Status == StatusErrored {
			return &r.Steps[i]
		}
	}
	return nil
}
