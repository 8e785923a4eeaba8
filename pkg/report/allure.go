package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// AllureDir is the directory, relative to the output directory, that
// `allure generate` reads.
const AllureDir = "allure-results"

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// GenerateAllure converts report.json in reportDir into Allure results.
func GenerateAllure(reportDir string) error {
	index, err := Read(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, AllureDir)
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	result := buildAllureResult(index.RunResult)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal allure result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, result.UUID+"-result.json"), data, 0o644); err != nil {
		return fmt.Errorf("write allure result: %w", err)
	}

	for _, a := range index.Attachments {
		copyFile(filepath.Join(reportDir, a.Path), filepath.Join(allureDir, filepath.Base(a.Path)))
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index.RunResult)
}

func buildAllureResult(r *core.RunResult) AllureResult {
	start := r.StartTime.UnixMilli()

	labels := []AllureLabel{
		{Name: "suite", Value: r.AppPackage},
		{Name: "framework", Value: "appium"},
		{Name: "severity", Value: "critical"},
	}
	if r.DeviceID != "" {
		labels = append(labels, AllureLabel{Name: "host", Value: r.DeviceID})
	}

	var details AllureStatusDetails
	if r.Error != "" {
		details.Message = r.Error
		details.Trace = r.DebugSource
	}

	steps := make([]AllureStep, 0, len(r.Steps))
	for _, s := range r.Steps {
		stepStart := s.StartTime.UnixMilli()
		steps = append(steps, AllureStep{
			Name:          s.Name,
			Status:        mapAllureStatus(s.Status),
			Stage:         "finished",
			Start:         stepStart,
			Stop:          stepStart + s.Duration.Milliseconds(),
			StatusDetails: AllureStatusDetails{Message: s.Error},
		})
	}

	attachments := make([]AllureAttachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, AllureAttachment{
			Name:   a.Type,
			Source: filepath.Base(a.Path),
			Type:   mimeType(a.Path),
		})
	}

	historyID := fnv32aHash(r.AppPackage + ":" + r.Name)
	return AllureResult{
		UUID:          uuid.New().String(),
		HistoryID:     historyID,
		FullName:      r.AppPackage + "." + r.Name,
		Name:          r.Name,
		Status:        mapAllureStatus(r.Status),
		Stage:         "finished",
		Start:         start,
		Stop:          start + r.Duration.Milliseconds(),
		Labels:        labels,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   attachments,
	}
}

// mapAllureStatus maps a step status to an Allure status. Errored runs are
// "broken" in Allure terms; warned steps still count as passed.
func mapAllureStatus(s core.StepStatus) string {
	switch s {
	case core.StatusPassed, core.StatusWarned:
		return "passed"
	case core.StatusFailed:
		return "failed"
	case core.StatusErrored:
		return "broken"
	case core.StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".xml":
		return "application/xml"
	default:
		return "text/plain"
	}
}

// copyFile copies a single file from src to dst. A missing source is ignored.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		logger.Warn("failed to create %s: %v", dst, err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Login Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*login failed.*"},
		{Name: "Focused Input Missing", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*no focused input.*"},
		{Name: "Element Not Found", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?i).*element not found.*|.*no such element.*"},
		{Name: "Timeout", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*timed out.*"},
		{Name: "App Not Running", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*app failed to start.*"},
		{Name: "Automation Server", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*automation server.*|.*session could not be created.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	if err := os.WriteFile(filepath.Join(allureDir, "categories.json"), data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, r *core.RunResult) error {
	var b strings.Builder
	b.WriteString("framework=appium\n")
	b.WriteString("automation=UiAutomator2\n")
	if r.DeviceID != "" {
		b.WriteString(fmt.Sprintf("device.serial=%s\n", r.DeviceID))
	}
	if r.AppPackage != "" {
		b.WriteString(fmt.Sprintf("app.package=%s\n", r.AppPackage))
	}
	if r.ServerURL != "" {
		b.WriteString(fmt.Sprintf("appium.url=%s\n", r.ServerURL))
	}

	if err := os.WriteFile(filepath.Join(allureDir, "environment.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}
