package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// HTMLFile is the self-contained report page written next to report.json.
const HTMLFile = "report.html"

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file (default: <reportDir>/report.html)
	EmbedAssets bool   // Inline the failure screenshot so the page can be mailed around
	Title       string // Report title (default: "Login Report")
}

// GenerateHTML renders report.json in reportDir as a single HTML page.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, err := Read(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = "Login Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, HTMLFile)
	}

	html, err := renderHTML(buildHTMLData(index, reportDir, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title       string
	GeneratedAt string
	Index       *Index
	StatusClass string
	DurationStr string
	Steps       []StepHTMLData
	Screenshot  template.URL // data URI or path relative to the page
	PageSource  string       // path relative to the page
}

// StepHTMLData contains step data formatted for HTML.
type StepHTMLData struct {
	core.StepResult
	StatusClass string
	DurationStr string
}

func buildHTMLData(index *Index, reportDir string, cfg HTMLConfig) HTMLData {
	steps := make([]StepHTMLData, len(index.Steps))
	for i, s := range index.Steps {
		steps[i] = StepHTMLData{
			StepResult:  s,
			StatusClass: s.Status.String(),
			DurationStr: formatDuration(s.Duration),
		}
	}

	data := HTMLData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Index:       index,
		StatusClass: index.Status.String(),
		DurationStr: formatDuration(index.Duration),
		Steps:       steps,
	}

	for _, a := range index.Attachments {
		switch a.Type {
		case "screenshot":
			// Attachment paths are written by saveAssets, not user input.
			data.Screenshot = template.URL(filepath.ToSlash(a.Path))
			if cfg.EmbedAssets {
				data.Screenshot = template.URL(loadAsBase64(filepath.Join(reportDir, a.Path)))
			}
		case "page-source":
			data.PageSource = filepath.ToSlash(a.Path)
		}
	}
	return data
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType(path), base64.StdEncoding.EncodeToString(data))
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #000000;
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --failed: #ef4444;
            --failed-bg: rgba(239, 68, 68, 0.08);
            --skipped: #eab308;
            --pending: #6b7280;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: var(--bg-secondary); color: var(--text-primary); }
        .header { background: var(--bg-primary); border-bottom: 1px solid var(--border-color); padding: 16px 24px; display: flex; justify-content: space-between; align-items: center; }
        .header-title-main { font-size: 18px; font-weight: 600; }
        .header-title-sub { font-size: 12px; color: var(--text-muted); margin-left: 8px; }
        .badge { padding: 4px 12px; border-radius: 999px; font-weight: 600; color: #fff; }
        .badge.passed { background: var(--passed); }
        .badge.failed { background: var(--failed); }
        .badge.pending { background: var(--pending); }
        .main-container { max-width: 1100px; margin: 24px auto; padding: 0 24px; }
        .env-card { display: grid; grid-template-columns: repeat(4, 1fr); gap: 12px; background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 8px; padding: 16px; margin-bottom: 16px; }
        .env-label { display: block; font-size: 11px; text-transform: uppercase; color: var(--text-muted); }
        .env-value { font-size: 14px; word-break: break-all; }
        .error-box { background: var(--failed-bg); border: 1px solid var(--failed); border-radius: 8px; padding: 12px 16px; margin-bottom: 16px; white-space: pre-wrap; }
        .command-list { background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 8px; }
        .command { display: flex; gap: 12px; padding: 10px 16px; border-bottom: 1px solid var(--border-color); align-items: baseline; }
        .command:last-child { border-bottom: none; }
        .command.failed, .command.errored { background: var(--failed-bg); }
        .status-dot { width: 10px; height: 10px; border-radius: 50%; flex: none; background: var(--pending); }
        .status-dot.passed { background: var(--passed); }
        .status-dot.warned, .status-dot.skipped { background: var(--skipped); }
        .status-dot.failed, .status-dot.errored { background: var(--failed); }
        .command-name { font-family: monospace; min-width: 200px; }
        .command-message { flex: 1; color: var(--text-muted); }
        .command-error { color: var(--failed); }
        .command-duration { font-size: 12px; color: var(--text-muted); }
        .debug { margin-top: 16px; display: grid; grid-template-columns: 320px 1fr; gap: 16px; }
        .debug img { width: 100%; border: 1px solid var(--border-color); border-radius: 8px; }
        .debug pre { background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 8px; padding: 12px; overflow: auto; max-height: 640px; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <div class="header-title">
            <span class="header-title-main">{{.Title}}</span>
            <span class="header-title-sub">{{.GeneratedAt}}</span>
        </div>
        <span class="badge {{.StatusClass}}">{{.StatusClass}}</span>
    </div>

    <div class="main-container">
        <div class="env-card">
            <div><span class="env-label">Device</span><span class="env-value">{{.Index.DeviceID}}</span></div>
            <div><span class="env-label">App</span><span class="env-value">{{.Index.AppPackage}}</span></div>
            <div><span class="env-label">Appium</span><span class="env-value">{{.Index.ServerURL}}</span></div>
            <div><span class="env-label">Duration</span><span class="env-value">{{.DurationStr}} ({{.Index.PassedSteps}}/{{.Index.TotalSteps}} steps passed)</span></div>
        </div>

        {{if .Index.Error}}<div class="error-box">{{.Index.Error}}</div>{{end}}

        <div class="command-list">
            {{range .Steps}}
            <div class="command {{.StatusClass}}">
                <span class="status-dot {{.StatusClass}}"></span>
                <span class="command-name">{{.Name}}</span>
                <span class="command-message">{{.Message}}{{if .Error}} <span class="command-error">{{.Error}}</span>{{end}}</span>
                <span class="command-duration">{{.DurationStr}}</span>
            </div>
            {{end}}
        </div>

        {{if or .Screenshot .Index.DebugSource}}
        <div class="debug">
            <div>{{if .Screenshot}}<img src="{{.Screenshot}}" alt="Screen at failure">{{end}}</div>
            <div>
                {{if .Index.DebugSource}}<pre>{{.Index.DebugSource}}</pre>{{end}}
                {{if .PageSource}}<p><a href="{{.PageSource}}">Full page source</a></p>{{end}}
            </div>
        </div>
        {{end}}
    </div>
</body>
</html>
`
