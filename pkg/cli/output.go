package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/applogin-e2e/pkg/config"
	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/report"
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Passed steps slower than this are shown in yellow. The login step waits 8s by default.
const slowThresholdMs = 10000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printRunHeader(cfg *config.Config) {
	fmt.Println()
	fmt.Printf("  %sapplogin-e2e %s%s\n", color(colorBold), Version, color(colorReset))
	fmt.Printf("  %s%s%s on %s via %s\n",
		color(colorCyan), cfg.App.Package, color(colorReset), cfg.Device, cfg.AppiumURL)
	fmt.Println(strings.Repeat("─", 60))
}

func printSetupWarning(msg string) {
	fmt.Printf("  %s⚠%s %s\n", color(colorYellow), color(colorReset), msg)
}

// onStepComplete prints one line per finished step.
func onStepComplete(step core.StepResult) {
	durationMs := step.Duration.Milliseconds()
	durStr := formatDuration(durationMs)

	switch step.Status {
	case core.StatusPassed:
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if durationMs >= slowThresholdMs {
			durColor = color(colorYellow)
		}
		fmt.Printf("    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), step.Name, durColor, durStr, color(colorReset))
	case core.StatusWarned:
		fmt.Printf("    %s⚠%s %s (%s)\n", color(colorYellow), color(colorReset), step.Name, durStr)
		if step.Error != "" {
			fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), step.Error)
		}
	case core.StatusSkipped:
		fmt.Printf("    %s-%s %s%s%s\n", color(colorCyan), color(colorReset), color(colorGray), step.Name, color(colorReset))
	default:
		fmt.Printf("    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), step.Name, durStr)
		if step.Error != "" {
			fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), step.Error)
		}
	}
}

// printDebugInfo prints the page source prefix captured at the failure.
func printDebugInfo(result *core.RunResult, limit int) {
	if result.DebugSource == "" {
		return
	}
	fmt.Println()
	if limit > 0 {
		fmt.Printf("  %sDebug info: page source (first %d characters)%s\n", color(colorBold), limit, color(colorReset))
	} else {
		fmt.Printf("  %sDebug info: page source%s\n", color(colorBold), color(colorReset))
	}
	fmt.Println(result.DebugSource)
}

func printSummary(result *core.RunResult) {
	fmt.Println()
	if result.PassedSteps > 0 {
		fmt.Printf("  %s%d steps passing%s (%s)\n",
			color(colorGreen), result.PassedSteps, color(colorReset), formatDuration(result.Duration.Milliseconds()))
	}
	if result.WarnedSteps > 0 {
		fmt.Printf("  %s%d steps warned%s\n", color(colorYellow), result.WarnedSteps, color(colorReset))
	}
	if result.FailedSteps > 0 {
		fmt.Printf("  %s%d steps failing%s\n", color(colorRed), result.FailedSteps, color(colorReset))
	}
	if result.SkippedSteps > 0 {
		fmt.Printf("  %s%d steps skipped%s\n", color(colorCyan), result.SkippedSteps, color(colorReset))
	}
	fmt.Println()

	if result.Passed() {
		fmt.Printf("  %s✓ LOGIN PASSED%s\n", color(colorGreen), color(colorReset))
	} else {
		fmt.Printf("  %s✗ LOGIN FAILED%s %s\n", color(colorRed), color(colorReset), failureMessage(result))
	}
	fmt.Println()
}

func printReports(outputDir string, result *core.RunResult) {
	fmt.Println("  Reports:")
	fmt.Printf("    JSON:   %s\n", filepath.Join(outputDir, report.IndexFile))
	fmt.Printf("    JUnit:  %s\n", filepath.Join(outputDir, report.JUnitFile))
	fmt.Printf("    HTML:   %s\n", filepath.Join(outputDir, report.HTMLFile))
	fmt.Printf("    Allure: %s\n", filepath.Join(outputDir, report.AllureDir))
	for _, a := range result.Attachments {
		fmt.Printf("    %-7s %s\n", a.Type+":", filepath.Join(outputDir, a.Path))
	}
	fmt.Println()
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
