// Package report writes the results of a login run to disk.
//
// Layout of an output directory:
//
//	report.json             run result with per-step status
//	junit.xml               one testcase for CI dashboards
//	report.html             single page with steps, screenshot and source
//	allure-results/         Allure result, categories and environment
//	assets/page-source.xml  page source captured on failure
//	assets/failure.png      screenshot captured on failure
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// Version of the report.json layout.
const Version = "1.0.0"

// File names inside an output directory.
const (
	IndexFile      = "report.json"
	JUnitFile      = "junit.xml"
	AssetsDir      = "assets"
	PageSourceFile = "page-source.xml"
	ScreenshotFile = "failure.png"
)

// Index is the content of report.json.
type Index struct {
	Version string `json:"version"`
	*core.RunResult
}

// Write saves every report artifact for result into outputDir.
// Assets are written first so report.json can reference them.
func Write(outputDir string, result *core.RunResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := saveAssets(outputDir, result); err != nil {
		return err
	}

	if err := atomicWriteJSON(filepath.Join(outputDir, IndexFile), Index{Version: Version, RunResult: result}); err != nil {
		return fmt.Errorf("write %s: %w", IndexFile, err)
	}

	if err := WriteJUnit(filepath.Join(outputDir, JUnitFile), result); err != nil {
		return fmt.Errorf("write %s: %w", JUnitFile, err)
	}

	if err := GenerateHTML(outputDir, HTMLConfig{EmbedAssets: true}); err != nil {
		logger.Warn("html report not generated: %v", err)
	}

	if err := GenerateAllure(outputDir); err != nil {
		// Allure output is optional; report.json and junit.xml are enough for CI.
		logger.Warn("allure results not generated: %v", err)
	}

	logger.Info("report written to %s", outputDir)
	return nil
}

// Read loads report.json from outputDir.
func Read(outputDir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IndexFile, err)
	}

	index := &Index{RunResult: &core.RunResult{}}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFile, err)
	}
	return index, nil
}

// saveAssets writes the captured page source and screenshot and records
// them as attachments. Nothing is written for a run without artifacts.
func saveAssets(outputDir string, result *core.RunResult) error {
	if result.PageSource == "" && len(result.Screenshot) == 0 {
		return nil
	}

	assetsDir := filepath.Join(outputDir, AssetsDir)
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}

	result.Attachments = result.Attachments[:0]
	if result.PageSource != "" {
		if err := os.WriteFile(filepath.Join(assetsDir, PageSourceFile), []byte(result.PageSource), 0o644); err != nil {
			return fmt.Errorf("write page source: %w", err)
		}
		result.Attachments = append(result.Attachments, core.Attachment{
			Type: "page-source",
			Path: filepath.Join(AssetsDir, PageSourceFile),
		})
	}
	if len(result.Screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(assetsDir, ScreenshotFile), result.Screenshot, 0o644); err != nil {
			return fmt.Errorf("write screenshot: %w", err)
		}
		result.Attachments = append(result.Attachments, core.Attachment{
			Type: "screenshot",
			Path: filepath.Join(AssetsDir, ScreenshotFile),
		})
	}
	return nil
}

// atomicWriteJSON writes v to a temp file next to path, then renames it, so
// readers never see a half-written report.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
