package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/applogin-e2e/pkg/config"
	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/device"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
	"github.com/devicelab-dev/applogin-e2e/pkg/report"
	"github.com/devicelab-dev/applogin-e2e/pkg/scenario"
)

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the login check once",
		Description: `Clear the app, start a session, log in and verify the result.

Settings are merged in this order, later wins:
  built-in defaults < login.yaml (or --config) < LOGIN_EMAIL/LOGIN_PASSWORD < flags

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  applogin-e2e run
  applogin-e2e run --app-package com.example --app-activity .MainActivity --success-text "Welcome"
  LOGIN_PASSWORD=secret applogin-e2e run --email me@example.com
  applogin-e2e run --no-delays --wait-timeout 30s`,
		Flags: []cli.Flag{
			// Configuration
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to login.yaml (default: ./login.yaml if present)",
			},

			// App under test
			&cli.StringFlag{
				Name:  "app-package",
				Usage: "Android package of the app under test",
			},
			&cli.StringFlag{
				Name:  "app-activity",
				Usage: "Activity to launch",
			},

			// Credentials
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Email or phone number to log in with",
				EnvVars: []string{config.EnvEmail},
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Password to log in with",
				EnvVars: []string{config.EnvPassword},
			},

			// Verification
			&cli.StringFlag{
				Name:  "success-text",
				Usage: "Text the page source must contain after login",
			},
			&cli.DurationFlag{
				Name:  "wait-timeout",
				Usage: "Max wait for elements to appear or become clickable",
			},

			// Output directory
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output directory for reports (default: ./reports)",
			},
			&cli.BoolFlag{
				Name:  "flatten",
				Usage: "Don't create timestamp subfolder (requires --output)",
			},

			&cli.BoolFlag{
				Name:  "no-delays",
				Usage: "Skip the fixed pauses between steps",
			},
		},
		Action: runLogin,
	}
}

// Injected by tests.
var (
	newSession scenario.SessionFactory = scenario.AppiumSession
	newBridge                          = func(serial string) (scenario.DeviceBridge, error) {
		return device.New(serial)
	}
)

func runLogin(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	return executeLogin(c.Context, cfg, outputDir, c.Bool("verbose"))
}

// buildConfig merges defaults, the config file, credential env vars and
// flags. Flags bound to env vars (ANDROID_SERIAL, APPIUM_URL) count as set
// when only the env var is present.
func buildConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)

	// Empty values leave the merged setting alone, like empty env vars.
	setString := func(flag string, dst *string) {
		if v := c.String(flag); c.IsSet(flag) && v != "" {
			*dst = v
		}
	}
	setString("device", &cfg.Device)
	setString("appium-url", &cfg.AppiumURL)
	setString("app-package", &cfg.App.Package)
	setString("app-activity", &cfg.App.Activity)
	setString("email", &cfg.Credentials.Email)
	setString("password", &cfg.Credentials.Password)
	setString("success-text", &cfg.Success.Text)

	if c.IsSet("wait-timeout") {
		cfg.WaitTimeout = c.Duration("wait-timeout")
	}
	if c.Bool("no-delays") {
		cfg.DisableDelays()
	}
	return cfg, nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

func executeLogin(ctx context.Context, cfg *config.Config, outputDir string, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Create output directory
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	logPath := filepath.Join(outputDir, "applogin.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	logger.SetVerbose(verbose)

	logger.Info("=== Login check started ===")
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Device: %s, app: %s/%s", cfg.Device, cfg.App.Package, cfg.App.Activity)
	logger.Info("Appium: %s", cfg.AppiumURL)

	// Ctrl+C cancels the run; the runner still quits the session.
	// A second Ctrl+C gets the default handling and kills the process.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	// 3. Device bridge (optional)
	var bridge scenario.DeviceBridge
	if b, err := newBridge(cfg.Device); err != nil {
		logger.Warn("device bridge unavailable: %v", err)
		printSetupWarning(fmt.Sprintf("adb unavailable, app data will not be reset: %v", err))
	} else {
		bridge = b
	}

	// 4. Run
	printRunHeader(cfg)
	runner := scenario.New(cfg, bridge, newSession, scenario.WithStepCallback(onStepComplete))
	result := runner.Run(ctx)

	if !result.Passed() {
		printDebugInfo(result, cfg.DebugSourceLimit)
	}
	printSummary(result)

	// 5. Reports
	logger.Info("Generating reports...")
	if err := report.Write(outputDir, result); err != nil {
		fmt.Printf("  %s⚠%s Warning: failed to write reports: %v\n", color(colorYellow), color(colorReset), err)
	} else {
		printReports(outputDir, result)
	}

	if !result.Passed() {
		return cli.Exit("", 1)
	}
	return nil
}

// failureMessage is the one-line reason shown when a run fails.
func failureMessage(result *core.RunResult) string {
	if f := result.FirstFailure(); f != nil {
		return fmt.Sprintf("%s: %s", f.Name, f.Error)
	}
	return result.Error
}
