// Package cli provides the command-line interface for applogin-e2e.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// globalFlags are available to all commands. Built per app because
// urfave/cli stores env values on the flag structs.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"s"},
			Usage:   "adb serial of the device to test on",
			EnvVars: []string{"ANDROID_SERIAL"},
		},
		&cli.StringFlag{
			Name:    "appium-url",
			Usage:   "Appium server URL",
			EnvVars: []string{"APPIUM_URL"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Mirror the run log to stderr, including debug lines",
			EnvVars: []string{"APPLOGIN_VERBOSE"},
		},
		&cli.BoolFlag{
			Name:  "no-ansi",
			Usage: "Disable ANSI colors",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "applogin-e2e",
		Usage:   "End-to-end login check for Android apps over Appium",
		Version: Version,
		Description: `applogin-e2e resets an Android app, opens an Appium UiAutomator2 session,
logs in with the configured credentials and checks the screen that follows.

Examples:
  applogin-e2e run
  applogin-e2e -s emulator-5554 run --email me@example.com --password secret
  applogin-e2e run --config login.yaml --output ./reports --flatten
  applogin-e2e doctor`,
		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newDevicesCommand(),
			newDoctorCommand(),
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
