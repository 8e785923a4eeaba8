package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/applogin-e2e/pkg/device"
	"github.com/devicelab-dev/applogin-e2e/pkg/driver/appium"
)

func newDevicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List Android devices visible to adb",
		Description: `List the devices adb can see, with their state and model.

Examples:
  applogin-e2e devices`,
		Action: runDevices,
	}
}

func newDoctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check that adb, the device and the Appium server are reachable",
		Description: `Run the environment checks a login run depends on.
The device and server come from the same merged settings as run.

Examples:
  applogin-e2e doctor
  applogin-e2e doctor --config ci/login.yaml
  applogin-e2e -s emulator-5556 --appium-url http://10.0.0.5:4723 doctor`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to login.yaml (default: ./login.yaml if present)",
			},
		},
		Action: runDoctor,
	}
}

// Injected by tests.
var (
	listDevices = device.ListDevices
	findADB     = device.FindADB
	appiumReady = func(ctx context.Context, serverURL string) (bool, error) {
		return appium.NewClient(serverURL).Status(ctx)
	}
)

func runDevices(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
	defer cancel()

	devices, err := listDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found. Start an emulator or connect a device with USB debugging enabled.")
		return nil
	}

	fmt.Printf("  %-24s %-14s %s\n", "SERIAL", "STATE", "MODEL")
	for _, d := range devices {
		stateColor := color(colorGreen)
		if d.State != "device" {
			stateColor = color(colorYellow)
		}
		fmt.Printf("  %-24s %s%-14s%s %s\n", d.Serial, stateColor, d.State, color(colorReset), d.Model)
	}
	return nil
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	checks := doctorChecks(ctx, cfg.Device, cfg.AppiumURL)

	failed := 0
	for _, check := range checks {
		if check.ok {
			fmt.Printf("  %s✓%s %s %s%s%s\n", color(colorGreen), color(colorReset), check.name, color(colorGray), check.detail, color(colorReset))
		} else {
			failed++
			fmt.Printf("  %s✗%s %s\n", color(colorRed), color(colorReset), check.name)
			fmt.Printf("    %s╰─%s %s\n", color(colorGray), color(colorReset), check.detail)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func doctorChecks(ctx context.Context, serial, serverURL string) []checkResult {
	var checks []checkResult

	adbPath, err := findADB()
	if err != nil {
		checks = append(checks, checkResult{name: "adb", detail: err.Error()})
	} else {
		checks = append(checks, checkResult{name: "adb", ok: true, detail: adbPath})
		checks = append(checks, deviceCheck(ctx, serial))
	}

	ready, err := appiumReady(ctx, serverURL)
	switch {
	case err != nil:
		checks = append(checks, checkResult{name: "appium", detail: fmt.Sprintf("%s: %v", serverURL, err)})
	case !ready:
		checks = append(checks, checkResult{name: "appium", detail: serverURL + " is up but not ready"})
	default:
		checks = append(checks, checkResult{name: "appium", ok: true, detail: serverURL})
	}
	return checks
}

func deviceCheck(ctx context.Context, serial string) checkResult {
	devices, err := listDevices(ctx)
	if err != nil {
		return checkResult{name: "device " + serial, detail: err.Error()}
	}

	var seen []string
	for _, d := range devices {
		if d.Serial == serial {
			if d.State != "device" {
				return checkResult{name: "device " + serial, detail: "state is " + d.State}
			}
			return checkResult{name: "device " + serial, ok: true, detail: d.Model}
		}
		seen = append(seen, d.Serial)
	}

	detail := "not connected"
	if len(seen) > 0 {
		detail += "; available: " + strings.Join(seen, ", ")
	}
	return checkResult{name: "device " + serial, detail: detail}
}
