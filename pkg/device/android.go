// Package device provides Android device management via ADB.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// CommandRunner runs an external program and returns its stdout and stderr.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Bridge drives one Android device through adb.
type Bridge struct {
	serial  string
	adbPath string
	runner  CommandRunner
	timeout time.Duration // per adb invocation
}

// DeviceInfo is one line of `adb devices -l`.
type DeviceInfo struct {
	Serial string
	State  string // device, offline, unauthorized
	Model  string
}

// New creates a Bridge for the given serial using the adb found on this host.
func New(serial string) (*Bridge, error) {
	adbPath, err := FindADB()
	if err != nil {
		return nil, err
	}
	return NewWithRunner(serial, adbPath, ExecRunner{}), nil
}

// NewWithRunner creates a Bridge with an explicit adb path and runner.
func NewWithRunner(serial, adbPath string, runner CommandRunner) *Bridge {
	return &Bridge{
		serial:  serial,
		adbPath: adbPath,
		runner:  runner,
		timeout: 30 * time.Second,
	}
}

// ClearAppData wipes the app's data and cache (`pm clear`).
func (b *Bridge) ClearAppData(ctx context.Context, pkg string) error {
	out, err := b.Shell(ctx, "pm", "clear", pkg)
	if err != nil {
		return err
	}
	// pm prints "Failed" with exit status 0 on some API levels
	if strings.Contains(out, "Failed") {
		return core.ErrDeviceCommand.WithMessage("pm clear " + pkg).WithCause(fmt.Errorf("%s", strings.TrimSpace(out)))
	}
	return nil
}

// ForceStop kills every process of the app (`am force-stop`).
func (b *Bridge) ForceStop(ctx context.Context, pkg string) error {
	_, err := b.Shell(ctx, "am", "force-stop", pkg)
	return err
}

// IsInstalled checks if a package is installed.
func (b *Bridge) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := b.Shell(ctx, "pm", "list", "packages", pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// State returns the adb state of the device (device, offline, ...).
func (b *Bridge) State(ctx context.Context) (string, error) {
	out, err := b.adb(ctx, "get-state")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Shell executes a shell command on the device.
func (b *Bridge) Shell(ctx context.Context, args ...string) (string, error) {
	return b.adb(ctx, append([]string{"shell"}, args...)...)
}

// adb executes an ADB command against this device.
func (b *Bridge) adb(ctx context.Context, args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if b.serial != "" {
		cmdArgs = append(cmdArgs, "-s", b.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	stdout, stderr, err := b.runner.Run(ctx, b.adbPath, cmdArgs...)
	if err != nil {
		errMsg := strings.TrimSpace(stderr)
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout)
		}
		return "", core.ErrDeviceCommand.
			WithMessage("adb " + strings.Join(args, " ")).
			WithCause(fmt.Errorf("%w: %s", err, errMsg))
	}

	return stdout, nil
}

// ListDevices returns the devices adb can see.
func ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	adbPath, err := FindADB()
	if err != nil {
		return nil, err
	}
	return listDevices(ctx, adbPath, ExecRunner{})
}

func listDevices(ctx context.Context, adbPath string, runner CommandRunner) ([]DeviceInfo, error) {
	stdout, stderr, err := runner.Run(ctx, adbPath, "devices", "-l")
	if err != nil {
		return nil, core.ErrDeviceCommand.WithMessage("adb devices").WithCause(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr)))
	}
	return parseDevices(stdout), nil
}

// parseDevices parses `adb devices -l` output.
func parseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		info := DeviceInfo{Serial: parts[0], State: parts[1]}
		for _, p := range parts[2:] {
			if strings.HasPrefix(p, "model:") {
				info.Model = strings.TrimPrefix(p, "model:")
			}
		}
		devices = append(devices, info)
	}
	return devices
}

// FindADB locates the ADB binary in PATH, then under the Android SDK.
func FindADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}

	name := "adb"
	if runtime.GOOS == "windows" {
		name = "adb.exe"
	}
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if root := os.Getenv(env); root != "" {
			candidate := filepath.Join(root, "platform-tools", name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", core.ErrDeviceCommand.WithMessage("adb not found in PATH, ANDROID_HOME or ANDROID_SDK_ROOT; ensure Android SDK platform-tools are installed")
}
