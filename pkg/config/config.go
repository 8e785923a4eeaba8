// Package config handles configuration for the login run (login.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// Environment variables that override credentials from the file.
const (
	EnvEmail    = "LOGIN_EMAIL"
	EnvPassword = "LOGIN_PASSWORD"
)

// Config represents a login run configuration.
type Config struct {
	// Device settings
	Device    string `yaml:"device"`    // adb serial, also sent as appium:deviceName
	AppiumURL string `yaml:"appiumUrl"` // Automation server URL

	App         App           `yaml:"app"`
	Credentials Credentials   `yaml:"credentials"`
	Selectors   Selectors     `yaml:"selectors"`
	Success     Success       `yaml:"success"`
	Delays      Delays        `yaml:"delays"`
	WaitTimeout time.Duration `yaml:"waitTimeout"` // Max wait for presence/clickable conditions

	// Number of page source characters printed when a run fails
	DebugSourceLimit int `yaml:"debugSourceLimit"`
}

// App identifies the application under test.
type App struct {
	Package  string `yaml:"package"`
	Activity string `yaml:"activity"`
}

// Credentials are typed into the login form.
type Credentials struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Selectors are the XPath expressions the flow looks up.
type Selectors struct {
	EmailLabel        string   `yaml:"emailLabel"`
	PasswordLabel     string   `yaml:"passwordLabel"`
	LoginButton       string   `yaml:"loginButton"`
	PermissionButtons []string `yaml:"permissionButtons"` // joined with " | "
}

// Success decides whether the post-login screen counts as logged in.
type Success struct {
	Text   string `yaml:"text"`   // Page source must contain this text
	Script string `yaml:"script"` // Optional JS predicate, overrides Text when set
}

// Delays are the fixed sleeps between steps.
type Delays struct {
	AfterReset   time.Duration `yaml:"afterReset"`
	AfterSession time.Duration `yaml:"afterSession"`
	BeforeTest   time.Duration `yaml:"beforeTest"`
	AfterInput   time.Duration `yaml:"afterInput"`
	AfterDialog  time.Duration `yaml:"afterDialog"`
	AfterLogin   time.Duration `yaml:"afterLogin"`
}

// Default returns the configuration for the Facebook Lite login check on
// the first local emulator.
func Default() *Config {
	return &Config{
		Device:    "emulator-5554",
		AppiumURL: "http://127.0.0.1:4723",
		App: App{
			Package:  "com.facebook.lite",
			Activity: "com.facebook.lite.MainActivity",
		},
		Credentials: Credentials{
			Email:    "email@email.com",
			Password: "password",
		},
		Selectors: Selectors{
			EmailLabel:    "//android.view.View[@text='Mobile number or email']",
			PasswordLabel: "//android.view.View[@text='Password']",
			LoginButton:   "//android.widget.Button[@content-desc='Log in']",
			PermissionButtons: []string{
				"//android.widget.Button[@text='Allow']",
				"//android.widget.Button[@text='OK']",
				"//android.widget.Button[@text='Continue']",
				"//android.widget.Button[@text='Accept']",
				"//android.widget.Button[contains(@text, 'Save')]",
			},
		},
		Success: Success{
			Text: "Zapisać dane logowania?",
		},
		Delays: Delays{
			AfterReset:   2 * time.Second,
			AfterSession: 3 * time.Second,
			BeforeTest:   3 * time.Second,
			AfterInput:   500 * time.Millisecond,
			AfterDialog:  1 * time.Second,
			AfterLogin:   8 * time.Second,
		},
		WaitTimeout:      15 * time.Second,
		DebugSourceLimit: 2000,
	}
}

// Load loads configuration from a file on top of Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for login.yaml or login.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"login.yaml", "login.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default(), nil
}

// ApplyEnv overrides credentials from LOGIN_EMAIL / LOGIN_PASSWORD.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEmail); ok && v != "" {
		c.Credentials.Email = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Credentials.Password = v
	}
}

// DisableDelays zeroes every fixed sleep.
func (c *Config) DisableDelays() {
	c.Delays = Delays{}
}

// PermissionXPath joins the permission button selectors into one union query.
func (c *Config) PermissionXPath() string {
	return strings.Join(c.Selectors.PermissionButtons, " | ")
}

// AppRunningXPath matches any element that belongs to the app package.
func (c *Config) AppRunningXPath() string {
	return fmt.Sprintf("//*[@package='%s']", c.App.Package)
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		name, value string
	}{
		{"device", c.Device},
		{"appiumUrl", c.AppiumURL},
		{"app.package", c.App.Package},
		{"credentials.email", c.Credentials.Email},
		{"credentials.password", c.Credentials.Password},
		{"selectors.emailLabel", c.Selectors.EmailLabel},
		{"selectors.passwordLabel", c.Selectors.PasswordLabel},
		{"selectors.loginButton", c.Selectors.LoginButton},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, core.ErrMissingRequired.WithMessage(r.name+" is required"))
		}
	}

	if c.Success.Text == "" && c.Success.Script == "" {
		errs = append(errs, core.ErrMissingRequired.WithMessage("success.text or success.script is required"))
	}
	if !strings.HasPrefix(c.AppiumURL, "http://") && !strings.HasPrefix(c.AppiumURL, "https://") && c.AppiumURL != "" {
		errs = append(errs, core.ErrInvalidConfig.WithMessage("appiumUrl must be an http(s) URL"))
	}
	if c.WaitTimeout <= 0 {
		errs = append(errs, core.ErrInvalidConfig.WithMessage("waitTimeout must be positive"))
	}
	if c.DebugSourceLimit < 0 {
		errs = append(errs, core.ErrInvalidConfig.WithMessage("debugSourceLimit must not be negative"))
	}

	delays := []struct {
		name string
		d    time.Duration
	}{
		{"afterReset", c.Delays.AfterReset},
		{"afterSession", c.Delays.AfterSession},
		{"beforeTest", c.Delays.BeforeTest},
		{"afterInput", c.Delays.AfterInput},
		{"afterDialog", c.Delays.AfterDialog},
		{"afterLogin", c.Delays.AfterLogin},
	}
	for _, delay := range delays {
		if delay.d < 0 {
			errs = append(errs, core.ErrInvalidConfig.WithMessage("delays."+delay.name+" must not be negative"))
		}
	}

	return errors.Join(errs...)
}

// Capabilities builds the W3C capability set for a UiAutomator2 session.
func (c *Config) Capabilities() map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":             "Android",
		"appium:deviceName":        c.Device,
		"appium:appPackage":        c.App.Package,
		"appium:noReset":           false,
		"appium:automationName":    "UiAutomator2",
		"appium:newCommandTimeout": 300,
	}
	if c.App.Activity != "" {
		caps["appium:appActivity"] = c.App.Activity
	}
	return caps
}
