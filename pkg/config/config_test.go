package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device != "emulator-5554" {
		t.Errorf("expected device emulator-5554, got %s", cfg.Device)
	}
	if cfg.App.Package != "com.facebook.lite" {
		t.Errorf("expected package com.facebook.lite, got %s", cfg.App.Package)
	}
	if cfg.WaitTimeout != 15*time.Second {
		t.Errorf("expected 15s wait timeout, got %v", cfg.WaitTimeout)
	}
	if cfg.Delays.AfterLogin != 8*time.Second {
		t.Errorf("expected 8s after login, got %v", cfg.Delays.AfterLogin)
	}
	if cfg.DebugSourceLimit != 2000 {
		t.Errorf("expected debug limit 2000, got %d", cfg.DebugSourceLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "login.yaml")

	content := `
device: R58M123
appiumUrl: http://10.0.0.2:4723
app:
  package: com.example.app
  activity: com.example.app.Main
credentials:
  email: qa@example.com
success:
  text: Welcome back
delays:
  afterLogin: 2s
  afterInput: 250ms
waitTimeout: 30s
selectors:
  permissionButtons:
    - "//android.widget.Button[@text='Allow']"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device != "R58M123" {
		t.Errorf("expected device R58M123, got %s", cfg.Device)
	}
	if cfg.AppiumURL != "http://10.0.0.2:4723" {
		t.Errorf("unexpected appium url %s", cfg.AppiumURL)
	}
	if cfg.App.Package != "com.example.app" || cfg.App.Activity != "com.example.app.Main" {
		t.Errorf("unexpected app %+v", cfg.App)
	}
	if cfg.Credentials.Email != "qa@example.com" {
		t.Errorf("unexpected email %s", cfg.Credentials.Email)
	}
	// Not in file: keeps default
	if cfg.Credentials.Password != "password" {
		t.Errorf("expected default password, got %s", cfg.Credentials.Password)
	}
	if cfg.Success.Text != "Welcome back" {
		t.Errorf("unexpected success text %s", cfg.Success.Text)
	}
	if cfg.Delays.AfterLogin != 2*time.Second || cfg.Delays.AfterInput != 250*time.Millisecond {
		t.Errorf("unexpected delays %+v", cfg.Delays)
	}
	if cfg.Delays.AfterReset != 2*time.Second {
		t.Errorf("expected default afterReset, got %v", cfg.Delays.AfterReset)
	}
	if cfg.WaitTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.WaitTimeout)
	}
	if len(cfg.Selectors.PermissionButtons) != 1 {
		t.Errorf("expected permission buttons replaced, got %v", cfg.Selectors.PermissionButtons)
	}
	if cfg.Selectors.EmailLabel == "" {
		t.Error("expected default email label selector")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/login.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "login.yaml")
	if err := os.WriteFile(configPath, []byte("device: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "login.yaml")
	if err := os.WriteFile(configPath, []byte("waitTimeout: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "login.yaml"), []byte("device: a\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != "a" {
			t.Errorf("expected device a, got %s", cfg.Device)
		}
	})

	t.Run("yml", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "login.yml"), []byte("device: b\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != "b" {
			t.Errorf("expected device b, got %s", cfg.Device)
		}
	})

	t.Run("none", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != Default().Device {
			t.Errorf("expected default device, got %s", cfg.Device)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvEmail:    "env@example.com",
		EnvPassword: "",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Credentials.Email != "env@example.com" {
		t.Errorf("expected env email, got %s", cfg.Credentials.Email)
	}
	// Empty value does not clear the configured password
	if cfg.Credentials.Password != "password" {
		t.Errorf("expected password kept, got %s", cfg.Credentials.Password)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.ExecutionError
		wantMsg string
	}{
		{"missing package", func(c *Config) { c.App.Package = "" }, core.ErrMissingRequired, "app.package"},
		{"missing email", func(c *Config) { c.Credentials.Email = " " }, core.ErrMissingRequired, "credentials.email"},
		{"missing success", func(c *Config) { c.Success = Success{} }, core.ErrMissingRequired, "success.text"},
		{"bad url", func(c *Config) { c.AppiumURL = "127.0.0.1:4723" }, core.ErrInvalidConfig, "appiumUrl"},
		{"zero timeout", func(c *Config) { c.WaitTimeout = 0 }, core.ErrInvalidConfig, "waitTimeout"},
		{"negative delay", func(c *Config) { c.Delays.AfterDialog = -time.Second }, core.ErrInvalidConfig, "delays.afterDialog"},
		{"negative debug limit", func(c *Config) { c.DebugSourceLimit = -1 }, core.ErrInvalidConfig, "debugSourceLimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %s, got %v", tt.wantErr.Code, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestValidate_ScriptOnlySuccess(t *testing.T) {
	cfg := Default()
	cfg.Success = Success{Script: `pageSource.includes("Home")`}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected script-only success to be valid: %v", err)
	}
}

func TestDisableDelays(t *testing.T) {
	cfg := Default()
	cfg.DisableDelays()
	if cfg.Delays != (Delays{}) {
		t.Errorf("expected zero delays, got %+v", cfg.Delays)
	}
}

func TestXPathHelpers(t *testing.T) {
	cfg := Default()

	union := cfg.PermissionXPath()
	if strings.Count(union, " | ") != 4 {
		t.Errorf("expected 5 joined selectors, got %q", union)
	}
	if !strings.Contains(union, "contains(@text, 'Save')") {
		t.Errorf("expected Save selector in %q", union)
	}

	if got := cfg.AppRunningXPath(); got != "//*[@package='com.facebook.lite']" {
		t.Errorf("unexpected app xpath %q", got)
	}
}

func TestCapabilities(t *testing.T) {
	caps := Default().Capabilities()

	expected := map[string]interface{}{
		"platformName":          "Android",
		"appium:deviceName":     "emulator-5554",
		"appium:appPackage":     "com.facebook.lite",
		"appium:appActivity":    "com.facebook.lite.MainActivity",
		"appium:noReset":        false,
		"appium:automationName": "UiAutomator2",
	}
	for k, v := range expected {
		if caps[k] != v {
			t.Errorf("caps[%s] = %v, want %v", k, caps[k], v)
		}
	}

	cfg := Default()
	cfg.App.Activity = ""
	if _, ok := cfg.Capabilities()["appium:appActivity"]; ok {
		t.Error("expected no appActivity when activity is empty")
	}
}
